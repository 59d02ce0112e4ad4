package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Render writes a plain-text summary of r.
func Render(r *Report, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	title := r.Title
	if title == "" {
		title = "Fertilizer mixtures"
	}
	fmt.Fprintf(tw, "%s (run %s)\n", title, r.ID)
	if len(r.Categories) == 0 {
		fmt.Fprintln(tw, "No data found.")
	}

	for _, c := range r.Categories {
		fmt.Fprintf(tw, "\n== %s ==\n", c.Name)
		for _, p := range c.Plants {
			fmt.Fprintf(tw, "\n%s\n", p.Name)
			for _, ep := range p.Episodes {
				fmt.Fprintf(tw, "  #%d %s x%d  N %s  P %s  K %s\n", ep.Number, ep.LifeStage, ep.Repetitions,
					grams(ep.Targets.N), grams(ep.Targets.P), grams(ep.Targets.K))
				if !ep.Result.Succeeded {
					fmt.Fprintf(tw, "    ! %s\n", ep.Result.Error)
					continue
				}
				for _, l := range ep.Lines {
					cost := "?"
					if l.Priced {
						cost = money(l.Cost)
					}
					fmt.Fprintf(tw, "    %s\t%s\t%s\n", l.Name, grams(l.Mass), cost)
				}
				if len(ep.Overruns) > 0 {
					parts := make([]string, 0, len(ep.Overruns))
					for _, o := range ep.Overruns {
						parts = append(parts, fmt.Sprintf("%s +%s", o.Element, grams(o.Mass)))
					}
					fmt.Fprintf(tw, "    excess: %s\n", strings.Join(parts, ", "))
				}
				if ep.CostKnown {
					fmt.Fprintf(tw, "    total\t\t%s\n", money(ep.TotalCost))
				} else {
					fmt.Fprintf(tw, "    total\t\t?\n")
				}
			}
		}
	}
	return tw.Flush()
}
