package report

import (
	"fmt"
	"io"

	"github.com/eugenenazirov/npk-mixer/internal/catalog"
	"github.com/eugenenazirov/npk-mixer/internal/nutrient"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Report"

type styleKind int

const (
	styleRegular styleKind = iota
	styleBold
	styleBoldItalic
	styleItalic
	styleError
)

var styleDefs = map[styleKind]*excelize.Font{
	styleRegular:    {Family: "Arial", Size: 10, Color: "000000"},
	styleBold:       {Family: "Arial", Size: 10, Color: "000000", Bold: true},
	styleBoldItalic: {Family: "Arial", Size: 10, Color: "000000", Bold: true, Italic: true},
	styleItalic:     {Family: "Arial", Size: 10, Color: "000000", Italic: true},
	styleError:      {Family: "Arial", Size: 10, Color: "FF0000", Italic: true},
}

// sheet writes cells top to bottom and keeps the first error.
type sheet struct {
	f      *excelize.File
	row    int
	styles map[styleKind]int
	err    error
}

func (s *sheet) cell(col int, value any, kind styleKind) {
	if s.err != nil {
		return
	}
	name, err := excelize.CoordinatesToCellName(col, s.row)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetCellValue(sheetName, name, value); err != nil {
		s.err = fmt.Errorf("set %s: %w", name, err)
		return
	}
	if err := s.f.SetCellStyle(sheetName, name, name, s.styles[kind]); err != nil {
		s.err = fmt.Errorf("style %s: %w", name, err)
	}
}

func (s *sheet) skip(n int) {
	s.row += n
}

// WriteXLSX renders r as a single-sheet workbook.
func WriteXLSX(r *Report, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	s := &sheet{f: f, row: 1, styles: make(map[styleKind]int, len(styleDefs))}
	for kind, font := range styleDefs {
		id, err := f.NewStyle(&excelize.Style{Font: font})
		if err != nil {
			return fmt.Errorf("create style: %w", err)
		}
		s.styles[kind] = id
	}

	title := r.Title
	if title == "" {
		title = "Calculated fertilizer mixture compositions and prices"
	}
	s.cell(1, title, styleBold)
	s.skip(1)
	s.cell(1, "for nano-encapsulation", styleBold)
	s.skip(1)
	s.cell(1, fmt.Sprintf("Generated %s, run %s", r.GeneratedAt.Format("2006-01-02 15:04:05"), r.ID), styleItalic)
	s.skip(2)

	if len(r.Categories) == 0 {
		s.cell(1, "No data found.", styleError)
		s.skip(2)
	}
	for _, c := range r.Categories {
		s.cell(1, c.Name, styleBold)
		s.skip(2)
		for _, p := range c.Plants {
			s.cell(1, p.Name, styleBold)
			s.skip(1)
			for _, ep := range p.Episodes {
				writeEpisode(s, ep)
			}
		}
	}

	s.cell(1, "Price per gram of fertilizer", styleBold)
	s.skip(1)
	for _, p := range r.Prices {
		s.cell(1, p.Name, styleRegular)
		s.cell(2, money(p.PricePerGram), styleRegular)
		s.skip(1)
	}
	if s.err != nil {
		return fmt.Errorf("write report cells: %w", s.err)
	}

	widths := []struct {
		col   string
		width float64
	}{{"A", 32}, {"B", 12}, {"C", 20}}
	for _, cw := range widths {
		if err := f.SetColWidth(sheetName, cw.col, cw.col, cw.width); err != nil {
			return fmt.Errorf("set column %s width: %w", cw.col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeEpisode(s *sheet, ep Episode) {
	s.cell(1, fmt.Sprintf("Feeding #%d", ep.Number), styleBoldItalic)
	s.skip(1)

	for _, e := range nutrient.Elements {
		if m := ep.Targets.Get(e); !m.IsZero() {
			s.cell(1, fmt.Sprintf("Mass of %s:", elementNames[string(e)]), styleRegular)
			s.cell(2, grams(m), styleRegular)
			s.skip(1)
		}
	}
	if !ep.MagnesiumSulfate.IsZero() {
		s.cell(1, "Mass of magnesium sulfate:", styleRegular)
		s.cell(2, grams(ep.MagnesiumSulfate), styleRegular)
		s.skip(1)
	}
	s.cell(1, "Life stage:", styleRegular)
	s.cell(2, ep.LifeStage, styleRegular)
	s.skip(1)
	s.cell(1, "Repetitions:", styleRegular)
	s.cell(2, ep.Repetitions, styleRegular)
	s.skip(2)

	s.cell(1, fmt.Sprintf("Optimal composition of feeding #%d", ep.Number), styleBoldItalic)
	s.skip(1)

	if !ep.Result.Succeeded {
		s.cell(1, ep.Result.Error, styleError)
		s.skip(2)
		return
	}

	for _, l := range ep.Lines {
		s.cell(1, l.Name, styleRegular)
		s.cell(2, grams(l.Mass), styleRegular)
		if l.Priced {
			s.cell(3, money(l.Cost), styleRegular)
		} else {
			s.cell(3, "?", styleError)
		}
		s.skip(1)
	}
	s.skip(1)

	for _, o := range ep.Overruns {
		s.cell(1, fmt.Sprintf("Excess %s:", elementNames[string(o.Element)]), styleItalic)
		s.cell(2, grams(o.Mass), styleRegular)
		s.skip(1)
	}
	s.skip(1)

	s.cell(1, "Total cost:", styleRegular)
	if ep.CostKnown {
		s.cell(2, money(ep.TotalCost), styleRegular)
	} else {
		s.skip(1)
		s.cell(1, fmt.Sprintf("Cannot compute the cost: the price per gram of %s is unknown.", catalog.MagnesiumSulfate), styleError)
	}
	s.skip(2)
}
