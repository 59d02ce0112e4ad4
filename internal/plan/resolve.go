package plan

import (
	"fmt"
	"sort"

	"github.com/eugenenazirov/npk-mixer/internal/catalog"
	"github.com/eugenenazirov/npk-mixer/internal/nutrient"
	"github.com/shopspring/decimal"
)

// ProductFinder looks up catalog products by name.
type ProductFinder interface {
	Find(name string) (catalog.Product, bool)
}

// Feeding is an episode with its nutrient targets resolved to grams.
type Feeding struct {
	Category         string
	Plant            string
	Number           int
	LifeStage        string
	Repetitions      int
	Targets          nutrient.Masses
	MagnesiumSulfate decimal.Decimal
}

// Resolve computes the targets of every episode. Categories and plants are
// ordered by name, categories without plants are skipped and episodes keep
// their plan order. Numbers restart at 1 for each plant.
func (p *Plan) Resolve(products ProductFinder) ([]Feeding, error) {
	categories := make([]Category, 0, len(p.Categories))
	for _, c := range p.Categories {
		if len(c.Plants) > 0 {
			categories = append(categories, c)
		}
	}
	sort.SliceStable(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })

	var feedings []Feeding
	for _, c := range categories {
		plants := make([]Plant, len(c.Plants))
		copy(plants, c.Plants)
		sort.SliceStable(plants, func(i, j int) bool { return plants[i].Name < plants[j].Name })

		for _, plant := range plants {
			resolved, err := plant.resolve(products)
			if err != nil {
				return nil, fmt.Errorf("plant %q: %w", plant.Name, err)
			}
			for _, f := range resolved {
				f.Category = c.Name
				feedings = append(feedings, f)
			}
		}
	}
	return feedings, nil
}

func (p Plant) resolve(products ProductFinder) ([]Feeding, error) {
	out := make([]Feeding, 0, len(p.Episodes))
	previousFeed := decimal.Zero

	for i, e := range p.Episodes {
		s, err := e.source()
		if err != nil {
			return nil, fmt.Errorf("%w: episode %d: %v", ErrInvalidPlan, i+1, err)
		}

		var targets nutrient.Masses
		switch s {
		case sourceMasses:
			targets = nutrient.Masses{N: e.Masses.N, P: e.Masses.P, K: e.Masses.K}
		case sourceFeed:
			if p.NPKPercent == nil {
				return nil, fmt.Errorf("%w: episode %d: feed mass requires the plant npk_percent", ErrInvalidPlan, i+1)
			}
			feed := e.FeedMass
			if e.MassMultiplier.IsPositive() {
				feed = nutrient.Round2(e.MassMultiplier.Mul(previousFeed))
			}
			previousFeed = feed
			targets, err = nutrient.ResolveAbsoluteMasses(p.NPKPercent.N, p.NPKPercent.P, p.NPKPercent.K, feed)
			if err != nil {
				return nil, fmt.Errorf("episode %d: %w", i+1, err)
			}
		case sourceComponents:
			targets, err = componentMasses(e.Components, products, e.nano(s))
			if err != nil {
				return nil, fmt.Errorf("episode %d: %w", i+1, err)
			}
		}

		// Component masses are discounted per component above.
		if s != sourceComponents && e.nano(s) {
			targets, err = nutrient.ApplyAvailabilityDiscount(targets, nutrient.DefaultCoefficients())
			if err != nil {
				return nil, fmt.Errorf("episode %d: %w", i+1, err)
			}
		}

		out = append(out, Feeding{
			Plant:            p.Name,
			Number:           i + 1,
			LifeStage:        e.LifeStage,
			Repetitions:      e.Repetitions,
			Targets:          targets,
			MagnesiumSulfate: e.MagnesiumSulfateMass,
		})
	}
	return out, nil
}

// componentMasses sums the nutrients of conventional products, rounding after
// every addition.
func componentMasses(components []Component, products ProductFinder, nano bool) (nutrient.Masses, error) {
	sum := nutrient.Masses{N: decimal.Zero, P: decimal.Zero, K: decimal.Zero}
	for _, c := range components {
		product, ok := products.Find(c.Product)
		if !ok {
			return nutrient.Masses{}, fmt.Errorf("%w: %q", ErrUnknownProduct, c.Product)
		}
		masses, err := nutrient.ResolveAbsoluteMasses(product.Nitrogen, product.Phosphorus, product.Potassium, c.Mass)
		if err != nil {
			return nutrient.Masses{}, err
		}
		if nano {
			masses, err = nutrient.ApplyAvailabilityDiscount(masses, nutrient.DefaultCoefficients())
			if err != nil {
				return nutrient.Masses{}, err
			}
		}
		sum = nutrient.Masses{
			N: nutrient.Round2(sum.N.Add(masses.N)),
			P: nutrient.Round2(sum.P.Add(masses.P)),
			K: nutrient.Round2(sum.K.Add(masses.K)),
		}
	}
	return sum, nil
}
