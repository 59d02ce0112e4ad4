// Package plan reads feeding plans: categories of plants, each with an
// ordered list of fertilizing episodes.
package plan

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eugenenazirov/npk-mixer/internal/validation"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Plan is the root of a feeding plan document.
type Plan struct {
	Title      string     `yaml:"title" validate:"max=200"`
	Categories []Category `yaml:"categories" validate:"dive"`
}

// Category groups plants.
type Category struct {
	Name   string  `yaml:"name" validate:"required,max=150"`
	Plants []Plant `yaml:"plants" validate:"dive"`
}

// Plant carries an optional N:P:K ratio used by episodes that specify a feed mass.
type Plant struct {
	Name       string       `yaml:"name" validate:"required,max=150"`
	NPKPercent *Percentages `yaml:"npk_percent"`
	Episodes   []Episode    `yaml:"episodes" validate:"dive"`
}

// Percentages is a nutrient ratio of a conventional feed.
type Percentages struct {
	N decimal.Decimal `yaml:"n" validate:"gte=0,lte=100,dp2"`
	P decimal.Decimal `yaml:"p" validate:"gte=0,lte=100,dp2"`
	K decimal.Decimal `yaml:"k" validate:"gte=0,lte=100,dp2"`
}

// Masses are absolute nutrient masses in grams.
type Masses struct {
	N decimal.Decimal `yaml:"n" validate:"gte=0,dp2"`
	P decimal.Decimal `yaml:"p" validate:"gte=0,dp2"`
	K decimal.Decimal `yaml:"k" validate:"gte=0,dp2"`
}

// Component is a conventional product added to an episode by mass.
type Component struct {
	Product string          `yaml:"product" validate:"required"`
	Mass    decimal.Decimal `yaml:"mass" validate:"gt=0,dp2"`
}

// Episode is one fertilizing event. Its nutrient targets come from exactly
// one of: Masses; FeedMass or MassMultiplier with the plant's NPKPercent;
// Components.
type Episode struct {
	LifeStage            string          `yaml:"life_stage" validate:"required,max=150"`
	Repetitions          int             `yaml:"repetitions" validate:"gte=1"`
	MagnesiumSulfateMass decimal.Decimal `yaml:"magnesium_sulfate_mass" validate:"gte=0,dp2"`

	Masses *Masses `yaml:"masses"`

	FeedMass       decimal.Decimal `yaml:"feed_mass" validate:"gte=0,dp2"`
	MassMultiplier decimal.Decimal `yaml:"mass_multiplier" validate:"gte=0,dp2"`

	Components []Component `yaml:"components" validate:"dive"`

	// Nano applies the availability discount to the targets. It defaults to
	// true for feed-mass and component episodes and false for absolute masses.
	Nano *bool `yaml:"nano"`
}

type source int

const (
	sourceNone source = iota
	sourceMasses
	sourceFeed
	sourceComponents
)

func (e Episode) source() (source, error) {
	found := sourceNone
	set := func(s source) error {
		if found != sourceNone {
			return errors.New("masses, feed_mass/mass_multiplier and components are mutually exclusive")
		}
		found = s
		return nil
	}
	if e.Masses != nil {
		if err := set(sourceMasses); err != nil {
			return sourceNone, err
		}
	}
	if e.FeedMass.IsPositive() || e.MassMultiplier.IsPositive() {
		if e.FeedMass.IsPositive() && e.MassMultiplier.IsPositive() {
			return sourceNone, errors.New("feed_mass and mass_multiplier are mutually exclusive")
		}
		if err := set(sourceFeed); err != nil {
			return sourceNone, err
		}
	}
	if len(e.Components) > 0 {
		if err := set(sourceComponents); err != nil {
			return sourceNone, err
		}
	}
	if found == sourceNone {
		return sourceNone, errors.New("one of masses, feed_mass, mass_multiplier or components is required")
	}
	return found, nil
}

func (e Episode) nano(s source) bool {
	if e.Nano != nil {
		return *e.Nano
	}
	return s != sourceMasses
}

var validate = validation.New()

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a YAML plan, applies defaults and validates it.
func Parse(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidPlan)
		}
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidPlan, err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) applyDefaults() {
	for ci := range p.Categories {
		for pi := range p.Categories[ci].Plants {
			episodes := p.Categories[ci].Plants[pi].Episodes
			for ei := range episodes {
				if episodes[ei].Repetitions == 0 {
					episodes[ei].Repetitions = 1
				}
			}
		}
	}
}

// Validate checks field constraints, unique names and that every episode has
// exactly one nutrient source.
func (p *Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, validation.Describe(err))
	}

	categories := make(map[string]struct{}, len(p.Categories))
	plants := make(map[string]struct{})
	for _, c := range p.Categories {
		if _, ok := categories[c.Name]; ok {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidPlan, c.Name)
		}
		categories[c.Name] = struct{}{}

		for _, plant := range c.Plants {
			if _, ok := plants[plant.Name]; ok {
				return fmt.Errorf("%w: duplicate plant %q", ErrInvalidPlan, plant.Name)
			}
			plants[plant.Name] = struct{}{}

			if err := plant.validateEpisodes(); err != nil {
				return fmt.Errorf("%w: plant %q: %v", ErrInvalidPlan, plant.Name, err)
			}
		}
	}
	return nil
}

func (p Plant) validateEpisodes() error {
	hasFeed := false
	for i, e := range p.Episodes {
		s, err := e.source()
		if err != nil {
			return fmt.Errorf("episode %d: %w", i+1, err)
		}
		if s != sourceFeed {
			continue
		}
		if p.NPKPercent == nil {
			return fmt.Errorf("episode %d: feed mass requires the plant npk_percent", i+1)
		}
		if e.MassMultiplier.IsPositive() && !hasFeed {
			return fmt.Errorf("episode %d: mass_multiplier needs an earlier feed_mass episode", i+1)
		}
		hasFeed = true
	}
	return nil
}
