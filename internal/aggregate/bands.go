package aggregate

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Band is one distance class: values below Upper (or up to it, when the
// table is inclusive) get Label.
type Band struct {
	Upper float64 `yaml:"upper"`
	Label string  `yaml:"label"`
}

// Bands is an ordered classification table with an open-ended final label.
type Bands struct {
	Bands     []Band `yaml:"bands"`
	Over      string `yaml:"over"`
	Inclusive bool   `yaml:"inclusive"`
}

// DefaultBands mirrors the buffer radii in metres.
func DefaultBands() Bands {
	return Bands{
		Bands: []Band{
			{Upper: 1000, Label: "0-1 km"},
			{Upper: 5000, Label: "1-5 km"},
			{Upper: 10000, Label: "5-10 km"},
			{Upper: 20000, Label: "10-20 km"},
			{Upper: 50000, Label: "20-50 km"},
		},
		Over: "50+ km",
	}
}

// LoadBands reads a band table from the "distance_bands" key of a YAML file.
func LoadBands(path string) (Bands, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bands{}, eris.Wrapf(err, "aggregate: read bands %s", path)
	}

	var wrapper struct {
		Bands Bands `yaml:"distance_bands"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Bands{}, eris.Wrap(err, "aggregate: parse bands")
	}

	b := wrapper.Bands
	if b.Over == "" {
		b.Over = "over"
	}
	if err := b.Validate(); err != nil {
		return Bands{}, err
	}
	return b, nil
}

// Validate checks that upper bounds are finite and strictly ascending and
// that every band is labelled.
func (b Bands) Validate() error {
	if len(b.Bands) == 0 {
		return eris.New("aggregate: band table is empty")
	}
	prev := math.Inf(-1)
	for i, band := range b.Bands {
		if band.Label == "" {
			return eris.Errorf("aggregate: band %d has no label", i)
		}
		if math.IsNaN(band.Upper) || math.IsInf(band.Upper, 0) || band.Upper <= prev {
			return eris.Errorf("aggregate: band %q upper bound %v is not ascending", band.Label, band.Upper)
		}
		prev = band.Upper
	}
	return nil
}

// Label returns the first band d falls in, or Over past the last bound.
func (b Bands) Label(d float64) string {
	for _, band := range b.Bands {
		if d < band.Upper || (b.Inclusive && d == band.Upper) {
			return band.Label
		}
	}
	return b.Over
}

// Labels returns every label in table order, Over last.
func (b Bands) Labels() []string {
	out := make([]string, 0, len(b.Bands)+1)
	for _, band := range b.Bands {
		out = append(out, band.Label)
	}
	return append(out, b.Over)
}
