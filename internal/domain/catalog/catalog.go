// Package catalog holds the fixed set of behavioural aspects a rater can
// select, each with its point value and label.
package catalog

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// Code identifies an aspect, e.g. "pagamento_pontual".
type Code string

// Polarity tells whether an aspect rewards or penalizes the rated party.
type Polarity int

const (
	Positive Polarity = iota + 1
	Negative
)

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "unknown"
	}
}

// Aspect is one catalog entry.
type Aspect struct {
	Code   Code   `yaml:"code" json:"code"`
	Points int    `yaml:"points" json:"points"`
	Label  string `yaml:"label" json:"label"`
}

type entry struct {
	aspect   Aspect
	polarity Polarity
	rank     int
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	positive []Aspect
	negative []Aspect
	index    map[Code]entry
}

// maxSuggestDistance bounds how far a typo may be from a code to be suggested.
const maxSuggestDistance = 3

var foldCaser = cases.Fold() //nolint:gochecknoglobals // stateless caser

// New validates the entries and builds a catalog. Positives are ranked
// before negatives, each in declaration order.
func New(positive, negative []Aspect) (*Catalog, error) {
	if len(positive) == 0 && len(negative) == 0 {
		return nil, fmt.Errorf("%w: no aspects", ErrInvalidCatalog)
	}
	c := &Catalog{
		positive: make([]Aspect, 0, len(positive)),
		negative: make([]Aspect, 0, len(negative)),
		index:    make(map[Code]entry, len(positive)+len(negative)),
	}
	if err := c.add(positive, Positive); err != nil {
		return nil, err
	}
	if err := c.add(negative, Negative); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) add(aspects []Aspect, polarity Polarity) error {
	for _, a := range aspects {
		if a.Code == "" {
			return fmt.Errorf("%w: empty code", ErrInvalidCatalog)
		}
		if strings.TrimSpace(a.Label) == "" {
			return fmt.Errorf("%w: aspect %q has no label", ErrInvalidCatalog, a.Code)
		}
		if _, dup := c.index[a.Code]; dup {
			return fmt.Errorf("%w: duplicate code %q", ErrInvalidCatalog, a.Code)
		}
		if polarity == Positive && a.Points <= 0 {
			return fmt.Errorf("%w: positive aspect %q must have points > 0", ErrInvalidCatalog, a.Code)
		}
		if polarity == Negative && a.Points >= 0 {
			return fmt.Errorf("%w: negative aspect %q must have points < 0", ErrInvalidCatalog, a.Code)
		}
		c.index[a.Code] = entry{aspect: a, polarity: polarity, rank: len(c.index)}
		if polarity == Positive {
			c.positive = append(c.positive, a)
		} else {
			c.negative = append(c.negative, a)
		}
	}
	return nil
}

// Default returns the catalog the service ships with.
func Default() *Catalog {
	c, err := New(
		[]Aspect{
			{Code: "ajudou_no_processo", Points: 5, Label: "Ajudou no processo"},
			{Code: "foi_educado", Points: 3, Label: "Foi educado"},
			{Code: "pagamento_pontual", Points: 8, Label: "Pagamento pontual"},
			{Code: "comunicacao_clara", Points: 4, Label: "Comunicação clara"},
			{Code: "flexivel_horarios", Points: 3, Label: "Flexível com horários"},
			{Code: "respeitou_combinado", Points: 5, Label: "Respeitou combinado"},
		},
		[]Aspect{
			{Code: "pagamento_atrasado", Points: -10, Label: "Pagamento atrasado"},
			{Code: "comunicacao_ruim", Points: -5, Label: "Comunicação ruim"},
			{Code: "cancelou_sem_motivo", Points: -15, Label: "Cancelou sem motivo"},
			{Code: "desrespeitou_horario", Points: -7, Label: "Desrespeitou horário"},
			{Code: "pedido_urgente", Points: -3, Label: "Pedido urgente"},
			{Code: "negociacao_dificil", Points: -4, Label: "Negociação difícil"},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) lookup(code Code) (entry, error) {
	e, ok := c.index[code]
	if !ok {
		return entry{}, fmt.Errorf("%w: %q", ErrUnknownAspect, code)
	}
	return e, nil
}

// PointsOf returns the signed points of code.
func (c *Catalog) PointsOf(code Code) (int, error) {
	e, err := c.lookup(code)
	if err != nil {
		return 0, err
	}
	return e.aspect.Points, nil
}

// LabelOf returns the display label of code.
func (c *Catalog) LabelOf(code Code) (string, error) {
	e, err := c.lookup(code)
	if err != nil {
		return "", err
	}
	return e.aspect.Label, nil
}

// PolarityOf returns whether code is positive or negative.
func (c *Catalog) PolarityOf(code Code) (Polarity, error) {
	e, err := c.lookup(code)
	if err != nil {
		return 0, err
	}
	return e.polarity, nil
}

// Rank returns the declaration index of code across the whole catalog.
func (c *Catalog) Rank(code Code) (int, bool) {
	e, ok := c.index[code]
	return e.rank, ok
}

// AllPositive returns the positive aspects in declaration order.
func (c *Catalog) AllPositive() []Aspect {
	out := make([]Aspect, len(c.positive))
	copy(out, c.positive)
	return out
}

// AllNegative returns the negative aspects in declaration order.
func (c *Catalog) AllNegative() []Aspect {
	out := make([]Aspect, len(c.negative))
	copy(out, c.negative)
	return out
}

// Len returns the number of aspects.
func (c *Catalog) Len() int { return len(c.index) }

// Normalize trims and case-folds user input into a code.
// Spaces and hyphens become underscores.
func Normalize(raw string) Code {
	s := foldCaser.String(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Code(s)
}

// Suggest returns the closest known code to raw, if one is near enough.
func (c *Catalog) Suggest(raw string) (Code, bool) {
	needle := string(Normalize(raw))
	if needle == "" {
		return "", false
	}
	best, bestDist := Code(""), maxSuggestDistance+1
	for _, list := range [][]Aspect{c.positive, c.negative} {
		for _, a := range list {
			if d := levenshtein.ComputeDistance(needle, string(a.Code)); d < bestDist {
				best, bestDist = a.Code, d
			}
		}
	}
	return best, best != ""
}
