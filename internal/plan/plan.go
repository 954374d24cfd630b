package plan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable access plan. Plans are defined once at startup and
// never mutated afterward.
type Plan struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Days  int
}

// Duration returns the access window granted by the plan.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.Days) * 24 * time.Hour
}

// PriceLabel renders the price as "R$ 19,90" for user-facing copy.
func (p Plan) PriceLabel() string {
	s := p.Price.StringFixed(2)
	// BRL uses a comma as the decimal separator.
	b := []byte(s)
	for i := range b {
		if b[i] == '.' {
			b[i] = ','
		}
	}
	return "R$ " + string(b)
}

// Catalog holds the available plans in menu order.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

// NewCatalog builds a catalog from the given plans. Duplicate IDs are rejected.
func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{
		plans: make([]Plan, 0, len(plans)),
		byID:  make(map[string]Plan, len(plans)),
	}
	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan with empty id")
		}
		if _, exists := c.byID[p.ID]; exists {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		if p.Days <= 0 {
			return nil, fmt.Errorf("plan %q: days must be positive", p.ID)
		}
		c.byID[p.ID] = p
		c.plans = append(c.plans, p)
	}
	return c, nil
}

// Get looks up a plan by id.
func (c *Catalog) Get(id string) (Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// All returns the plans in the order they were registered.
func (c *Catalog) All() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Default returns the reference catalog.
func Default() *Catalog {
	c, err := NewCatalog([]Plan{
		{ID: "plano_teste", Name: "PLANO TESTE - 7 DIAS", Price: decimal.NewFromFloat(19.90), Days: 7},
		{ID: "plano1", Name: "PLANO 15 DIAS", Price: decimal.NewFromFloat(29.99), Days: 15},
		{ID: "plano2", Name: "VIP MENSAL", Price: decimal.NewFromFloat(40.00), Days: 30},
		{ID: "plano3", Name: "PLANO 6 MESES", Price: decimal.NewFromFloat(150.00), Days: 180},
	})
	if err != nil {
		panic(err)
	}
	return c
}
