package agents

import "github.com/talgya/glade-market/internal/economy"

// Amount is a quantity of one good.
type Amount struct {
	Good economy.Good `yaml:"good" json:"good"`
	Qty  int64        `yaml:"qty" json:"qty"`
}

// Recipe turns inputs into OutputAmount units of Output.
// A recipe with no inputs is a primary producer (a field, a mine).
type Recipe struct {
	Output       economy.Good `yaml:"output" json:"output"`
	OutputAmount int64        `yaml:"output_amount" json:"output_amount"`
	Inputs       []Amount     `yaml:"inputs" json:"inputs"`
}

// CanCraft reports whether inv holds one batch of inputs.
func (r Recipe) CanCraft(inv Inventory) bool {
	for _, in := range r.Inputs {
		if inv.Count(in.Good) < in.Qty {
			return false
		}
	}
	return true
}

// Craft consumes one batch of inputs and adds output scaled by yield.
// Returns the units produced, 0 if the inputs were missing.
func (r Recipe) Craft(inv Inventory, yield float64) int64 {
	if !r.CanCraft(inv) {
		return 0
	}
	for _, in := range r.Inputs {
		inv.Take(in.Good, in.Qty)
	}
	out := int64(float64(r.OutputAmount)*yield + 0.5)
	if out < 0 {
		out = 0
	}
	inv.Add(r.Output, out)
	return out
}
