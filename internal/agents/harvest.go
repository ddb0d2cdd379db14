package agents

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Harvest is a smooth yield multiplier over ticks, in [0.5, 1.5].
// Neighbouring ticks get similar yields, so good and bad spells last a while.
type Harvest struct {
	noise     opensimplex.Noise
	frequency float64
	offset    float64
}

// NewHarvest builds a harvest field. offset separates fields that share a seed.
func NewHarvest(seed int64, offset float64) *Harvest {
	return &Harvest{
		noise:     opensimplex.NewNormalized(seed),
		frequency: 1.0 / 240, // one swing every few sim-hours
		offset:    offset,
	}
}

// Factor returns the yield multiplier for tick. A nil Harvest yields 1.
func (h *Harvest) Factor(tick uint64) float64 {
	if h == nil {
		return 1
	}
	return 0.5 + h.noise.Eval2(float64(tick)*h.frequency, h.offset)
}
