package wake

import (
	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/config"
)

// fullScaleRMS is the frame energy treated as confidence 1.0 by the energy
// scorer. Tuned against 16-bit mono capture at normal speaking distance.
const fullScaleRMS = 3000.0

// energyScorer approximates wake-cue detection with windowed RMS energy. A
// trained keyword model plugs in through the same Scorer contract.
type energyScorer struct{}

func NewEnergyScorer() Scorer { return energyScorer{} }

func (energyScorer) Score(window []audio.Frame) (float64, error) {
	if len(window) == 0 {
		return 0, nil
	}
	var sum float64
	for _, f := range window {
		sum += f.RMS()
	}
	confidence := (sum / float64(len(window))) / fullScaleRMS
	if confidence > 1 {
		confidence = 1
	}
	return confidence, nil
}

// FuncScorer adapts a plain function to the Scorer interface; used by tests
// and embedders with their own models.
type FuncScorer func(window []audio.Frame) (float64, error)

func (f FuncScorer) Score(window []audio.Frame) (float64, error) { return f(window) }

// NewScorer builds the scorer selected by config.
func NewScorer(cfg config.WakeConfig) Scorer {
	switch cfg.Mode {
	case "energy":
		return NewEnergyScorer()
	default:
		return FuncScorer(func([]audio.Frame) (float64, error) { return 0, nil })
	}
}
