package intent

import (
	"context"
	"fmt"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// Tag identifies the action family a command belongs to.
type Tag string

const (
	TagLights   Tag = "Lights"
	TagWeather  Tag = "Weather"
	TagCalendar Tag = "Calendar"
	TagTimer    Tag = "Timer"
	TagTask     Tag = "Task"
	TagSearch   Tag = "Search"
	TagNews     Tag = "News"
	TagChat     Tag = "Chat"
	TagUnknown  Tag = "Unknown"
)

// Intent is a classified command: its tag, extracted arguments, and the
// classifier's confidence in the assignment.
type Intent struct {
	Tag        Tag
	Args       map[string]string
	Confidence float64
}

// Model classifies a finalized transcript. Implementations must honor ctx
// cancellation; the router enforces the budget.
type Model interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// NewModel builds the classifier selected by config.
func NewModel(cfg config.IntentConfig) (Model, error) {
	switch cfg.Mode {
	case "rule":
		return NewRuleModel(), nil
	case "exec":
		return NewExecModel(cfg)
	default:
		return nil, fmt.Errorf("unknown intent mode %q", cfg.Mode)
	}
}
