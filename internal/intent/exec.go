package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// execModel shells out to an external classifier. The command reads a JSON
// request on stdin and prints a JSON intent on stdout.
type execModel struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text string `json:"text"`
}

type execIntent struct {
	Tag        string            `json:"tag"`
	Args       map[string]string `json:"args,omitempty"`
	Confidence float64           `json:"confidence"`
}

func NewExecModel(cfg config.IntentConfig) (Model, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse intent command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("intent command is empty")
	}
	return &execModel{cmd: args}, nil
}

func (m *execModel) Classify(ctx context.Context, text string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	input, err := json.Marshal(execRequest{Text: text})
	if err != nil {
		return Intent{}, err
	}

	base := m.cmd[0]
	args := append([]string{}, m.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return Intent{}, fmt.Errorf("intent command failed: %w", err)
	}

	var resp execIntent
	if err := json.Unmarshal(output, &resp); err != nil {
		return Intent{}, fmt.Errorf("decode intent response: %w", err)
	}
	tag, ok := knownTags[resp.Tag]
	if !ok {
		return Intent{Tag: TagUnknown, Confidence: 1}, nil
	}
	return Intent{Tag: tag, Args: resp.Args, Confidence: resp.Confidence}, nil
}

var knownTags = map[string]Tag{
	string(TagLights):   TagLights,
	string(TagWeather):  TagWeather,
	string(TagCalendar): TagCalendar,
	string(TagTimer):    TagTimer,
	string(TagTask):     TagTask,
	string(TagSearch):   TagSearch,
	string(TagNews):     TagNews,
	string(TagChat):     TagChat,
	string(TagUnknown):  TagUnknown,
}
