package llm

import "sync"

// History is the bounded conversation window shared across sessions. The
// system prompt is pinned and never evicted; user and assistant turns are
// evicted oldest-first once the window exceeds the configured size.
type History struct {
	mu     sync.Mutex
	system string
	max    int
	turns  []Message
}

func NewHistory(system string, max int) *History {
	if max <= 0 {
		max = 20
	}
	return &History{system: system, max: max}
}

func (h *History) AddUser(content string)      { h.add("user", content) }
func (h *History) AddAssistant(content string) { h.add("assistant", content) }

func (h *History) add(role, content string) {
	if content == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Message{Role: role, Content: content})
	if len(h.turns) > h.max {
		h.turns = h.turns[len(h.turns)-h.max:]
	}
}

// System returns the pinned system prompt.
func (h *History) System() string { return h.system }

// Messages returns a copy of the current window.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.turns))
	copy(out, h.turns)
	return out
}

// Reset drops all turns but keeps the system prompt.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
