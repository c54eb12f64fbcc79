package speech

import "strings"

// PhraseBuffer accumulates streamed reply text and releases it in
// synthesizable units: complete sentences, or a forced cut once the buffer
// exceeds the configured cap so a long run-on never stalls speech.
type PhraseBuffer struct {
	maxChars int
	pending  strings.Builder
}

func NewPhraseBuffer(maxChars int) *PhraseBuffer {
	if maxChars <= 0 {
		maxChars = 240
	}
	return &PhraseBuffer{maxChars: maxChars}
}

// Add appends streamed text and returns any phrases that became complete.
func (b *PhraseBuffer) Add(text string) []string {
	if text == "" {
		return nil
	}
	b.pending.WriteString(text)

	var phrases []string
	for {
		current := b.pending.String()
		cut := sentenceEnd(current)
		if cut < 0 && len(current) >= b.maxChars {
			cut = wordBoundaryBefore(current, b.maxChars)
		}
		if cut < 0 {
			break
		}
		phrase := strings.TrimSpace(current[:cut])
		b.pending.Reset()
		b.pending.WriteString(current[cut:])
		if phrase != "" {
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

// Flush returns whatever text remains, complete sentence or not.
func (b *PhraseBuffer) Flush() string {
	out := strings.TrimSpace(b.pending.String())
	b.pending.Reset()
	return out
}

// sentenceEnd returns the index just past the first sentence terminator that
// is followed by whitespace, or -1 when no sentence has completed. A trailing
// terminator with nothing after it stays buffered until Flush, since more of
// the same sentence may still be streaming (for example "3.14").
func sentenceEnd(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' || s[i+1] == '\t' {
				return i + 1
			}
		}
	}
	return -1
}

// wordBoundaryBefore finds the last space at or before limit, so a forced
// cut never splits a word. Falls back to the limit itself.
func wordBoundaryBefore(s string, limit int) int {
	if limit > len(s) {
		limit = len(s)
	}
	if idx := strings.LastIndexByte(s[:limit], ' '); idx > 0 {
		return idx + 1
	}
	return limit
}
