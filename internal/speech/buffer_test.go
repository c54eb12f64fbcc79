package speech

import (
	"reflect"
	"strings"
	"testing"
)

func TestPhraseBufferReleasesCompleteSentences(t *testing.T) {
	b := NewPhraseBuffer(240)

	if got := b.Add("The office lights "); got != nil {
		t.Fatalf("incomplete sentence must stay buffered, got %v", got)
	}
	got := b.Add("are on. Anything else")
	if !reflect.DeepEqual(got, []string{"The office lights are on."}) {
		t.Fatalf("unexpected phrases %v", got)
	}
	if rest := b.Flush(); rest != "Anything else" {
		t.Fatalf("flush: got %q", rest)
	}
}

func TestPhraseBufferHandlesMultipleSentencesInOneChunk(t *testing.T) {
	b := NewPhraseBuffer(240)
	got := b.Add("Done. The timer is set! Anything else? still typing")
	want := []string{"Done.", "The timer is set!", "Anything else?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPhraseBufferDoesNotSplitDecimals(t *testing.T) {
	b := NewPhraseBuffer(240)
	if got := b.Add("Pi is 3."); got != nil {
		t.Fatalf("trailing terminator must stay buffered, got %v", got)
	}
	got := b.Add("14 roughly. ")
	if !reflect.DeepEqual(got, []string{"Pi is 3.14 roughly."}) {
		t.Fatalf("got %v", got)
	}
}

func TestPhraseBufferForcesCutAtCap(t *testing.T) {
	b := NewPhraseBuffer(40)
	long := strings.Repeat("word ", 20) // no sentence terminator anywhere
	phrases := b.Add(long)
	if len(phrases) == 0 {
		t.Fatal("expected forced cuts for run-on text")
	}
	for _, p := range phrases {
		if len(p) > 40 {
			t.Fatalf("phrase exceeds cap: %q", p)
		}
		if strings.Contains(p, "wo rd") || strings.HasSuffix(p, "wor") {
			t.Fatalf("forced cut split a word: %q", p)
		}
	}
}

func TestPhraseBufferFlushEmpty(t *testing.T) {
	b := NewPhraseBuffer(240)
	if got := b.Flush(); got != "" {
		t.Fatalf("empty flush: got %q", got)
	}
}
