package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.AppendEvent(context.Background(), Event{SessionID: "s", Kind: "note"}); err != nil {
		t.Fatalf("ephemeral append must be a no-op: %v", err)
	}
	events, err := es.ListSessionEvents(context.Background(), "s", 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("ephemeral store must return nothing, got %d events, err %v", len(events), err)
	}
}

func TestAppendAndQueryTimeline(t *testing.T) {
	es := openStore(t)

	sessionID := "session-123"
	if err := es.AppendSession(context.Background(), sessionID, "voice"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{SessionID: sessionID, Kind: "transcript_final", Payload: []byte("hello")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListSessionEvents(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Payload) != "hello" {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}
}

func TestCalendarEventsWindow(t *testing.T) {
	es := openStore(t)
	ctx := context.Background()

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := es.AddCalendarEvent(ctx, "evt-1", "dentist", day.Add(10*time.Hour)); err != nil {
		t.Fatalf("add calendar event: %v", err)
	}
	if err := es.AddCalendarEvent(ctx, "evt-2", "standup", day.Add(26*time.Hour)); err != nil {
		t.Fatalf("add calendar event: %v", err)
	}

	events, err := es.ListCalendarEvents(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list calendar events: %v", err)
	}
	if len(events) != 1 || events[0].Title != "dentist" {
		t.Fatalf("expected only the same-day entry, got %+v", events)
	}
}

func TestTaskLifecycle(t *testing.T) {
	es := openStore(t)
	ctx := context.Background()

	if err := es.AddTask(ctx, "task-1", "grocery", "milk"); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if err := es.AddTask(ctx, "task-2", "grocery", "eggs"); err != nil {
		t.Fatalf("add task: %v", err)
	}

	tasks, err := es.ListTasks(ctx, "grocery")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 open tasks, got %d", len(tasks))
	}

	done, err := es.CompleteTask(ctx, "grocery", "milk")
	if err != nil || !done {
		t.Fatalf("complete task: done=%v err=%v", done, err)
	}
	tasks, err = es.ListTasks(ctx, "grocery")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Item != "eggs" {
		t.Fatalf("expected only eggs open, got %+v", tasks)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), "old-session", "voice"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{SessionID: "old-session", Kind: "note"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), "new-session", "text"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
}
