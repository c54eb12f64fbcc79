package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/eventstore"
)

// CalendarStore is the persistence surface the calendar handler needs.
type CalendarStore interface {
	AddCalendarEvent(ctx context.Context, id, title string, startsAt time.Time) error
	ListCalendarEvents(ctx context.Context, from, to time.Time) ([]eventstore.CalendarEvent, error)
}

// CalendarHandler lists and adds calendar entries backed by the event store.
type CalendarHandler struct {
	store CalendarStore
	clk   clock.Clock
	log   *slog.Logger
}

func NewCalendarHandler(store CalendarStore, clk clock.Clock, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{
		store: store,
		clk:   clk,
		log:   logger.With(slog.String("component", "calendar-handler")),
	}
}

func (h *CalendarHandler) Invoke(ctx context.Context, args map[string]string) (ActionResult, error) {
	switch args["action"] {
	case "add":
		return h.add(ctx, args)
	default:
		return h.list(ctx, args)
	}
}

func (h *CalendarHandler) add(ctx context.Context, args map[string]string) (ActionResult, error) {
	title := args["title"]
	if title == "" {
		title = "untitled event"
	}
	startsAt := h.dayStart(args["when"]).Add(9 * time.Hour)
	id := uuid.NewString()
	if err := h.store.AddCalendarEvent(ctx, id, title, startsAt); err != nil {
		return ActionResult{}, fmt.Errorf("calendar: %w", err)
	}
	return ActionResult{
		Success: true,
		Summary: fmt.Sprintf("added %s to the calendar on %s", title, startsAt.Format("Monday January 2")),
	}, nil
}

func (h *CalendarHandler) list(ctx context.Context, args map[string]string) (ActionResult, error) {
	from := h.dayStart(args["when"])
	to := from.Add(24 * time.Hour)
	events, err := h.store.ListCalendarEvents(ctx, from, to)
	if err != nil {
		return ActionResult{}, fmt.Errorf("calendar: %w", err)
	}
	if len(events) == 0 {
		return ActionResult{Success: true, Summary: "the calendar is empty for that day"}, nil
	}
	titles := make([]string, len(events))
	for i, evt := range events {
		titles[i] = fmt.Sprintf("%s at %s", evt.Title, evt.StartsAt.Local().Format("3:04 PM"))
	}
	return ActionResult{
		Success: true,
		Summary: fmt.Sprintf("%d calendar entries: %s", len(events), strings.Join(titles, ", ")),
	}, nil
}

func (h *CalendarHandler) dayStart(when string) time.Time {
	now := h.clk.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if when == "tomorrow" {
		day = day.Add(24 * time.Hour)
	}
	return day
}
