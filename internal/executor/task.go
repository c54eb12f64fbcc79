package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pocketlabs/pocket-core/internal/eventstore"
)

// TaskStore is the persistence surface the task handler needs.
type TaskStore interface {
	AddTask(ctx context.Context, id, list, item string) error
	ListTasks(ctx context.Context, list string) ([]eventstore.Task, error)
	CompleteTask(ctx context.Context, list, item string) (bool, error)
}

const defaultList = "todo"

// TaskHandler manages named to-do lists backed by the event store.
type TaskHandler struct {
	store TaskStore
	log   *slog.Logger
}

func NewTaskHandler(store TaskStore, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{store: store, log: logger.With(slog.String("component", "task-handler"))}
}

func (h *TaskHandler) Invoke(ctx context.Context, args map[string]string) (ActionResult, error) {
	list := args["list"]
	if list == "" {
		list = defaultList
	}
	switch args["action"] {
	case "add":
		item := args["item"]
		if item == "" {
			return ActionResult{}, fmt.Errorf("task: nothing to add")
		}
		if err := h.store.AddTask(ctx, uuid.NewString(), list, item); err != nil {
			return ActionResult{}, fmt.Errorf("task: %w", err)
		}
		return ActionResult{Success: true, Summary: fmt.Sprintf("added %s to the %s list", item, list)}, nil
	case "complete":
		item := args["item"]
		if item == "" {
			return ActionResult{}, fmt.Errorf("task: nothing to complete")
		}
		done, err := h.store.CompleteTask(ctx, list, item)
		if err != nil {
			return ActionResult{}, fmt.Errorf("task: %w", err)
		}
		if !done {
			return ActionResult{Success: false, Summary: fmt.Sprintf("%s was not found on the %s list", item, list)}, nil
		}
		return ActionResult{Success: true, Summary: fmt.Sprintf("marked %s done on the %s list", item, list)}, nil
	default:
		tasks, err := h.store.ListTasks(ctx, list)
		if err != nil {
			return ActionResult{}, fmt.Errorf("task: %w", err)
		}
		if len(tasks) == 0 {
			return ActionResult{Success: true, Summary: fmt.Sprintf("the %s list is empty", list)}, nil
		}
		items := make([]string, len(tasks))
		for i, task := range tasks {
			items[i] = task.Item
		}
		return ActionResult{
			Success: true,
			Summary: fmt.Sprintf("%d items on the %s list: %s", len(tasks), list, strings.Join(items, ", ")),
		}, nil
	}
}
