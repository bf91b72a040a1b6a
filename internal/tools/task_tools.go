package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valet-agent/valet/internal/tasks"
)

// RegisterTaskTools adds the task CRUD tools backed by the given store.
func RegisterTaskTools(r *Registry, store *tasks.Store) {
	r.Register(&Tool{
		Name:        "add_task",
		Description: "Add a task to the user's list. Use for anything the user wants to remember to do.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Short task title",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Optional longer notes",
				},
				"due": map[string]any{
					"type":        "string",
					"description": "Optional due time as RFC3339 timestamp or YYYY-MM-DD date",
				},
			},
			"required": []string{"title"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			title, _ := args["title"].(string)
			if title == "" {
				return "", fmt.Errorf("title is required")
			}
			notes, _ := args["notes"].(string)

			t := &tasks.Task{Title: title, Notes: notes}
			if dueStr, _ := args["due"].(string); dueStr != "" {
				due, err := parseDue(dueStr)
				if err != nil {
					return "", fmt.Errorf("invalid due: %w", err)
				}
				t.Due = &due
			}

			if err := store.Create(ctx, t); err != nil {
				return "", err
			}

			result := fmt.Sprintf("Task %q added (ID: %s)", t.Title, t.ID)
			if t.Due != nil {
				result += ", due " + t.Due.Format("2006-01-02 15:04")
			}
			return result, nil
		},
	})

	r.Register(&Tool{
		Name:        "list_tasks",
		Description: "List the user's tasks. By default only open (not done) tasks are shown.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"include_done": map[string]any{
					"type":        "boolean",
					"description": "Include completed tasks (default false)",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			includeDone, _ := args["include_done"].(bool)

			list, err := store.List(ctx, !includeDone)
			if err != nil {
				return "", err
			}
			if len(list) == 0 {
				return "No tasks.", nil
			}

			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("Found %d task(s):\n", len(list)))
			now := time.Now()
			for _, t := range list {
				status := "open"
				if t.Done {
					status = "done"
				} else if t.Overdue(now) {
					status = "OVERDUE"
				}
				sb.WriteString(fmt.Sprintf("- %s (%s): %s", t.Title, shortID(t.ID), status))
				if t.Due != nil {
					sb.WriteString(fmt.Sprintf(", due %s", t.Due.Format("2006-01-02 15:04")))
				}
				sb.WriteString("\n")
			}
			return sb.String(), nil
		},
	})

	r.Register(&Tool{
		Name:        "complete_task",
		Description: "Mark a task as done.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "The task ID (full or prefix)",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, err := resolveTask(ctx, store, args)
			if err != nil {
				return "", err
			}
			if err := store.Complete(ctx, t.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Task %q completed.", t.Title), nil
		},
	})

	r.Register(&Tool{
		Name:        "delete_task",
		Description: "Delete a task from the list entirely.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "The task ID (full or prefix)",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, err := resolveTask(ctx, store, args)
			if err != nil {
				return "", err
			}
			if err := store.Delete(ctx, t.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Task %q deleted.", t.Title), nil
		},
	})
}

// shortID abbreviates an id for display. Ids are normally UUIDs, but
// the store accepts caller-supplied ids of any length.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// resolveTask finds a task by full id or unique id prefix.
func resolveTask(ctx context.Context, store *tasks.Store, args map[string]any) (*tasks.Task, error) {
	taskID, _ := args["task_id"].(string)
	if taskID == "" {
		return nil, fmt.Errorf("task_id is required")
	}

	t, err := store.Get(ctx, taskID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, tasks.ErrNotFound) {
		return nil, err
	}

	list, err := store.List(ctx, false)
	if err != nil {
		return nil, err
	}

	var found *tasks.Task
	for _, t := range list {
		if t.ID == taskID || strings.HasPrefix(t.ID, taskID) {
			if found != nil {
				return nil, fmt.Errorf("ambiguous task id prefix: %s", taskID)
			}
			found = t
		}
	}
	if found == nil {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	return found, nil
}

// parseDue accepts an RFC3339 timestamp or a bare date. Bare dates get
// an end-of-day due time in the local zone.
func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return d.Add(23*time.Hour + 59*time.Minute), nil
	}
	return time.Time{}, fmt.Errorf("could not parse time: %s", s)
}
