package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valet-agent/valet/internal/tasks"
)

func newTaskRegistry(t *testing.T) (*Registry, *tasks.Store) {
	t.Helper()
	store, err := tasks.NewStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	r := NewRegistry()
	RegisterTaskTools(r, store)
	return r, store
}

func TestAddTask(t *testing.T) {
	r, store := newTaskRegistry(t)
	ctx := context.Background()

	res := r.Dispatch(ctx, "add_task", map[string]any{
		"title": "book flights",
		"notes": "check prices first",
		"due":   "2026-09-15",
	})
	if !res.OK {
		t.Fatalf("add_task failed: %s", res.Err)
	}
	if !strings.Contains(res.Data, "book flights") {
		t.Errorf("result = %q", res.Data)
	}

	list, err := store.List(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("stored %d tasks, want 1", len(list))
	}
	if list[0].Due == nil {
		t.Error("due date not stored")
	}
}

func TestAddTask_MissingTitle(t *testing.T) {
	r, _ := newTaskRegistry(t)

	res := r.Dispatch(context.Background(), "add_task", map[string]any{})
	if res.OK {
		t.Error("add_task without title reported OK")
	}
}

func TestAddTask_BadDue(t *testing.T) {
	r, _ := newTaskRegistry(t)

	res := r.Dispatch(context.Background(), "add_task", map[string]any{
		"title": "x",
		"due":   "whenever",
	})
	if res.OK {
		t.Error("add_task with unparseable due reported OK")
	}
	if !strings.Contains(res.Err, "invalid due") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestListTasks(t *testing.T) {
	r, store := newTaskRegistry(t)
	ctx := context.Background()

	if res := r.Dispatch(ctx, "list_tasks", nil); !res.OK || res.Data != "No tasks." {
		t.Errorf("empty list result = %+v", res)
	}

	done := &tasks.Task{Title: "finished already"}
	for _, task := range []*tasks.Task{{Title: "still open"}, done} {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.Complete(ctx, done.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res := r.Dispatch(ctx, "list_tasks", nil)
	if !res.OK {
		t.Fatalf("list_tasks failed: %s", res.Err)
	}
	if strings.Contains(res.Data, "finished already") {
		t.Error("done task shown without include_done")
	}
	if !strings.Contains(res.Data, "still open") {
		t.Errorf("open task missing: %q", res.Data)
	}

	res = r.Dispatch(ctx, "list_tasks", map[string]any{"include_done": true})
	if !strings.Contains(res.Data, "finished already") {
		t.Errorf("done task missing with include_done: %q", res.Data)
	}
}

func TestListTasks_ShortCustomID(t *testing.T) {
	r, store := newTaskRegistry(t)
	ctx := context.Background()

	// The store honors caller-supplied ids, which can be shorter than
	// the abbreviated display width.
	if err := store.Create(ctx, &tasks.Task{ID: "t1", Title: "water plants"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	res := r.Dispatch(ctx, "list_tasks", nil)
	if !res.OK {
		t.Fatalf("list_tasks failed: %s", res.Err)
	}
	if !strings.Contains(res.Data, "(t1)") {
		t.Errorf("result = %q, want short id shown as-is", res.Data)
	}
}

func TestCompleteTask_ByPrefix(t *testing.T) {
	r, store := newTaskRegistry(t)
	ctx := context.Background()

	task := &tasks.Task{Title: "call the bank"}
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	res := r.Dispatch(ctx, "complete_task", map[string]any{"task_id": task.ID[:8]})
	if !res.OK {
		t.Fatalf("complete_task failed: %s", res.Err)
	}

	got, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Done {
		t.Error("task not completed")
	}
}

func TestCompleteTask_Unknown(t *testing.T) {
	r, _ := newTaskRegistry(t)

	res := r.Dispatch(context.Background(), "complete_task", map[string]any{"task_id": "ffffffff"})
	if res.OK {
		t.Error("completing unknown task reported OK")
	}
	if !strings.Contains(res.Err, "not found") {
		t.Errorf("err = %q", res.Err)
	}
}

func TestDeleteTask(t *testing.T) {
	r, store := newTaskRegistry(t)
	ctx := context.Background()

	task := &tasks.Task{Title: "obsolete"}
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	res := r.Dispatch(ctx, "delete_task", map[string]any{"task_id": task.ID})
	if !res.OK {
		t.Fatalf("delete_task failed: %s", res.Err)
	}
	if list, _ := store.List(ctx, false); len(list) != 0 {
		t.Errorf("task list after delete = %d entries", len(list))
	}
}

func TestCalendarTool_NotConfigured(t *testing.T) {
	r := NewRegistry()
	RegisterCalendarTools(r, nil)

	res := r.Dispatch(context.Background(), "list_calendar_events", nil)
	if res.OK {
		t.Error("unconfigured calendar reported OK")
	}
	if !strings.Contains(res.Err, "not configured") {
		t.Errorf("err = %q", res.Err)
	}
}
