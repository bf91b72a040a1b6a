package tools

import (
	"context"
	"errors"
	"testing"
)

func TestDispatch_UnknownTool(t *testing.T) {
	r := NewRegistry()

	res := r.Dispatch(context.Background(), "nope", nil)
	if res.OK {
		t.Error("unknown tool dispatch reported OK")
	}
	if res.Err != "unknown tool: nope" {
		t.Errorf("err = %q", res.Err)
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name: "fails",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("backend unavailable")
		},
	})

	res := r.Dispatch(context.Background(), "fails", nil)
	if res.OK {
		t.Error("failed handler reported OK")
	}
	if res.Err != "backend unavailable" {
		t.Errorf("err = %q", res.Err)
	}
}

func TestDispatch_Success(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			return s, nil
		},
	})

	res := r.Dispatch(context.Background(), "echo", map[string]any{"text": "hello"})
	if !res.OK || res.Data != "hello" {
		t.Errorf("result = %+v", res)
	}
}

func TestRegister_Replaces(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:    "v",
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "old", nil },
	})
	r.Register(&Tool{
		Name:    "v",
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "new", nil },
	})

	if res := r.Dispatch(context.Background(), "v", nil); res.Data != "new" {
		t.Errorf("got %q, want replacement handler", res.Data)
	}
}

func TestSchemas_SortedAndComplete(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(&Tool{
			Name:        name,
			Description: "tool " + name,
			Parameters:  map[string]any{"type": "object"},
			Handler:     func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
		})
	}

	schemas := r.Schemas()
	if len(schemas) != 3 {
		t.Fatalf("schemas = %d, want 3", len(schemas))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, s := range schemas {
		if s["name"] != want[i] {
			t.Errorf("schema %d name = %v, want %s", i, s["name"], want[i])
		}
		if s["description"] == "" || s["parameters"] == nil {
			t.Errorf("schema %d incomplete: %v", i, s)
		}
	}
}
