package state

import (
	"errors"
	"testing"

	"github.com/goosewobbler/zubridge/internal/action"
)

func counterReducer(current State, a action.Action) (State, error) {
	next := State{}
	for k, v := range current {
		next[k] = v
	}

	switch a.Type {
	case "counter/increment":
		n, _ := next["counter"].(int)
		next["counter"] = n + 1
		return next, nil
	case "counter/reset":
		next["counter"] = 0
		return next, nil
	default:
		return nil, errors.New("unknown action type")
	}
}

func TestStore_ProcessAction(t *testing.T) {
	s := NewStore(State{"counter": 0}, counterReducer)

	res := s.ProcessAction(action.New("counter/increment", nil))
	if res.Kind() != action.KindValue {
		t.Fatalf("expected value result, got %v", res.Kind())
	}

	got := s.GetState()["counter"]
	if got != 1 {
		t.Errorf("expected counter 1, got %v", got)
	}
}

func TestStore_ReducerError(t *testing.T) {
	s := NewStore(State{"counter": 3}, counterReducer)

	res := s.ProcessAction(action.New("bogus", nil))
	if res.Kind() != action.KindError {
		t.Fatalf("expected error result, got %v", res.Kind())
	}
	if res.Err() == nil {
		t.Fatal("expected non-nil error")
	}
	if s.GetState()["counter"] != 3 {
		t.Error("failed action must not mutate state")
	}
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(State{"counter": 0}, counterReducer)

	var seen []State
	unsub := s.Subscribe(func(st State) {
		seen = append(seen, st)
	})

	s.ProcessAction(action.New("counter/increment", nil))
	s.ProcessAction(action.New("counter/increment", nil))

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if seen[1]["counter"] != 2 {
		t.Errorf("expected counter 2 in last notification, got %v", seen[1]["counter"])
	}

	unsub()
	unsub() // idempotent
	s.ProcessAction(action.New("counter/increment", nil))
	if len(seen) != 2 {
		t.Error("unsubscribed listener must not be invoked")
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	a := State{"b": 1, "a": map[string]any{"y": 2, "x": 3}}
	b := State{"a": map[string]any{"x": 3, "y": 2}, "b": 1}

	ra, err := Snapshot(a)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	rb, err := Snapshot(b)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if string(ra) != string(rb) {
		t.Errorf("equal trees must snapshot identically: %s vs %s", ra, rb)
	}
}

func TestClone_Independent(t *testing.T) {
	orig := State{"nested": map[string]any{"n": 1}}
	cl, err := Clone(orig)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}

	cl["nested"].(map[string]any)["n"] = 99
	if orig["nested"].(map[string]any)["n"] != 1 {
		t.Error("clone must not share nested maps with the original")
	}
}
