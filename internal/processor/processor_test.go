package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goosewobbler/zubridge/internal/action"
	"github.com/goosewobbler/zubridge/internal/promise"
	"github.com/goosewobbler/zubridge/internal/thunk"
)

// blockingCapability lets tests control when actions complete.
type blockingCapability struct {
	mu      sync.Mutex
	results map[string]action.Result
}

func (c *blockingCapability) ProcessAction(a action.Action) action.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.results[a.Type]; ok {
		return r
	}
	return action.Ok(a.Type)
}

func newProcessor(t *testing.T, capability action.StateProcessor, opts ...Option) (*Processor, *thunk.Registry) {
	t.Helper()
	registry := thunk.NewRegistry()
	exec := action.NewExecutor(capability)
	p := New(registry, exec, opts...)
	t.Cleanup(p.Destroy)
	return p, registry
}

func executingThunk(registry *thunk.Registry) *thunk.Thunk {
	th := thunk.New()
	registry.Add(th)
	th.MarkExecuting()
	return th
}

func TestProcessor_MissingThunkID(t *testing.T) {
	p, _ := newProcessor(t, &blockingCapability{})

	_, err := p.ProcessAction(context.Background(), "", action.New("x", nil), nil, nil)
	if !errors.Is(err, ErrMissingThunkID) {
		t.Fatalf("expected ErrMissingThunkID, got %v", err)
	}
}

func TestProcessor_TerminalThunkNoOp(t *testing.T) {
	p, registry := newProcessor(t, &blockingCapability{})

	th := thunk.New()
	registry.Add(th)
	th.MarkExecuting()
	th.MarkCompleted()

	completions := 0
	pr, err := p.ProcessAction(context.Background(), th.ID(), action.New("x", nil), th, func(string) {
		completions++
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pr.Settled() {
		t.Error("no-op promise should be settled immediately")
	}
	if completions != 0 {
		t.Error("no-op must not fire completion")
	}
	if p.Stats().Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", p.Stats().Skipped)
	}
}

func TestProcessor_CompletionFiresExactlyOnce(t *testing.T) {
	p, registry := newProcessor(t, &blockingCapability{})
	th := executingThunk(registry)

	var mu sync.Mutex
	completions := map[string]int{}
	done := make(chan string, 1)

	pr, err := p.ProcessAction(context.Background(), th.ID(), action.New("x", nil), th, func(id string) {
		mu.Lock()
		completions[id]++
		mu.Unlock()
		done <- id
	})
	if err != nil {
		t.Fatal(err)
	}

	id := <-done
	if _, err := pr.Await(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Give any spurious second completion a chance to fire.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if completions[id] != 1 {
		t.Errorf("expected exactly one completion, got %d", completions[id])
	}
}

func TestProcessor_FailedActionStillCompletes(t *testing.T) {
	capability := &blockingCapability{results: map[string]action.Result{
		"bad": action.Fail(errors.New("nope")),
	}}
	p, registry := newProcessor(t, capability)
	th := executingThunk(registry)

	done := make(chan struct{})
	pr, err := p.ProcessAction(context.Background(), th.ID(), action.New("bad", nil), th, func(string) {
		close(done)
	})
	if err != nil {
		t.Fatal(err)
	}

	<-done
	if _, err := pr.Await(context.Background()); err == nil {
		t.Error("expected action promise to reject")
	}
	if th.State() != thunk.StateFailed {
		t.Errorf("expected thunk FAILED, got %s", th.State())
	}
	if p.OutstandingCount(th.ID()) != 0 {
		t.Error("failed thunk bookkeeping should be cleaned up")
	}
}

func TestProcessor_Timeout(t *testing.T) {
	pending := make(chan promise.Outcome) // never delivers
	capability := &blockingCapability{results: map[string]action.Result{
		"slow": action.PendingResult(pending),
	}}
	p, registry := newProcessor(t, capability, WithTimeout(30*time.Millisecond))
	th := executingThunk(registry)

	done := make(chan string, 1)
	pr, err := p.ProcessAction(context.Background(), th.ID(), action.New("slow", nil), th, func(id string) {
		done <- id
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout completion never fired")
	}

	_, err = pr.Await(context.Background())
	if !promise.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if p.Stats().TimedOut != 1 {
		t.Errorf("expected 1 timed out, got %d", p.Stats().TimedOut)
	}
	// Timeout marks the action retired; it does not fail the thunk.
	if th.State() != thunk.StateExecuting {
		t.Errorf("expected thunk still EXECUTING after timeout, got %s", th.State())
	}

	// Late capability responses must be dropped by the exactly-once gate.
	select {
	case <-done:
		t.Fatal("completion fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessor_HandleActionComplete(t *testing.T) {
	capability := &blockingCapability{}
	p, registry := newProcessor(t, capability)
	th := executingThunk(registry)

	first := make(chan string, 1)
	second := make(chan string, 1)

	if _, err := p.ProcessAction(context.Background(), th.ID(), action.New("a", nil), th, func(id string) { first <- id }); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProcessAction(context.Background(), th.ID(), action.New("b", nil), th, func(id string) { second <- id }); err != nil {
		t.Fatal(err)
	}

	ids := []string{<-first, <-second}

	thunkID, completable := p.HandleActionComplete(ids[0])
	if thunkID != th.ID() {
		t.Errorf("expected owner %s, got %s", th.ID(), thunkID)
	}
	if completable {
		t.Error("thunk must not be completable with an action still outstanding")
	}

	_, completable = p.HandleActionComplete(ids[1])
	if !completable {
		t.Error("thunk should be completable after both actions retire")
	}

	// Unknown action IDs are a no-op.
	if _, ok := p.HandleActionComplete("missing"); ok {
		t.Error("unknown action must not be completable")
	}
}

func TestProcessor_RequiresQueue(t *testing.T) {
	p, _ := newProcessor(t, &blockingCapability{})

	if !p.RequiresQueue(action.New("normal", nil)) {
		t.Error("normal actions require the queue")
	}

	bypass := action.New("admin", nil)
	bypass.BypassLock = true
	if p.RequiresQueue(bypass) {
		t.Error("bypass-lock actions are exempt from the queue")
	}
}

func TestProcessor_CleanupThunkActions(t *testing.T) {
	pending := make(chan promise.Outcome)
	capability := &blockingCapability{results: map[string]action.Result{
		"slow": action.PendingResult(pending),
	}}
	p, registry := newProcessor(t, capability, WithTimeout(time.Minute))
	th := executingThunk(registry)

	pr, err := p.ProcessAction(context.Background(), th.ID(), action.New("slow", nil), th, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.OutstandingCount(th.ID()) != 1 {
		t.Fatal("expected one outstanding action")
	}

	p.CleanupThunkActions(th.ID())

	if p.OutstandingCount(th.ID()) != 0 {
		t.Error("cleanup must drop outstanding bookkeeping")
	}
	_, err = pr.Await(context.Background())
	if !errors.Is(err, ErrActionAbandoned) {
		t.Errorf("expected ErrActionAbandoned, got %v", err)
	}
}

func TestProcessor_DestroyRejectsPending(t *testing.T) {
	pending := make(chan promise.Outcome)
	capability := &blockingCapability{results: map[string]action.Result{
		"slow": action.PendingResult(pending),
	}}
	registry := thunk.NewRegistry()
	p := New(registry, action.NewExecutor(capability), WithTimeout(time.Minute))
	th := thunk.New()
	registry.Add(th)
	th.MarkExecuting()

	pr, err := p.ProcessAction(context.Background(), th.ID(), action.New("slow", nil), th, nil)
	if err != nil {
		t.Fatal(err)
	}

	p.Destroy()
	p.Destroy() // idempotent

	_, err = pr.Await(context.Background())
	if !errors.Is(err, ErrProcessorDestroyed) {
		t.Errorf("expected ErrProcessorDestroyed, got %v", err)
	}

	_, err = p.ProcessAction(context.Background(), th.ID(), action.New("x", nil), th, nil)
	if !errors.Is(err, ErrProcessorDestroyed) {
		t.Errorf("expected ErrProcessorDestroyed on new work, got %v", err)
	}
}
