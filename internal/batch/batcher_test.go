package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goosewobbler/zubridge/internal/action"
	"github.com/goosewobbler/zubridge/internal/promise"
)

// captureTransport records payloads and acks everything as directed.
type captureTransport struct {
	mu       sync.Mutex
	payloads []Payload
	fail     map[string]string // action ID -> error message
	err      error
	sent     chan Payload
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{sent: make(chan Payload, 16)}
}

func (c *captureTransport) send(ctx context.Context, p Payload) (Ack, error) {
	c.mu.Lock()
	c.payloads = append(c.payloads, p)
	failures := c.fail
	err := c.err
	c.mu.Unlock()

	c.sent <- p

	if err != nil {
		return Ack{}, err
	}

	ack := Ack{BatchID: p.BatchID, Results: make(map[string]ActionAck)}
	for _, e := range p.Entries {
		if msg, ok := failures[e.ID]; ok {
			ack.Results[e.ID] = ActionAck{Success: false, Error: msg}
		} else {
			ack.Results[e.ID] = ActionAck{Success: true}
		}
	}
	return ack, nil
}

func (c *captureTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestBatcher_WindowCoalesces(t *testing.T) {
	tr := newCaptureTransport()
	b, err := New(tr.send, WithConfig(Config{Window: 20 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	a1 := action.New("one", nil)
	a2 := action.New("two", nil)
	a3 := action.New("three", nil)

	p1 := b.Enqueue(a1, 0)
	p2 := b.Enqueue(a2, 0)
	p3 := b.Enqueue(a3, 0)

	payload := <-tr.sent

	if tr.count() != 1 {
		t.Fatalf("expected exactly one batch, got %d", tr.count())
	}
	if len(payload.Entries) != 3 {
		t.Fatalf("expected 3 actions in batch, got %d", len(payload.Entries))
	}
	wantOrder := []string{a1.ID, a2.ID, a3.ID}
	for i, id := range wantOrder {
		if payload.Entries[i].ID != id {
			t.Errorf("entry %d: expected %s, got %s", i, id, payload.Entries[i].ID)
		}
	}

	for _, pr := range []*promise.Promise{p1, p2, p3} {
		if _, err := pr.Await(context.Background()); err != nil {
			t.Errorf("expected resolve, got %v", err)
		}
	}
}

func TestBatcher_PriorityFlushBeatsWindow(t *testing.T) {
	tr := newCaptureTransport()
	b, err := New(tr.send, WithConfig(Config{
		Window:                 time.Hour, // the window must not be what flushes
		PriorityFlushThreshold: 5,
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	low := b.Enqueue(action.New("low", nil), 1)
	urgent := b.Enqueue(action.New("urgent", nil), 9)

	select {
	case payload := <-tr.sent:
		// The whole buffer flushes, not just the urgent action.
		if len(payload.Entries) != 2 {
			t.Errorf("expected both actions in early flush, got %d", len(payload.Entries))
		}
	case <-time.After(time.Second):
		t.Fatal("priority flush never happened")
	}

	for _, pr := range []*promise.Promise{low, urgent} {
		if _, err := pr.Await(context.Background()); err != nil {
			t.Errorf("expected resolve, got %v", err)
		}
	}
}

func TestBatcher_ChunksByMaxBatchSize(t *testing.T) {
	tr := newCaptureTransport()
	b, err := New(tr.send, WithConfig(Config{
		Window:       5 * time.Millisecond,
		MaxBatchSize: 2,
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	var promises []*promise.Promise
	for i := 0; i < 5; i++ {
		promises = append(promises, b.Enqueue(action.New("a", i), 0))
	}

	sizes := []int{len((<-tr.sent).Entries), len((<-tr.sent).Entries), len((<-tr.sent).Entries)}
	want := []int{2, 2, 1}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d: expected size %d, got %d", i, want[i], sizes[i])
		}
	}

	for _, pr := range promises {
		if _, err := pr.Await(context.Background()); err != nil {
			t.Errorf("expected resolve, got %v", err)
		}
	}
}

func TestBatcher_IndependentAckOutcomes(t *testing.T) {
	tr := newCaptureTransport()

	bad := action.New("bad", nil)
	tr.fail = map[string]string{bad.ID: "X"}

	b, err := New(tr.send, WithConfig(Config{Window: 5 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	good1 := b.Enqueue(action.New("good", nil), 0)
	failed := b.Enqueue(bad, 0)
	good2 := b.Enqueue(action.New("good", nil), 0)

	if _, err := good1.Await(context.Background()); err != nil {
		t.Errorf("sibling must resolve, got %v", err)
	}
	if _, err := good2.Await(context.Background()); err != nil {
		t.Errorf("sibling must resolve, got %v", err)
	}

	_, err = failed.Await(context.Background())
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Message != "X" {
		t.Errorf("expected remote message X, got %q", re.Message)
	}
}

func TestBatcher_TransportErrorRejectsWholeBatch(t *testing.T) {
	tr := newCaptureTransport()
	tr.err = errors.New("ipc channel closed")

	b, err := New(tr.send, WithConfig(Config{Window: 5 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	p1 := b.Enqueue(action.New("a", nil), 0)
	p2 := b.Enqueue(action.New("b", nil), 0)

	for _, pr := range []*promise.Promise{p1, p2} {
		if _, err := pr.Await(context.Background()); err == nil {
			t.Error("expected transport error to reject action")
		}
	}
}

func TestBatcher_MissingAckRejects(t *testing.T) {
	send := func(ctx context.Context, p Payload) (Ack, error) {
		return Ack{BatchID: p.BatchID, Results: map[string]ActionAck{}}, nil
	}
	b, err := New(send, WithConfig(Config{Window: 5 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	pr := b.Enqueue(action.New("a", nil), 0)
	_, err = pr.Await(context.Background())
	if !errors.Is(err, ErrNoAck) {
		t.Errorf("expected ErrNoAck, got %v", err)
	}
}

func TestBatcher_Overflow(t *testing.T) {
	tr := newCaptureTransport()
	b, err := New(tr.send, WithConfig(Config{
		Window:       time.Hour,
		MaxQueueSize: 2,
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	b.Enqueue(action.New("a", nil), 0)
	b.Enqueue(action.New("b", nil), 0)
	pr := b.Enqueue(action.New("c", nil), 0)

	_, err = pr.Await(context.Background())
	if !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	var oe *OverflowError
	if !errors.As(err, &oe) || oe.Size != 3 || oe.Limit != 2 {
		t.Errorf("expected size 3 limit 2, got %+v", oe)
	}
}

func TestBatcher_DestroyRejectsBuffered(t *testing.T) {
	tr := newCaptureTransport()
	b, err := New(tr.send, WithConfig(Config{Window: time.Hour}))
	if err != nil {
		t.Fatal(err)
	}

	pr := b.Enqueue(action.New("a", nil), 0)
	b.Destroy()
	b.Destroy() // idempotent

	_, err = pr.Await(context.Background())
	if !errors.Is(err, ErrBatcherDestroyed) {
		t.Errorf("expected ErrBatcherDestroyed, got %v", err)
	}
	if tr.count() != 0 {
		t.Error("destroyed batcher must not send")
	}

	late := b.Enqueue(action.New("late", nil), 0)
	if _, err := late.Await(context.Background()); !errors.Is(err, ErrBatcherDestroyed) {
		t.Errorf("expected ErrBatcherDestroyed for late enqueue, got %v", err)
	}
}

func TestBatcher_Stats(t *testing.T) {
	tr := newCaptureTransport()
	b, err := New(tr.send, WithConfig(Config{Window: 5 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	p1 := b.Enqueue(action.New("a", nil), 0)
	p2 := b.Enqueue(action.New("b", nil), 0)
	p1.Await(context.Background())
	p2.Await(context.Background())

	stats := b.Stats()
	if stats.Batches != 1 {
		t.Errorf("expected 1 batch, got %d", stats.Batches)
	}
	if stats.Actions != 2 {
		t.Errorf("expected 2 actions, got %d", stats.Actions)
	}
	if stats.AvgBatchSize != 2 {
		t.Errorf("expected avg 2, got %f", stats.AvgBatchSize)
	}
	if stats.QueueSize != 0 {
		t.Errorf("expected empty queue, got %d", stats.QueueSize)
	}

	if _, err := New(nil); !errors.Is(err, ErrNilTransport) {
		t.Error("expected ErrNilTransport for nil send func")
	}
}
