package message

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu    sync.Mutex
	texts []string
	err   error
	block chan struct{}
}

func (s *recordingSink) Send(ctx context.Context, text string) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

func (s *recordingSink) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, Options{}, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Notify("one")
	d.Notify("two")
	waitFor(t, func() bool { return len(sink.got()) == 2 })

	if got := sink.got(); got[0] != "one" || got[1] != "two" {
		t.Fatalf("order = %v", got)
	}
}

func TestDispatcherNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, Options{QueueSize: 1}, zaptest.NewLogger(t).Sugar())

	// No worker running: the first text fills the queue, the rest drop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if !d.TryNotify("a") {
			t.Error("first notify dropped")
		}
		for i := 0; i < 10; i++ {
			if d.TryNotify("b") {
				t.Error("notify on full queue succeeded")
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}

func TestDispatcherSwallowsSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("chat unreachable")}
	d := NewDispatcher(sink, Options{}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Notify("x")
	d.Notify("y")
	waitFor(t, func() bool { return len(sink.got()) == 2 })
}

func TestDispatcherSendTimeout(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, Options{SendTimeout: 10 * time.Millisecond}, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()

	d.Notify("slow")
	d.Notify("next")
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestLogSink(t *testing.T) {
	if err := (LogSink{Log: zaptest.NewLogger(t).Sugar()}).Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
}
