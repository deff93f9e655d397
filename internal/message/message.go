// internal/message/message.go
//
// Fire-and-forget chat notifications.
//
// Context
//   Visitor tracking and countdown expiry push one-line texts to the chat
//   channel.  Delivery is best effort: Notify never blocks the caller and
//   never returns an error.  A full queue drops the message; a failed send
//   is logged and counted.
//
//   One worker drains the queue so messages leave in the order they were
//   queued.  Each Send gets its own timeout.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/reveal/internal/metrics"
)

// Sink delivers one text to the outside world.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// LogSink writes texts to the logger.  Used when no bot is configured.
type LogSink struct {
	Log *zap.SugaredLogger
}

// Send logs text at info level.
func (s LogSink) Send(_ context.Context, text string) error {
	s.Log.Infow("notification", "text", text)
	return nil
}

// Options tunes the queue.
type Options struct {
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher queues texts for one background worker.
type Dispatcher struct {
	sink    Sink
	queue   chan string
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewDispatcher returns a dispatcher; call Run to start delivery.
func NewDispatcher(sink Sink, opts Options, log *zap.SugaredLogger) *Dispatcher {
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan string, opts.QueueSize),
		timeout: opts.SendTimeout,
		log:     log,
	}
}

// Notify enqueues text.  It drops the text when the queue is full.
func (d *Dispatcher) Notify(text string) {
	d.TryNotify(text)
}

// TryNotify is Notify that reports whether text was queued.
func (d *Dispatcher) TryNotify(text string) bool {
	select {
	case d.queue <- text:
		return true
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		d.log.Warnw("notification dropped, queue full", "len", len(text))
		return false
	}
}

// Run delivers queued texts until ctx is cancelled.  Texts still queued
// at cancellation are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-d.queue:
			d.deliver(ctx, text)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, text string) {
	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sink.Send(sctx, text); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		d.log.Warnw("notification delivery failed", "err", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}
