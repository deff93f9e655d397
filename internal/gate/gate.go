// internal/gate/gate.go
//
// Countdown gate: site accessibility derived from the active countdown.
//
// Context
// -------
// The gate holds no state of its own.  Every call reads the active
// countdown through the injected record.Store and derives one of three
// phases:
//
//	NoActiveCountdown   site accessible
//	CountdownRunning    site locked until TargetDate
//	CountdownExpired    transient; the same read deactivates the record
//
// Callers only ever observe NoActiveCountdown or CountdownRunning.
//
// Workflow
// --------
//  1. Evaluate reads the active record and classifies it with Transition.
//  2. An expired record is deactivated by id inside the same call, after
//     confirming under g.mu that it is still the active one.  If that
//     write fails the call still reports accessible and the next read
//     tries again.
//  3. SetCountdown and Clear hold g.mu so two writers never interleave a
//     deactivate+create sequence.
//
// Notes
// -----
//   - Remaining is computed from the clock on every call, never cached.
//   - The clock is injectable with WithClock.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/reveal/internal/metrics"
	"github.com/yanizio/reveal/internal/record"
)

// Phase is the gate's view of the active countdown.
type Phase int

const (
	NoActiveCountdown Phase = iota
	CountdownRunning
	CountdownExpired
)

func (p Phase) String() string {
	switch p {
	case CountdownRunning:
		return "running"
	case CountdownExpired:
		return "expired"
	default:
		return "none"
	}
}

// Transition classifies rec at instant now.  An active record without a
// target date does not lock the site.
func Transition(rec *record.Countdown, now time.Time) Phase {
	if rec == nil || !rec.IsActive || rec.TargetDate == nil {
		return NoActiveCountdown
	}
	if !now.Before(*rec.TargetDate) {
		return CountdownExpired
	}
	return CountdownRunning
}

// State is the result of one Evaluate call.
type State struct {
	Accessible  bool
	CountdownID string
	TargetDate  *time.Time
	Remaining   time.Duration
	SetBy       string
	// Ended is true when this call performed the expiry transition.
	Ended bool
}

// Notifier receives one-line, fire-and-forget texts.
type Notifier interface {
	Notify(text string)
}

// NotifyFunc adapts a plain function to Notifier.
type NotifyFunc func(text string)

// Notify calls f(text).
func (f NotifyFunc) Notify(text string) { f(text) }

// Option customises a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithNotifier announces expiry transitions.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notify = n }
}

// Gate is safe for concurrent use.
type Gate struct {
	store  record.Store
	now    func() time.Time
	notify Notifier
	log    *zap.SugaredLogger

	mu          sync.Mutex
	lastExpired string
}

// New wires a gate over store.
func New(store record.Store, log *zap.SugaredLogger, opts ...Option) *Gate {
	g := &Gate{store: store, now: time.Now, log: log}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Now exposes the gate clock so callers validate against the same time.
func (g *Gate) Now() time.Time { return g.now() }

// Evaluate reports current accessibility and applies lazy expiry.
func (g *Gate) Evaluate(ctx context.Context) (State, error) {
	rec, err := g.store.GetActiveCountdown(ctx)
	if err != nil {
		return State{}, fmt.Errorf("read active countdown: %w", err)
	}
	now := g.now()

	switch Transition(rec, now) {
	case CountdownRunning:
		metrics.CountdownActive.Set(1)
		target := *rec.TargetDate
		return State{
			CountdownID: rec.ID,
			TargetDate:  &target,
			Remaining:   target.Sub(now),
			SetBy:       rec.SetByName(),
		}, nil

	case CountdownExpired:
		g.expire(ctx, rec)
		metrics.CountdownActive.Set(0)
		target := *rec.TargetDate
		return State{
			Accessible:  true,
			CountdownID: rec.ID,
			TargetDate:  &target,
			SetBy:       rec.SetByName(),
			Ended:       true,
		}, nil
	}

	metrics.CountdownActive.Set(0)
	return State{Accessible: true}, nil
}

// expire deactivates rec.  Failures are logged; the next read retries.
// The active record is read again under g.mu: a Clear or SetCountdown
// that ran since Evaluate's read already retired rec, and then there is
// nothing to expire or announce.
func (g *Gate) expire(ctx context.Context, rec *record.Countdown) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, err := g.store.GetActiveCountdown(ctx)
	if err != nil {
		g.log.Warnw("countdown expiry re-read failed", "id", rec.ID, "err", err)
		return
	}
	if cur == nil || cur.ID != rec.ID {
		g.log.Debugw("countdown already retired", "id", rec.ID)
		return
	}

	if _, err := g.store.UpdateCountdown(ctx, rec.ID, record.CountdownPatch{IsActive: record.Bool(false)}); err != nil {
		g.log.Warnw("countdown expiry write failed", "id", rec.ID, "err", err)
		return
	}
	if g.lastExpired == rec.ID {
		return
	}
	g.lastExpired = rec.ID
	metrics.CountdownExpiredTotal.Inc()
	g.log.Infow("countdown expired", "id", rec.ID, "set_by", rec.SetByName())
	if g.notify != nil {
		g.notify.Notify("⏰ Countdown ended. The site is now accessible.")
	}
}

// SetCountdown replaces any active countdown with one ending at target.
// setBy may be empty.
func (g *Gate) SetCountdown(ctx context.Context, target time.Time, setBy string) (*record.Countdown, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	in := record.NewCountdown{TargetDate: record.Time(target)}
	if setBy != "" {
		in.SetBy = record.String(setBy)
	}
	c, err := g.store.SetCountdown(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("set countdown: %w", err)
	}
	metrics.CountdownActive.Set(1)
	g.log.Infow("countdown set", "id", c.ID, "target", target, "set_by", setBy)
	return c, nil
}

// Clear deactivates every countdown and reports whether one was active.
func (g *Gate) Clear(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.store.GetActiveCountdown(ctx)
	if err != nil {
		return false, fmt.Errorf("read active countdown: %w", err)
	}
	if err := g.store.DeactivateAllCountdowns(ctx); err != nil {
		return false, fmt.Errorf("deactivate countdowns: %w", err)
	}
	metrics.CountdownActive.Set(0)
	if rec != nil {
		g.log.Infow("countdown cleared", "id", rec.ID)
	}
	return rec != nil, nil
}
