// internal/store/switch.go
//
// Backend selection and degraded-mode fallback.
//
// Context
// -------
// The service runs against one external database (MySQL or MongoDB) when
// one is configured and reachable, and against the in-memory store
// otherwise.  Switch is the single accessor every caller goes through:
// it is built once in main and injected by reference, never reached
// through a package global.
//
// Workflow
// --------
//  1. New probes the external backend once.  A failed probe starts the
//     switch on memory.  The first successful probe also runs Prepare
//     (migrations, indexes) when the backend implements Preparer.
//  2. Each Store call runs on Current().  If the external backend fails
//     with record.ErrUnavailable, the switch flips to memory and re-runs
//     the call there, so callers see no outage.
//  3. Run re-probes the external backend every ProbeInterval while on
//     memory and swaps it back when it answers.  Concurrent probes are
//     collapsed with singleflight.
//
// Notes
// -----
//   - Memory-held data is not copied back on recovery.  Degraded mode
//     trades durability for availability.
//   - The selected strategy lives in an atomic.Pointer; backends are
//     never mutated in place.
package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/reveal/internal/metrics"
	"github.com/yanizio/reveal/internal/record"
)

// Backend is a Record Store with a lifecycle.
type Backend interface {
	record.Store
	Name() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Preparer is implemented by backends that create schema or indexes.
// Prepare runs once, after the first successful ping.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Options tunes probing and per-call deadlines.
type Options struct {
	ProbeInterval time.Duration
	OpTimeout     time.Duration
}

type slot struct{ b Backend }

// Switch implements record.Store over the selected backend.
type Switch struct {
	external Backend // nil when no external database is configured
	memory   Backend
	extSlot  *slot
	memSlot  *slot
	current  atomic.Pointer[slot]

	probes   singleflight.Group
	prepared atomic.Bool
	opts     Options
	log      *zap.SugaredLogger
}

// Compile-time assertion: *Switch satisfies record.Store.
var _ record.Store = (*Switch)(nil)

// New selects the initial backend.  external may be nil.
func New(ctx context.Context, external, memory Backend, opts Options, log *zap.SugaredLogger) *Switch {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 5 * time.Second
	}
	s := &Switch{
		external: external,
		memory:   memory,
		memSlot:  &slot{b: memory},
		opts:     opts,
		log:      log,
	}
	s.current.Store(s.memSlot)
	metrics.StoreExternalActive.Set(0)

	if external == nil {
		log.Infow("store selected", "backend", memory.Name(), "reason", "no external database configured")
		return s
	}
	s.extSlot = &slot{b: external}
	if err := s.Probe(ctx); err != nil {
		log.Warnw("external store unreachable, starting on memory",
			"backend", external.Name(), "err", err)
		return s
	}
	log.Infow("store selected", "backend", external.Name())
	return s
}

// Current returns the backend serving calls right now.
func (s *Switch) Current() Backend { return s.current.Load().b }

// Name reports the current backend name.
func (s *Switch) Name() string { return s.Current().Name() }

// Degraded reports whether an external backend is configured but the
// switch is serving from memory.
func (s *Switch) Degraded() bool {
	return s.external != nil && s.current.Load() == s.memSlot
}

// Probe pings the external backend and swaps it in on success.
func (s *Switch) Probe(ctx context.Context) error {
	if s.external == nil {
		return nil
	}
	_, err, _ := s.probes.Do("probe", func() (any, error) {
		pctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
		defer cancel()
		if err := s.external.Ping(pctx); err != nil {
			return nil, err
		}
		return nil, s.prepare(pctx)
	})
	if err != nil {
		return err
	}
	if s.current.CompareAndSwap(s.memSlot, s.extSlot) {
		metrics.StoreExternalActive.Set(1)
		s.log.Infow("external store online", "backend", s.external.Name())
	}
	return nil
}

func (s *Switch) prepare(ctx context.Context) error {
	p, ok := s.external.(Preparer)
	if !ok || s.prepared.Load() {
		return nil
	}
	if err := p.Prepare(ctx); err != nil {
		return err
	}
	s.prepared.Store(true)
	s.log.Infow("external store prepared", "backend", s.external.Name())
	return nil
}

// Run re-probes on ProbeInterval while degraded.  It returns when ctx is
// cancelled.
func (s *Switch) Run(ctx context.Context) error {
	if s.external == nil {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(s.opts.ProbeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if !s.Degraded() {
				continue
			}
			if err := s.Probe(ctx); err != nil {
				s.log.Debugw("external store still unreachable", "err", err)
			}
		}
	}
}

// Close releases the external backend.
func (s *Switch) Close(ctx context.Context) error {
	if s.external == nil {
		return nil
	}
	return s.external.Close(ctx)
}

// degrade flips to memory if b is still current.
func (s *Switch) degrade(b Backend, op string, err error) {
	if s.extSlot == nil || s.extSlot.b != b {
		return
	}
	if s.current.CompareAndSwap(s.extSlot, s.memSlot) {
		metrics.StoreFallbackTotal.Inc()
		metrics.StoreExternalActive.Set(0)
		s.log.Warnw("external store unavailable, falling back to memory",
			"backend", b.Name(), "op", op, "err", err)
	}
}

// call runs fn on the current backend and retries on memory when the
// external backend is unreachable.
func call[T any](ctx context.Context, s *Switch, op string, fn func(context.Context, record.Store) (T, error)) (T, error) {
	b := s.Current()
	if b == s.memory {
		return fn(ctx, b)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	v, err := fn(opCtx, b)
	cancel()
	if err == nil || !errors.Is(err, record.ErrUnavailable) || ctx.Err() != nil {
		return v, err
	}
	s.degrade(b, op, err)
	return fn(ctx, s.memory)
}

type none struct{}

/*──────────────────────────── record.Store ────────────────────────────────*/

func (s *Switch) GetUser(ctx context.Context, id string) (*record.User, error) {
	return call(ctx, s, "GetUser", func(ctx context.Context, b record.Store) (*record.User, error) {
		return b.GetUser(ctx, id)
	})
}

func (s *Switch) GetUserByUsername(ctx context.Context, username string) (*record.User, error) {
	return call(ctx, s, "GetUserByUsername", func(ctx context.Context, b record.Store) (*record.User, error) {
		return b.GetUserByUsername(ctx, username)
	})
}

func (s *Switch) CreateUser(ctx context.Context, u record.NewUser) (*record.User, error) {
	return call(ctx, s, "CreateUser", func(ctx context.Context, b record.Store) (*record.User, error) {
		return b.CreateUser(ctx, u)
	})
}

func (s *Switch) GetActiveCountdown(ctx context.Context) (*record.Countdown, error) {
	return call(ctx, s, "GetActiveCountdown", func(ctx context.Context, b record.Store) (*record.Countdown, error) {
		return b.GetActiveCountdown(ctx)
	})
}

func (s *Switch) SetCountdown(ctx context.Context, c record.NewCountdown) (*record.Countdown, error) {
	return call(ctx, s, "SetCountdown", func(ctx context.Context, b record.Store) (*record.Countdown, error) {
		return b.SetCountdown(ctx, c)
	})
}

func (s *Switch) UpdateCountdown(ctx context.Context, id string, p record.CountdownPatch) (*record.Countdown, error) {
	return call(ctx, s, "UpdateCountdown", func(ctx context.Context, b record.Store) (*record.Countdown, error) {
		return b.UpdateCountdown(ctx, id, p)
	})
}

func (s *Switch) DeactivateAllCountdowns(ctx context.Context) error {
	_, err := call(ctx, s, "DeactivateAllCountdowns", func(ctx context.Context, b record.Store) (none, error) {
		return none{}, b.DeactivateAllCountdowns(ctx)
	})
	return err
}

func (s *Switch) GetBotStatus(ctx context.Context) (*record.BotStatus, error) {
	return call(ctx, s, "GetBotStatus", func(ctx context.Context, b record.Store) (*record.BotStatus, error) {
		return b.GetBotStatus(ctx)
	})
}

func (s *Switch) UpdateBotStatus(ctx context.Context, p record.BotStatusPatch) (*record.BotStatus, error) {
	return call(ctx, s, "UpdateBotStatus", func(ctx context.Context, b record.Store) (*record.BotStatus, error) {
		return b.UpdateBotStatus(ctx, p)
	})
}

func (s *Switch) CreateBotStatus(ctx context.Context, in record.NewBotStatus) (*record.BotStatus, error) {
	return call(ctx, s, "CreateBotStatus", func(ctx context.Context, b record.Store) (*record.BotStatus, error) {
		return b.CreateBotStatus(ctx, in)
	})
}
