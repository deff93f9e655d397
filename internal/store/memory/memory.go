// Package memory is the in-process Record Store.  It backs development
// runs, and it is the degraded-mode target when the external database is
// unreachable.  Data does not survive a restart and is not shared across
// instances.
//
// One mutex guards every map, so SetCountdown's deactivate+insert sequence
// is atomic with respect to every other call.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yanizio/reveal/internal/record"
)

// Compile-time assertion: *Store satisfies record.Store.
var _ record.Store = (*Store)(nil)

// Store is safe for concurrent use.  The zero value is not usable; call New.
type Store struct {
	mu         sync.Mutex
	users      map[string]record.User
	byUsername map[string]string // username → id
	countdowns map[string]record.Countdown
	botStatus  *record.BotStatus
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]record.User),
		byUsername: make(map[string]string),
		countdowns: make(map[string]record.Countdown),
		now:        time.Now,
	}
}

// Name identifies the backend in logs and health output.
func (s *Store) Name() string { return "memory" }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

/*──────────────────────────────── users ────────────────────────────────────*/

func (s *Store) GetUser(_ context.Context, id string) (*record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, in record.NewUser) (*record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[in.Username]; taken {
		return nil, record.ErrDuplicateUsername
	}
	u := record.User{
		ID:       uuid.NewString(),
		Username: in.Username,
		Password: in.Password,
	}
	s.users[u.ID] = u
	s.byUsername[u.Username] = u.ID
	return &u, nil
}

/*────────────────────────────── countdowns ─────────────────────────────────*/

// GetActiveCountdown returns a copy of the active record, or nil.
func (s *Store) GetActiveCountdown(context.Context) (*record.Countdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.countdowns {
		if c.IsActive {
			return cloneCountdown(c), nil
		}
	}
	return nil, nil
}

// SetCountdown deactivates every record and inserts a new active one under
// a single lock hold.
func (s *Store) SetCountdown(_ context.Context, in record.NewCountdown) (*record.Countdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.deactivateLocked(now)

	c := record.Countdown{
		ID:        uuid.NewString(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.TargetDate != nil {
		t := *in.TargetDate
		c.TargetDate = &t
	}
	if in.SetBy != nil {
		by := *in.SetBy
		c.SetBy = &by
	}
	s.countdowns[c.ID] = c
	return cloneCountdown(c), nil
}

// UpdateCountdown applies p to the record with id.  Unknown ids yield nil.
func (s *Store) UpdateCountdown(_ context.Context, id string, p record.CountdownPatch) (*record.Countdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.countdowns[id]
	if !ok {
		return nil, nil
	}
	if p.IsActive != nil && *p.IsActive && !c.IsActive {
		// Re-activating one record must not leave a second active.
		s.deactivateLocked(s.now())
	}
	p.Apply(&c)
	c.UpdatedAt = s.now()
	s.countdowns[id] = c
	return cloneCountdown(c), nil
}

// DeactivateAllCountdowns is idempotent.
func (s *Store) DeactivateAllCountdowns(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivateLocked(s.now())
	return nil
}

// deactivateLocked touches only active rows, so a repeat call changes
// nothing observable.
func (s *Store) deactivateLocked(now time.Time) {
	for id, c := range s.countdowns {
		if !c.IsActive {
			continue
		}
		c.IsActive = false
		c.UpdatedAt = now
		s.countdowns[id] = c
	}
}

// Countdowns returns a snapshot of every record, active or not.
func (s *Store) Countdowns() []record.Countdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Countdown, 0, len(s.countdowns))
	for _, c := range s.countdowns {
		out = append(out, *cloneCountdown(c))
	}
	return out
}

/*────────────────────────────── bot status ─────────────────────────────────*/

func (s *Store) GetBotStatus(context.Context) (*record.BotStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.botStatus == nil {
		return nil, nil
	}
	b := *s.botStatus
	return &b, nil
}

// UpdateBotStatus creates the singleton on first use, then applies p and
// refreshes LastPing.
func (s *Store) UpdateBotStatus(_ context.Context, p record.BotStatusPatch) (*record.BotStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.botStatus == nil {
		s.createBotStatusLocked(record.NewBotStatus{})
	}
	b := *s.botStatus
	p.Apply(&b)
	b.LastPing = s.now()
	s.botStatus = &b
	out := b
	return &out, nil
}

func (s *Store) CreateBotStatus(_ context.Context, in record.NewBotStatus) (*record.BotStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.createBotStatusLocked(in)
	return &b, nil
}

func (s *Store) createBotStatusLocked(in record.NewBotStatus) record.BotStatus {
	active, status := in.Defaults()
	b := record.BotStatus{
		ID:         record.BotStatusID,
		IsActive:   active,
		LastPing:   s.now(),
		SiteStatus: status,
	}
	s.botStatus = &b
	return b
}

// cloneCountdown deep-copies the pointer fields so callers cannot mutate
// stored state.
func cloneCountdown(c record.Countdown) *record.Countdown {
	out := c
	if c.TargetDate != nil {
		t := *c.TargetDate
		out.TargetDate = &t
	}
	if c.SetBy != nil {
		by := *c.SetBy
		out.SetBy = &by
	}
	return &out
}
