package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yanizio/reveal/internal/record"
)

func activeCount(s *Store) int {
	n := 0
	for _, c := range s.Countdowns() {
		if c.IsActive {
			n++
		}
	}
	return n
}

func TestSetCountdownDeactivatesPrevious(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.SetCountdown(ctx, record.NewCountdown{
		TargetDate: record.Time(time.Now().Add(time.Hour)),
		SetBy:      record.String("Alice"),
	})
	if err != nil {
		t.Fatalf("SetCountdown: %v", err)
	}
	second, err := s.SetCountdown(ctx, record.NewCountdown{
		TargetDate: record.Time(time.Now().Add(2 * time.Hour)),
		SetBy:      record.String("Bob"),
	})
	if err != nil {
		t.Fatalf("SetCountdown: %v", err)
	}

	got, err := s.GetActiveCountdown(ctx)
	if err != nil || got == nil {
		t.Fatalf("GetActiveCountdown = %v, %v", got, err)
	}
	if got.ID != second.ID || got.ID == first.ID {
		t.Fatalf("active id = %s, want %s", got.ID, second.ID)
	}
	if got.SetByName() != "Bob" {
		t.Fatalf("setBy = %q", got.SetByName())
	}
	if n := activeCount(s); n != 1 {
		t.Fatalf("active records = %d, want 1", n)
	}
	if len(s.Countdowns()) != 2 {
		t.Fatalf("records were deleted, want soft deactivation")
	}
}

func TestSetCountdownConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := time.Now().Add(time.Duration(i+1) * time.Minute)
			if _, err := s.SetCountdown(ctx, record.NewCountdown{TargetDate: &target}); err != nil {
				t.Errorf("SetCountdown: %v", err)
			}
			if n := activeCount(s); n != 1 {
				t.Errorf("observed %d active records", n)
			}
		}(i)
	}
	wg.Wait()

	if n := activeCount(s); n != 1 {
		t.Fatalf("active records = %d, want 1", n)
	}
}

func TestDeactivateAllIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	// No records: no error, no state change.
	if err := s.DeactivateAllCountdowns(ctx); err != nil {
		t.Fatalf("DeactivateAllCountdowns on empty store: %v", err)
	}
	if len(s.Countdowns()) != 0 {
		t.Fatalf("empty deactivate created records")
	}

	if _, err := s.SetCountdown(ctx, record.NewCountdown{TargetDate: record.Time(time.Now().Add(time.Hour))}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeactivateAllCountdowns(ctx); err != nil {
		t.Fatal(err)
	}
	once := s.Countdowns()
	if err := s.DeactivateAllCountdowns(ctx); err != nil {
		t.Fatal(err)
	}
	twice := s.Countdowns()

	if len(once) != 1 || len(twice) != 1 {
		t.Fatalf("record count changed: %d → %d", len(once), len(twice))
	}
	if once[0].IsActive || twice[0].IsActive {
		t.Fatalf("record still active")
	}
	if !once[0].UpdatedAt.Equal(twice[0].UpdatedAt) {
		t.Fatalf("second deactivate touched updatedAt")
	}
	if got, _ := s.GetActiveCountdown(ctx); got != nil {
		t.Fatalf("GetActiveCountdown = %+v, want nil", got)
	}
}

func TestUpdateCountdown(t *testing.T) {
	ctx := context.Background()
	s := New()

	if got, err := s.UpdateCountdown(ctx, "missing", record.CountdownPatch{IsActive: record.Bool(false)}); got != nil || err != nil {
		t.Fatalf("unknown id = %v, %v; want nil, nil", got, err)
	}

	c, _ := s.SetCountdown(ctx, record.NewCountdown{TargetDate: record.Time(time.Now().Add(time.Hour))})
	time.Sleep(2 * time.Millisecond)

	got, err := s.UpdateCountdown(ctx, c.ID, record.CountdownPatch{IsActive: record.Bool(false)})
	if err != nil || got == nil {
		t.Fatalf("UpdateCountdown = %v, %v", got, err)
	}
	if got.IsActive {
		t.Fatalf("record still active")
	}
	if !got.UpdatedAt.After(c.UpdatedAt) {
		t.Fatalf("updatedAt not refreshed")
	}
	if got.TargetDate == nil || !got.TargetDate.Equal(*c.TargetDate) {
		t.Fatalf("untouched field changed")
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	c, _ := s.SetCountdown(ctx, record.NewCountdown{SetBy: record.String("Alice")})
	*c.SetBy = "Mallory"
	c.IsActive = false

	got, _ := s.GetActiveCountdown(ctx)
	if got == nil || got.SetByName() != "Alice" {
		t.Fatalf("stored record mutated through returned pointer: %+v", got)
	}
}

func TestBotStatusLazyCreate(t *testing.T) {
	ctx := context.Background()
	s := New()

	if b, err := s.GetBotStatus(ctx); b != nil || err != nil {
		t.Fatalf("GetBotStatus on empty store = %v, %v", b, err)
	}

	b, err := s.UpdateBotStatus(ctx, record.BotStatusPatch{SiteStatus: record.Status(record.SiteOffline)})
	if err != nil {
		t.Fatal(err)
	}
	if !b.IsActive || b.SiteStatus != record.SiteOffline {
		t.Fatalf("UpdateBotStatus = %+v", b)
	}

	again, _ := s.UpdateBotStatus(ctx, record.BotStatusPatch{IsActive: record.Bool(false)})
	if again.ID != b.ID {
		t.Fatalf("singleton recreated: %s vs %s", again.ID, b.ID)
	}
	if again.IsActive || again.SiteStatus != record.SiteOffline {
		t.Fatalf("patch not applied: %+v", again)
	}
	if again.LastPing.Before(b.LastPing) {
		t.Fatalf("lastPing moved backwards")
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, record.NewUser{Username: "alice", Password: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateUser(ctx, record.NewUser{Username: "alice", Password: "y"}); !errors.Is(err, record.ErrDuplicateUsername) {
		t.Fatalf("duplicate username err = %v", err)
	}
	byID, _ := s.GetUser(ctx, u.ID)
	byName, _ := s.GetUserByUsername(ctx, "alice")
	if byID == nil || byName == nil || byID.ID != byName.ID {
		t.Fatalf("lookups disagree: %+v %+v", byID, byName)
	}
	if missing, _ := s.GetUserByUsername(ctx, "bob"); missing != nil {
		t.Fatalf("unknown username returned %+v", missing)
	}
}
