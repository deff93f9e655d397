package command

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap/zaptest"

	"github.com/yanizio/reveal/internal/gate"
	"github.com/yanizio/reveal/internal/record"
	"github.com/yanizio/reveal/internal/store/memory"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func TestParseTarget(t *testing.T) {
	loc := kolkata(t)
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"31/12/2099_11:59 PM", time.Date(2099, 12, 31, 23, 59, 0, 0, loc), true},
		{"25/12/2030_06:00 am", time.Date(2030, 12, 25, 6, 0, 0, 0, loc), true},
		{"01/01/2030_12:00 AM", time.Date(2030, 1, 1, 0, 0, 0, 0, loc), true},
		{"01/01/2030_12:30PM", time.Date(2030, 1, 1, 12, 30, 0, 0, loc), true},
		{"1/2/2030_9:05 PM", time.Date(2030, 2, 1, 21, 5, 0, 0, loc), true},
		{"not-a-date", time.Time{}, false},
		{"31/02/2030_10:00 AM", time.Time{}, false},
		{"10/10/2030_13:00 PM", time.Time{}, false},
		{"10/10/2030_00:10 AM", time.Time{}, false},
		{"10/10/2030 10:00 AM", time.Time{}, false},
		{"10/10/2030_10:60 AM", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseTarget(tt.raw, loc)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatRemaining(t *testing.T) {
	d := 2*24*time.Hour + 3*time.Hour + 4*time.Minute + 59*time.Second
	if got := FormatRemaining(d); got != "2d 3h 4m" {
		t.Fatalf("got %q", got)
	}
	if got := FormatRemaining(-time.Second); got != "0d 0h 0m" {
		t.Fatalf("negative: %q", got)
	}
}

func newHandler(t *testing.T, now time.Time) (*Handler, *memory.Store) {
	t.Helper()
	mem := memory.New()
	log := zaptest.NewLogger(t).Sugar()
	g := gate.New(mem, log, gate.WithClock(func() time.Time { return now }))
	return New(g, mem, kolkata(t), log), mem
}

func TestSetTimerFutureDate(t *testing.T) {
	h, mem := newHandler(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))

	res, err := h.SetTimer(context.Background(), "31/12/2099_11:59 PM", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2099, 12, 31, 18, 29, 0, 0, time.UTC)
	if !res.Target.Equal(want) {
		t.Fatalf("target %v, want %v", res.Target.UTC(), want)
	}
	rec, _ := mem.GetActiveCountdown(context.Background())
	if rec == nil || rec.SetByName() != "Alice" || !rec.TargetDate.Equal(want) {
		t.Fatalf("stored %+v", rec)
	}
}

func TestSetTimerRejectsWithoutMutation(t *testing.T) {
	h, mem := newHandler(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))

	for _, raw := range []string{"not-a-date", "", "01/01/2020_10:00 AM"} {
		_, err := h.SetTimer(context.Background(), raw, "Mallory")
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%q: err = %v, want ValidationError", raw, err)
		}
	}
	if n := len(mem.Countdowns()); n != 0 {
		t.Fatalf("store mutated: %d countdowns", n)
	}
}

func TestUnlockNow(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))

	cleared, err := h.UnlockNow(ctx, "Bob")
	if err != nil || cleared {
		t.Fatalf("empty unlock = %v, %v", cleared, err)
	}
	if _, err := h.SetTimer(ctx, "31/12/2099_11:59 PM", "Alice"); err != nil {
		t.Fatal(err)
	}
	cleared, err = h.UnlockNow(ctx, "Bob")
	if err != nil || !cleared {
		t.Fatalf("unlock = %v, %v", cleared, err)
	}
}

func TestStatusPingsBotStatus(t *testing.T) {
	ctx := context.Background()
	h, mem := newHandler(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))

	rep, err := h.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.BotActive || !rep.State.Accessible {
		t.Fatalf("report %+v", rep)
	}
	bs, _ := mem.GetBotStatus(ctx)
	if bs == nil || !bs.IsActive || bs.SiteStatus != record.SiteOnline {
		t.Fatalf("bot status %+v", bs)
	}
}
