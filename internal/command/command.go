// internal/command/command.go
//
// Transport-agnostic command handlers: set-timer, unlock-now, status.
//
// Context
// -------
// The chat bot (internal/telegram) is the only caller today, but nothing
// here knows about Telegram.  Handlers validate input, call the gate, and
// return plain values that the transport renders.
//
// Workflow
// --------
//  1. SetTimer checks the argument shape with go-playground/validator,
//     parses it with ParseTarget in the configured location, and rejects
//     anything not strictly after the gate clock.  Rejections are
//     *ValidationError and never touch the store.
//  2. UnlockNow clears every countdown and reports whether one was active.
//  3. Status pings the bot-status record and returns the gate state.
//
// Notes
// -----
//   - BotActive is always true in a report; only a live bot calls Status.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/reveal/internal/gate"
	"github.com/yanizio/reveal/internal/record"
)

// ValidationError carries a message safe to show the command caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Gate is the subset of *gate.Gate the handlers drive.
type Gate interface {
	Now() time.Time
	Evaluate(ctx context.Context) (gate.State, error)
	SetCountdown(ctx context.Context, target time.Time, setBy string) (*record.Countdown, error)
	Clear(ctx context.Context) (bool, error)
}

// BotStatusWriter records bot liveness.
type BotStatusWriter interface {
	UpdateBotStatus(ctx context.Context, p record.BotStatusPatch) (*record.BotStatus, error)
}

type setTimerArgs struct {
	Raw         string `validate:"required,max=64"`
	RequestedBy string `validate:"max=128"`
}

// SetResult describes a freshly created countdown.
type SetResult struct {
	Countdown *record.Countdown
	Target    time.Time
	Remaining time.Duration
	SetBy     string
}

// StatusReport is the answer to a status command.
type StatusReport struct {
	State     gate.State
	BotActive bool
}

// Handler is safe for concurrent use.
type Handler struct {
	gate     Gate
	bots     BotStatusWriter
	loc      *time.Location
	validate *validator.Validate
	log      *zap.SugaredLogger
}

// New returns a Handler interpreting dates in loc.
func New(g Gate, bots BotStatusWriter, loc *time.Location, log *zap.SugaredLogger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{gate: g, bots: bots, loc: loc, validate: validator.New(), log: log}
}

// Location is the zone set-timer input is read in.
func (h *Handler) Location() *time.Location { return h.loc }

// SetTimer parses raw and starts a countdown attributed to requestedBy.
func (h *Handler) SetTimer(ctx context.Context, raw, requestedBy string) (*SetResult, error) {
	args := setTimerArgs{Raw: strings.TrimSpace(raw), RequestedBy: requestedBy}
	if err := h.validate.Struct(args); err != nil {
		return nil, &ValidationError{Msg: "Please provide time in format: " + Layout}
	}

	target, ok := ParseTarget(args.Raw, h.loc)
	if !ok {
		return nil, &ValidationError{Msg: "Invalid time format. Please use: " + Layout}
	}
	now := h.gate.Now()
	if !target.After(now) {
		return nil, &ValidationError{Msg: "Target time must be in the future!"}
	}

	c, err := h.gate.SetCountdown(ctx, target, requestedBy)
	if err != nil {
		return nil, err
	}
	return &SetResult{
		Countdown: c,
		Target:    target,
		Remaining: target.Sub(now),
		SetBy:     requestedBy,
	}, nil
}

// UnlockNow clears any countdown.  It reports whether one was active.
func (h *Handler) UnlockNow(ctx context.Context, requestedBy string) (bool, error) {
	cleared, err := h.gate.Clear(ctx)
	if err != nil {
		return false, err
	}
	h.log.Infow("unlock requested", "by", requestedBy, "cleared", cleared)
	return cleared, nil
}

// Status records a bot ping and returns the current gate state.
func (h *Handler) Status(ctx context.Context) (StatusReport, error) {
	if h.bots != nil {
		if _, err := h.bots.UpdateBotStatus(ctx, record.BotStatusPatch{
			IsActive:   record.Bool(true),
			SiteStatus: record.Status(record.SiteOnline),
		}); err != nil {
			h.log.Warnw("bot status ping failed", "err", err)
		}
	}
	st, err := h.gate.Evaluate(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("status: %w", err)
	}
	return StatusReport{State: st, BotActive: true}, nil
}
