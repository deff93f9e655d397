// internal/record/store.go
//
// Store contract shared by every backend.
//
// Context
// -------
// The memory, relational, and document backends implement Store
// interchangeably.  Callers never learn which one is live; the store
// switch (internal/store) picks one at boot and may fall back to memory
// when the external backend drops.
//
// Notes
// -----
//   - Lookups and UpdateCountdown return (nil, nil) when the record does not
//     exist.  Absence is a normal outcome, not an error.
//   - Backends wrap connectivity failures with ErrUnavailable so the switch
//     can tell an outage from a logic error.
package record

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable marks a failure to reach the backing database.
	ErrUnavailable = errors.New("store unavailable")

	// ErrDuplicateUsername is returned by CreateUser on a username clash.
	ErrDuplicateUsername = errors.New("username already exists")
)

// Store is the capability set the gate, bot, and HTTP layer depend on.
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u NewUser) (*User, error)

	GetActiveCountdown(ctx context.Context) (*Countdown, error)
	SetCountdown(ctx context.Context, c NewCountdown) (*Countdown, error)
	UpdateCountdown(ctx context.Context, id string, p CountdownPatch) (*Countdown, error)
	DeactivateAllCountdowns(ctx context.Context) error

	GetBotStatus(ctx context.Context) (*BotStatus, error)
	UpdateBotStatus(ctx context.Context, p BotStatusPatch) (*BotStatus, error)
	CreateBotStatus(ctx context.Context, s NewBotStatus) (*BotStatus, error)
}
