// internal/store/sqlstore/sqlstore.go
//
// Relational Record Store (sqlx + MySQL).
//
// Context
// -------
// The tables mirror internal/record one-to-one; see Migrations for the DDL.
// Each helper executes parameterised statements against a *sqlx.DB that
// the caller opened with internal/database.
//
// Workflow
// --------
//  1. SetCountdown runs `UPDATE … is_active = FALSE` and the INSERT inside
//     one transaction, so no committed read sees zero or two active rows.
//     A process-local mutex additionally keeps two writers in this process
//     from contending on the same rows.
//  2. UpdateCountdown updates by id, then re-reads the row in the same
//     transaction.  No row means unknown id → (nil, nil).
//  3. bot_status holds one row keyed by record.BotStatusID; writers use
//     INSERT … ON DUPLICATE KEY UPDATE, never read-then-insert.
//  4. Connectivity failures are wrapped with record.ErrUnavailable.
//
// Notes
// -----
//   - Timestamps are written in UTC; the DSN is forced to parseTime=true.
//   - Column lists match the fields in record.*; update both together.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/reveal/internal/record"
)

// Compile-time assertion: *Store satisfies record.Store.
var _ record.Store = (*Store)(nil)

const (
	countdownCols = `id, target_date, is_active, set_by, created_at, updated_at`
	botStatusCols = `id, is_active, last_ping, site_status`
	userCols      = `id, username, password`
)

// Store is safe for concurrent use.
type Store struct {
	db  *sqlx.DB
	mu  sync.Mutex
	now func() time.Time
}

// New wraps an open handle.  The handle is not pinged.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Name identifies the backend in logs and health output.
func (s *Store) Name() string { return "mysql" }

// Ping reports whether the server answers.
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// Close releases the pool.
func (s *Store) Close(context.Context) error { return s.db.Close() }

// Migrations returns the idempotent DDL for every table.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
		    id        CHAR(36)     NOT NULL PRIMARY KEY,
		    username  VARCHAR(191) NOT NULL UNIQUE,
		    password  TEXT         NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS countdown_settings (
		    id           CHAR(36)    NOT NULL PRIMARY KEY,
		    target_date  DATETIME(3) NULL,
		    is_active    TINYINT(1)  NOT NULL DEFAULT 0,
		    set_by       TEXT        NULL,
		    created_at   DATETIME(3) NOT NULL,
		    updated_at   DATETIME(3) NOT NULL,
		    KEY idx_countdown_active (is_active)
		)`,
		`CREATE TABLE IF NOT EXISTS bot_status (
		    id           CHAR(36)    NOT NULL PRIMARY KEY,
		    is_active    TINYINT(1)  NOT NULL DEFAULT 1,
		    last_ping    DATETIME(3) NOT NULL,
		    site_status  VARCHAR(16) NOT NULL DEFAULT 'online'
		)`,
	}
}

// Migrate applies Migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", classify(err))
		}
	}
	return nil
}

// Prepare runs the migrations; the store switch calls it once the server
// answers.
func (s *Store) Prepare(ctx context.Context) error { return s.Migrate(ctx) }

/*──────────────────────────────── users ────────────────────────────────────*/

func (s *Store) GetUser(ctx context.Context, id string) (*record.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = ? LIMIT 1`
	return getOne[record.User](ctx, s.db, q, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*record.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE username = ? LIMIT 1`
	return getOne[record.User](ctx, s.db, q, username)
}

func (s *Store) CreateUser(ctx context.Context, in record.NewUser) (*record.User, error) {
	const q = `INSERT INTO users (` + userCols + `) VALUES (?, ?, ?)`
	u := record.User{ID: uuid.NewString(), Username: in.Username, Password: in.Password}
	if _, err := s.db.ExecContext(ctx, q, u.ID, u.Username, u.Password); err != nil {
		if isDuplicateKey(err) {
			return nil, record.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert user: %w", classify(err))
	}
	return &u, nil
}

/*────────────────────────────── countdowns ─────────────────────────────────*/

// GetActiveCountdown returns the active row or nil.
func (s *Store) GetActiveCountdown(ctx context.Context) (*record.Countdown, error) {
	const q = `
	    SELECT  ` + countdownCols + `
	    FROM    countdown_settings
	    WHERE   is_active = TRUE
	    ORDER BY updated_at DESC
	    LIMIT   1`
	return getOne[record.Countdown](ctx, s.db, q)
}

// SetCountdown deactivates every row and inserts a new active one in one
// transaction.
func (s *Store) SetCountdown(ctx context.Context, in record.NewCountdown) (*record.Countdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := record.Countdown{
		ID:        uuid.NewString(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.SetBy != nil {
		c.SetBy = record.String(*in.SetBy)
	}
	if in.TargetDate != nil {
		c.TargetDate = record.Time(in.TargetDate.UTC())
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, deactivateAllSQL, now); err != nil {
			return err
		}
		const ins = `INSERT INTO countdown_settings (` + countdownCols + `)
		             VALUES (?, ?, TRUE, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, ins, c.ID, c.TargetDate, c.SetBy, c.CreatedAt, c.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set countdown: %w", err)
	}
	return &c, nil
}

const deactivateAllSQL = `
    UPDATE countdown_settings
    SET    is_active = FALSE, updated_at = ?
    WHERE  is_active = TRUE`

// UpdateCountdown applies p to row id and returns the fresh row, or nil when
// id is unknown.
func (s *Store) UpdateCountdown(ctx context.Context, id string, p record.CountdownPatch) (*record.Countdown, error) {
	now := s.now()

	sets := []string{"updated_at = ?"}
	args := []any{now}
	if p.TargetDate != nil {
		sets = append(sets, "target_date = ?")
		args = append(args, p.TargetDate.UTC())
	}
	if p.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *p.IsActive)
	}
	if p.SetBy != nil {
		sets = append(sets, "set_by = ?")
		args = append(args, *p.SetBy)
	}
	args = append(args, id)
	upd := `UPDATE countdown_settings SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	var out *record.Countdown
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if p.IsActive != nil && *p.IsActive {
			const others = `
			    UPDATE countdown_settings
			    SET    is_active = FALSE, updated_at = ?
			    WHERE  is_active = TRUE AND id <> ?`
			if _, err := tx.ExecContext(ctx, others, now, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, upd, args...); err != nil {
			return err
		}
		const sel = `SELECT ` + countdownCols + ` FROM countdown_settings WHERE id = ?`
		var c record.Countdown
		if err := tx.GetContext(ctx, &c, sel, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errNoRow
			}
			return err
		}
		out = &c
		return nil
	})
	if errors.Is(err, errNoRow) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update countdown %s: %w", id, err)
	}
	return out, nil
}

// DeactivateAllCountdowns touches only active rows; a repeat call is a
// no-op.
func (s *Store) DeactivateAllCountdowns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deactivateAllSQL, s.now()); err != nil {
		return fmt.Errorf("deactivate countdowns: %w", classify(err))
	}
	return nil
}

/*────────────────────────────── bot status ─────────────────────────────────*/

// GetBotStatus returns the most recently pinged row.  Only
// record.BotStatusID is ever written, but rows left by older deployments
// may still exist.
func (s *Store) GetBotStatus(ctx context.Context) (*record.BotStatus, error) {
	const q = `SELECT ` + botStatusCols + ` FROM bot_status ORDER BY last_ping DESC LIMIT 1`
	return getOne[record.BotStatus](ctx, s.db, q)
}

// UpdateBotStatus upserts the singleton row: a first call inserts it with
// the column defaults overlaid by p, later calls apply p.  last_ping is
// refreshed either way.
func (s *Store) UpdateBotStatus(ctx context.Context, p record.BotStatusPatch) (*record.BotStatus, error) {
	active, status := record.NewBotStatus(p).Defaults()
	var patchActive, patchStatus any
	if p.IsActive != nil {
		patchActive = *p.IsActive
	}
	if p.SiteStatus != nil {
		patchStatus = string(*p.SiteStatus)
	}

	const q = `
	    INSERT INTO bot_status (` + botStatusCols + `)
	    VALUES (?, ?, ?, ?)
	    ON DUPLICATE KEY UPDATE
	        is_active   = COALESCE(?, is_active),
	        site_status = COALESCE(?, site_status),
	        last_ping   = VALUES(last_ping)`
	if _, err := s.db.ExecContext(ctx, q,
		record.BotStatusID, active, s.now(), string(status),
		patchActive, patchStatus,
	); err != nil {
		return nil, fmt.Errorf("upsert bot status: %w", classify(err))
	}

	const sel = `SELECT ` + botStatusCols + ` FROM bot_status WHERE id = ?`
	b, err := getOne[record.BotStatus](ctx, s.db, sel, record.BotStatusID)
	if err != nil {
		return nil, fmt.Errorf("read bot status: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("read bot status: row %q missing after upsert", record.BotStatusID)
	}
	return b, nil
}

// CreateBotStatus writes the singleton row, replacing its fields when it
// already exists.
func (s *Store) CreateBotStatus(ctx context.Context, in record.NewBotStatus) (*record.BotStatus, error) {
	active, status := in.Defaults()
	b := record.BotStatus{
		ID:         record.BotStatusID,
		IsActive:   active,
		LastPing:   s.now(),
		SiteStatus: status,
	}
	const q = `
	    INSERT INTO bot_status (` + botStatusCols + `)
	    VALUES (?, ?, ?, ?)
	    ON DUPLICATE KEY UPDATE
	        is_active   = VALUES(is_active),
	        site_status = VALUES(site_status),
	        last_ping   = VALUES(last_ping)`
	if _, err := s.db.ExecContext(ctx, q, b.ID, b.IsActive, b.LastPing, string(b.SiteStatus)); err != nil {
		return nil, fmt.Errorf("insert bot status: %w", classify(err))
	}
	return &b, nil
}

/*──────────────────────────────── helpers ──────────────────────────────────*/

var errNoRow = errors.New("no row")

// getOne scans a single row into T, mapping sql.ErrNoRows to (nil, nil).
func getOne[T any](ctx context.Context, db *sqlx.DB, q string, args ...any) (*T, error) {
	var out T
	if err := db.GetContext(ctx, &out, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &out, nil
}

// inTx runs fn in a transaction and commits, or rolls back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, errNoRow) {
			return err
		}
		return classify(err)
	}
	return classify(tx.Commit())
}
