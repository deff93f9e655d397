// internal/record/record.go
//
// Persisted record shapes.
//
// Context
// -------
// Three record kinds live in the store:
//
//	users               (id PK, username UNIQUE, password)
//	countdown_settings  (id PK, target_date NULL, is_active, set_by NULL,
//	                     created_at, updated_at)
//	bot_status          (id PK, is_active, last_ping, site_status)
//
// At most one countdown row carries is_active = TRUE.  Rows are never
// deleted; they are soft-deactivated by expiry or an explicit clear.
//
// Notes
// -----
//   - Nullable columns are pointers; callers must nil-check before use.
//   - The `db` tags serve sqlx scans.  The document store keeps its own
//     bson shapes and converts at the edge.
package record

import "time"

// SiteStatus is the coarse availability flag reported by the bot.
type SiteStatus string

const (
	SiteOnline  SiteStatus = "online"
	SiteOffline SiteStatus = "offline"
)

// User is present for schema completeness.  No gate behaviour reads it.
type User struct {
	ID       string `db:"id"       json:"id"`
	Username string `db:"username" json:"username"`
	Password string `db:"password" json:"-"`
}

// Countdown mirrors one row in `countdown_settings`.
type Countdown struct {
	ID         string     `db:"id"          json:"id"`
	TargetDate *time.Time `db:"target_date" json:"targetDate"`
	IsActive   bool       `db:"is_active"   json:"isActive"`
	SetBy      *string    `db:"set_by"      json:"setBy"`
	CreatedAt  time.Time  `db:"created_at"  json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at"  json:"updatedAt"`
}

// SetByName returns the attribution or "" when unset.
func (c *Countdown) SetByName() string {
	if c == nil || c.SetBy == nil {
		return ""
	}
	return *c.SetBy
}

// BotStatusID is the fixed key of the single bot_status record.  Writers
// upsert on it, so concurrent first pings converge on one record.
const BotStatusID = "bot"

// BotStatus mirrors the singleton row in `bot_status`.
type BotStatus struct {
	ID         string     `db:"id"          json:"id"`
	IsActive   bool       `db:"is_active"   json:"isActive"`
	LastPing   time.Time  `db:"last_ping"   json:"lastPing"`
	SiteStatus SiteStatus `db:"site_status" json:"siteStatus"`
}

// NewUser is the insert shape for users.
type NewUser struct {
	Username string
	Password string
}

// NewCountdown is the insert shape for SetCountdown.  The created record is
// always active.
type NewCountdown struct {
	TargetDate *time.Time
	SetBy      *string
}

// CountdownPatch carries a partial update.  Nil fields are left unchanged.
type CountdownPatch struct {
	TargetDate *time.Time
	IsActive   *bool
	SetBy      *string
}

// NewBotStatus is the insert shape for bot_status.  Nil fields take the
// column defaults (active, online).
type NewBotStatus struct {
	IsActive   *bool
	SiteStatus *SiteStatus
}

// BotStatusPatch carries a partial bot-status update.
type BotStatusPatch struct {
	IsActive   *bool
	SiteStatus *SiteStatus
}

// Apply copies the non-nil fields of p onto c.  UpdatedAt is the caller's
// concern.
func (p CountdownPatch) Apply(c *Countdown) {
	if p.TargetDate != nil {
		t := *p.TargetDate
		c.TargetDate = &t
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.SetBy != nil {
		s := *p.SetBy
		c.SetBy = &s
	}
}

// Apply copies the non-nil fields of p onto b.
func (p BotStatusPatch) Apply(b *BotStatus) {
	if p.IsActive != nil {
		b.IsActive = *p.IsActive
	}
	if p.SiteStatus != nil {
		b.SiteStatus = *p.SiteStatus
	}
}

// Defaults resolves the nil fields of n to the column defaults.
func (n NewBotStatus) Defaults() (bool, SiteStatus) {
	active, status := true, SiteOnline
	if n.IsActive != nil {
		active = *n.IsActive
	}
	if n.SiteStatus != nil {
		status = *n.SiteStatus
	}
	return active, status
}

// Pointer helpers for patch construction.

func Bool(v bool) *bool               { return &v }
func String(v string) *string         { return &v }
func Status(v SiteStatus) *SiteStatus { return &v }
func Time(v time.Time) *time.Time     { return &v }
