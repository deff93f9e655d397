package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/yanizio/reveal/internal/record"
)

type userDoc struct {
	ID       string `bson:"_id"`
	Username string `bson:"username"`
	Password string `bson:"password"`
}

func (d userDoc) record() record.User {
	return record.User{ID: d.ID, Username: d.Username, Password: d.Password}
}

type countdownDoc struct {
	ID         string     `bson:"_id"`
	TargetDate *time.Time `bson:"target_date"`
	IsActive   bool       `bson:"is_active"`
	SetBy      *string    `bson:"set_by"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

func newCountdownDoc(id string, in record.NewCountdown, now time.Time) countdownDoc {
	d := countdownDoc{ID: id, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if in.TargetDate != nil {
		d.TargetDate = record.Time(in.TargetDate.UTC())
	}
	if in.SetBy != nil {
		d.SetBy = record.String(*in.SetBy)
	}
	return d
}

func (d countdownDoc) record() record.Countdown {
	return record.Countdown{
		ID:         d.ID,
		TargetDate: d.TargetDate,
		IsActive:   d.IsActive,
		SetBy:      d.SetBy,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type botStatusDoc struct {
	ID         string    `bson:"_id"`
	IsActive   bool      `bson:"is_active"`
	LastPing   time.Time `bson:"last_ping"`
	SiteStatus string    `bson:"site_status"`
}

func (d botStatusDoc) record() record.BotStatus {
	return record.BotStatus{
		ID:         d.ID,
		IsActive:   d.IsActive,
		LastPing:   d.LastPing,
		SiteStatus: record.SiteStatus(d.SiteStatus),
	}
}

func activeFilter() bson.M { return bson.M{"is_active": true} }

func deactivateUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{"is_active": false, "updated_at": now}}
}

// patchUpdate builds the $set document for a CountdownPatch.
func patchUpdate(p record.CountdownPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.TargetDate != nil {
		set["target_date"] = p.TargetDate.UTC()
	}
	if p.IsActive != nil {
		set["is_active"] = *p.IsActive
	}
	if p.SetBy != nil {
		set["set_by"] = *p.SetBy
	}
	return bson.M{"$set": set}
}

// botStatusUpsert sets the fields p names and fills the others with the
// record defaults on insert only.
func botStatusUpsert(p record.BotStatusPatch, now time.Time) bson.M {
	active, status := record.NewBotStatus(p).Defaults()
	set := bson.M{"last_ping": now}
	onInsert := bson.M{}
	if p.IsActive != nil {
		set["is_active"] = active
	} else {
		onInsert["is_active"] = active
	}
	if p.SiteStatus != nil {
		set["site_status"] = string(status)
	} else {
		onInsert["site_status"] = string(status)
	}
	upd := bson.M{"$set": set}
	if len(onInsert) > 0 {
		upd["$setOnInsert"] = onInsert
	}
	return upd
}

// classify wraps connectivity failures with record.ErrUnavailable.
func classify(err error) error {
	if err == nil || errors.Is(err, record.ErrUnavailable) {
		return err
	}
	var sse topology.ServerSelectionError
	switch {
	case mongo.IsNetworkError(err),
		mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &sse):
		return fmt.Errorf("%w: %w", record.ErrUnavailable, err)
	}
	return err
}
