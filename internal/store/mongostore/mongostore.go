// internal/store/mongostore/mongostore.go
//
// Document Record Store (MongoDB).
//
// Context
// -------
// One collection per record kind: `users`, `countdown_settings`, and
// `bot_status`.  Documents use string UUIDs for `_id` so identifiers look
// the same across every backend.
//
// Workflow
// --------
//  1. Open builds a client without dialing; the store switch pings it.
//  2. EnsureIndexes installs a unique index on users.username and a partial
//     unique index on countdown_settings.is_active filtered to `true`, so
//     the server itself refuses a second active countdown.
//  3. Countdown writers hold s.mu for writing across the deactivate and
//     insert (or reactivate) steps, and GetActiveCountdown holds it for
//     reading, so no read in this process lands between the two writes.
//     Standalone servers have no multi-document transactions; the lock
//     plus the partial index keep exactly one record active.
//  4. When the second write fails, the record that was active before is
//     switched back on before the error is returned.
//  5. Bot status lives under record.BotStatusID and is only ever upserted.
//
// Notes
// -----
//   - Connectivity failures are wrapped with record.ErrUnavailable.
//   - bson shapes live in doc.go; conversion happens at the edge.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/yanizio/reveal/internal/record"
)

// Compile-time assertion: *Store satisfies record.Store.
var _ record.Store = (*Store)(nil)

const (
	collUsers      = "users"
	collCountdowns = "countdown_settings"
	collBotStatus  = "bot_status"
)

// Store is safe for concurrent use.
type Store struct {
	client     *mongo.Client
	users      *mongo.Collection
	countdowns *mongo.Collection
	botStatus  *mongo.Collection

	mu  sync.RWMutex
	now func() time.Time
}

// Open creates a client for uri and binds the collections in database.
// timeout bounds server selection and connection setup.
func Open(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return newStore(client.Database(database)), nil
}

func newStore(db *mongo.Database) *Store {
	return &Store{
		client:     db.Client(),
		users:      db.Collection(collUsers),
		countdowns: db.Collection(collCountdowns),
		botStatus:  db.Collection(collBotStatus),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the backend in logs and health output.
func (s *Store) Name() string { return "mongo" }

// Ping asks the primary to answer.
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// EnsureIndexes is idempotent; existing indexes with the same keys and options are
// left alone by the server.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	}); err != nil {
		return fmt.Errorf("users index: %w", classify(err))
	}
	if _, err := s.countdowns.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "is_active", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(activeFilter()).
			SetName("one_active_countdown"),
	}); err != nil {
		return fmt.Errorf("countdown index: %w", classify(err))
	}
	return nil
}

// Prepare is EnsureIndexes under the name the store switch looks for.
func (s *Store) Prepare(ctx context.Context) error { return s.EnsureIndexes(ctx) }

/*──────────────────────────────── users ────────────────────────────────────*/

func (s *Store) GetUser(ctx context.Context, id string) (*record.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*record.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*record.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, classify(err)
	}
	u := d.record()
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, in record.NewUser) (*record.User, error) {
	d := userDoc{ID: uuid.NewString(), Username: in.Username, Password: in.Password}
	if _, err := s.users.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, record.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert user: %w", classify(err))
	}
	u := d.record()
	return &u, nil
}

/*────────────────────────────── countdowns ─────────────────────────────────*/

func (s *Store) GetActiveCountdown(ctx context.Context) (*record.Countdown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.activeDoc(ctx)
	if err != nil || d == nil {
		return nil, err
	}
	c := d.record()
	return &c, nil
}

// activeDoc reads the active countdown.  Callers hold s.mu.
func (s *Store) activeDoc(ctx context.Context) (*countdownDoc, error) {
	var d countdownDoc
	if err := s.countdowns.FindOne(ctx, activeFilter()).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &d, nil
}

// reactivate switches prev back on after a failed replacement.  Callers
// hold s.mu.
func (s *Store) reactivate(ctx context.Context, prev *countdownDoc, cause error) error {
	if prev == nil {
		return cause
	}
	upd := bson.M{"$set": bson.M{"is_active": true, "updated_at": prev.UpdatedAt}}
	if _, err := s.countdowns.UpdateOne(ctx, bson.M{"_id": prev.ID}, upd); err != nil {
		return errors.Join(cause, fmt.Errorf("reactivate countdown %s: %w", prev.ID, classify(err)))
	}
	return cause
}

func (s *Store) SetCountdown(ctx context.Context, in record.NewCountdown) (*record.Countdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.activeDoc(ctx)
	if err != nil {
		return nil, fmt.Errorf("read active countdown: %w", err)
	}
	now := s.now()
	if _, err := s.countdowns.UpdateMany(ctx, activeFilter(), deactivateUpdate(now)); err != nil {
		return nil, fmt.Errorf("deactivate countdowns: %w", classify(err))
	}
	d := newCountdownDoc(uuid.NewString(), in, now)
	if _, err := s.countdowns.InsertOne(ctx, d); err != nil {
		return nil, s.reactivate(ctx, prev, fmt.Errorf("insert countdown: %w", classify(err)))
	}
	c := d.record()
	return &c, nil
}

func (s *Store) UpdateCountdown(ctx context.Context, id string, p record.CountdownPatch) (*record.Countdown, error) {
	now := s.now()
	var prev *countdownDoc
	if p.IsActive != nil && *p.IsActive {
		s.mu.Lock()
		defer s.mu.Unlock()

		cur, err := s.activeDoc(ctx)
		if err != nil {
			return nil, fmt.Errorf("read active countdown: %w", err)
		}
		if cur != nil && cur.ID != id {
			prev = cur
		}
		others := bson.M{"is_active": true, "_id": bson.M{"$ne": id}}
		if _, err := s.countdowns.UpdateMany(ctx, others, deactivateUpdate(now)); err != nil {
			return nil, fmt.Errorf("deactivate countdowns: %w", classify(err))
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d countdownDoc
	err := s.countdowns.FindOneAndUpdate(ctx, bson.M{"_id": id}, patchUpdate(p, now), opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if rerr := s.reactivate(ctx, prev, nil); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	}
	if err != nil {
		return nil, s.reactivate(ctx, prev, fmt.Errorf("update countdown %s: %w", id, classify(err)))
	}
	c := d.record()
	return &c, nil
}

func (s *Store) DeactivateAllCountdowns(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.countdowns.UpdateMany(ctx, activeFilter(), deactivateUpdate(s.now())); err != nil {
		return fmt.Errorf("deactivate countdowns: %w", classify(err))
	}
	return nil
}

/*────────────────────────────── bot status ─────────────────────────────────*/

// GetBotStatus returns the most recently pinged record.  Only
// record.BotStatusID is ever written, but documents left by older
// deployments may still exist.
func (s *Store) GetBotStatus(ctx context.Context) (*record.BotStatus, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "last_ping", Value: -1}})
	var d botStatusDoc
	if err := s.botStatus.FindOne(ctx, bson.M{}, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, classify(err)
	}
	b := d.record()
	return &b, nil
}

// UpdateBotStatus upserts the singleton: fields named by p are set, the
// rest take their defaults only when the document is new.
func (s *Store) UpdateBotStatus(ctx context.Context, p record.BotStatusPatch) (*record.BotStatus, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var d botStatusDoc
	err := s.botStatus.FindOneAndUpdate(ctx, bson.M{"_id": record.BotStatusID}, botStatusUpsert(p, s.now()), opts).Decode(&d)
	if err != nil {
		return nil, fmt.Errorf("upsert bot status: %w", classify(err))
	}
	b := d.record()
	return &b, nil
}

// CreateBotStatus writes the singleton, replacing its fields when it
// already exists.
func (s *Store) CreateBotStatus(ctx context.Context, in record.NewBotStatus) (*record.BotStatus, error) {
	active, status := in.Defaults()
	d := botStatusDoc{
		ID:         record.BotStatusID,
		IsActive:   active,
		LastPing:   s.now(),
		SiteStatus: string(status),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.botStatus.ReplaceOne(ctx, bson.M{"_id": d.ID}, d, opts); err != nil {
		return nil, fmt.Errorf("insert bot status: %w", classify(err))
	}
	b := d.record()
	return &b, nil
}
