// Package store binds spec.md's abstract document-store collaborator
// (insert_one/update_one/find_one/find with a filter/sort/limit DSL, and
// duplicate-key detection) to MongoDB via the official driver, mirroring
// how the original Rust source used mongodb::sync::Collection.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/defensio-labs/coredrill/internal/domain"
)

// Collections names the four collections spec.md §6 enumerates, with
// spec.md's defaults, overridable the way the original's MongodbConfig
// allowed (e.g. to point at a staging database without a schema change).
type Collections struct {
	Config    string
	Address   string
	Challenge string
	Submit    string
}

// DefaultCollections returns spec.md §6's collection names.
func DefaultCollections() Collections {
	return Collections{
		Config:    "config",
		Address:   "address",
		Challenge: "challenge",
		Submit:    "submit",
	}
}

// Store holds the Mongo client/database handle and the four typed
// collections the core operates over.
type Store struct {
	Client *mongo.Client
	DB     *mongo.Database

	Config    *Collection[domain.Config]
	Address   *Collection[domain.Address]
	Challenge *Collection[domain.Challenge]
	Submit    *Collection[domain.Solution]
}

// Connect dials mongoURL and selects dbName (defaulting to "defensio" per
// spec.md §6 when empty) and wires up the four typed collections using
// names, or spec.md's defaults when names is the zero value.
func Connect(ctx context.Context, mongoURL, dbName string, names Collections) (*Store, error) {
	if dbName == "" {
		dbName = "defensio"
	}
	if names == (Collections{}) {
		names = DefaultCollections()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	return &Store{
		Client:    client,
		DB:        db,
		Config:    NewCollection[domain.Config](db, names.Config),
		Address:   NewCollection[domain.Address](db, names.Address),
		Challenge: NewCollection[domain.Challenge](db, names.Challenge),
		Submit:    NewCollection[domain.Solution](db, names.Submit),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// Collection is a generic typed binding over one Mongo collection,
// exposing exactly the four operations spec.md §1 names as the document
// store's interface.
type Collection[T any] struct {
	raw *mongo.Collection
}

// NewCollection wraps an *mongo.Collection in the typed facade.
func NewCollection[T any](db *mongo.Database, name string) *Collection[T] {
	return &Collection[T]{raw: db.Collection(name)}
}

// InsertOne inserts doc. Duplicate-key failures are returned unwrapped so
// callers can distinguish them with IsDuplicateKeyError.
func (c *Collection[T]) InsertOne(ctx context.Context, doc T) error {
	_, err := c.raw.InsertOne(ctx, doc)
	return err
}

// UpdateOne applies update (a "$set"-shaped bson.M, by convention) to the
// single document matching filter.
func (c *Collection[T]) UpdateOne(ctx context.Context, filter, update bson.M) error {
	_, err := c.raw.UpdateOne(ctx, filter, update)
	return err
}

// FindOne returns the first document matching filter.
func (c *Collection[T]) FindOne(ctx context.Context, filter bson.M) (T, error) {
	var out T
	err := c.raw.FindOne(ctx, filter).Decode(&out)
	return out, err
}

// Find returns every document matching filter, ordered by sort (nil for
// unspecified) and capped at limit (0 for unlimited) — the filter/sort/
// limit DSL spec.md §1 calls out explicitly.
func (c *Collection[T]) Find(ctx context.Context, filter bson.M, sort bson.D, limit int64) ([]T, error) {
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := c.raw.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IsDuplicateKeyError reports whether err is a unique-index violation —
// the sole mutual-exclusion primitive the claim/solve state machine relies
// on (spec.md §4.3). It defers to the driver's own classification and
// falls back to the substring spec.md §7 names, in case an error has been
// wrapped in a way that loses the driver's structured code.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key error")
}

// ErrNotFound is returned by FindOne-based helpers when no document
// matches; callers compare with errors.Is against mongo.ErrNoDocuments.
var ErrNotFound = mongo.ErrNoDocuments

// IsNotFound reports whether err is the "no matching document" case.
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
