// Package storage is the client for the remote board document store. Each
// board is one Redis hash whose fields are the document's dotted sub-paths
// (lists.<listId>, tasks.<listId>, members.<email>, plus top-level scalars),
// so a write can target exactly the paths an action changed. Every successful
// write publishes a change notification that the subscription package fans
// out as snapshots.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

// ErrNotFound is returned by Fetch when the board document does not exist.
var ErrNotFound = errors.New("board document does not exist")

// BoardRef addresses one board document by owner identity and board id.
type BoardRef struct {
	Owner   string
	BoardID string
}

// Key is the document's storage key.
func (r BoardRef) Key() string {
	return "boards:" + r.Owner + ":" + r.BoardID
}

// Channel is the pub/sub channel carrying change notifications for the board.
func (r BoardRef) Channel() string {
	return "board-updates:" + r.Owner + ":" + r.BoardID
}

// Store provides the four capabilities the sync core needs from the remote
// document store: partial-path write, whole-document fetch, whole-document
// delete, and create-if-absent. Push subscriptions ride on the notifications
// Store publishes.
type Store struct {
	client *redis.Client
}

// New creates a Store on the given Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Apply writes the given sub-path values and clears the given sub-paths in a
// single transaction, refreshes the document's updatedAt, and publishes a
// change notification. It never touches paths outside set and clear.
func (s *Store) Apply(ctx context.Context, ref BoardRef, set map[string]any, clear []string) error {
	fields, err := encodeFields(set)
	if err != nil {
		return err
	}
	stamp, err := encodeValue(time.Now().UTC())
	if err != nil {
		return err
	}
	fields[fieldUpdatedAt] = stamp

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, ref.Key(), fields)
	if len(clear) > 0 {
		pipe.HDel(ctx, ref.Key(), clear...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.notify(ctx, ref)
}

// Fetch reads the whole board document.
func (s *Store) Fetch(ctx context.Context, ref BoardRef) (domain.Document, error) {
	raw, err := s.client.HGetAll(ctx, ref.Key()).Result()
	if err != nil {
		return domain.Document{}, err
	}
	if len(raw) == 0 {
		return domain.Document{}, ErrNotFound
	}
	return decodeDocument(ref.BoardID, raw)
}

// Delete removes the board document entirely and notifies subscribers.
func (s *Store) Delete(ctx context.Context, ref BoardRef) error {
	if err := s.client.Del(ctx, ref.Key()).Err(); err != nil {
		return err
	}
	return s.notify(ctx, ref)
}

// Init creates the board document if and only if it does not exist yet, using
// the store's atomic create-if-absent primitive. Concurrent first opens race
// harmlessly: exactly one caller observes created=true and writes the full
// default document; the rest leave the existing copy untouched.
func (s *Store) Init(ctx context.Context, ref BoardRef, doc domain.Document) (created bool, err error) {
	ownerVal, err := encodeValue(doc.Board.Owner)
	if err != nil {
		return false, err
	}
	created, err = s.client.HSetNX(ctx, ref.Key(), fieldOwner, ownerVal).Result()
	if err != nil || !created {
		return created, err
	}
	fields, err := documentFields(doc)
	if err != nil {
		return true, err
	}
	delete(fields, fieldOwner)
	if err := s.client.HSet(ctx, ref.Key(), fields).Err(); err != nil {
		return true, err
	}
	return true, s.notify(ctx, ref)
}

func (s *Store) notify(ctx context.Context, ref BoardRef) error {
	return s.client.Publish(ctx, ref.Channel(), ref.Key()).Err()
}
