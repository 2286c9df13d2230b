package engine

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/storage"
	"boardsync/subscription"
)

// DefaultBoardName names a board document created on first open.
const DefaultBoardName = "New Board"

// Registry hands out board sessions with a bounded lifetime: a caller opens a
// session on view-enter and closes it on view-exit. Nothing is cached between
// opens, so there is no ambient process-wide board map to leak.
type Registry struct {
	store  Store
	client *redis.Client
	auth   Identity
	logger *log.Logger
}

// NewRegistry creates a session registry over the given store and auth
// collaborators. The Redis client carries the push subscriptions.
func NewRegistry(store Store, client *redis.Client, auth Identity, logger *log.Logger) *Registry {
	return &Registry{store: store, client: client, auth: auth, logger: logger}
}

// Open loads the board into a fresh session. On a first-time open the default
// document is created through the store's create-if-absent primitive; when
// two clients race, one creates and both converge on the stored copy.
func (r *Registry) Open(ctx context.Context, boardID string) (*Session, error) {
	user, err := r.auth.CurrentUser()
	if err != nil {
		return nil, &AuthError{Reason: err.Error()}
	}
	ref := storage.BoardRef{Owner: user.ID, BoardID: boardID}

	doc, err := r.store.Fetch(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		def := domain.NewDocument(boardID, DefaultBoardName, 0, user.ID, user.Email)
		if _, err := r.store.Init(ctx, ref, def); err != nil {
			return nil, &TransportError{Err: err}
		}
		doc, err = r.store.Fetch(ctx, ref)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
	} else if err != nil {
		return nil, &TransportError{Err: err}
	}

	sess := newSession(ref, r.store, r.auth, r.logger)
	sess.ApplySnapshot(doc)
	return sess, nil
}

// OpenLive opens a session and attaches the push subscription so remote
// snapshots keep replacing the replica until Close. onError receives
// subscription transport failures; the channel never re-subscribes on its
// own.
func (r *Registry) OpenLive(ctx context.Context, boardID string, onError func(error)) (*Session, error) {
	sess, err := r.Open(ctx, boardID)
	if err != nil {
		return nil, err
	}
	sess.sub = subscription.Subscribe(r.client, r.store, sess.ref, sess.ApplySnapshot, onError, r.logger)
	return sess, nil
}
