// Package subscription maintains the live read channel from the remote board
// store to local state. Each handle listens for change notifications on the
// board's pub/sub channel and, on every notification, fetches the full
// document and delivers it as a snapshot. Snapshots replace local state
// wholesale; the remote copy is the source of truth for convergence.
package subscription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/storage"
)

// State is the lifecycle of one subscription handle:
// Closed -> Opening -> Open -> (Error | Closed). Error is terminal for the
// handle; a fresh Subscribe call is a new instance, never a resume.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateError
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	default:
		return "closed"
	}
}

// Fetcher reads the whole board document, the way storage.Store does.
type Fetcher interface {
	Fetch(ctx context.Context, ref storage.BoardRef) (domain.Document, error)
}

// Handle is one live subscription. Unsubscribe is idempotent and must be
// called exactly once per Subscribe when the consumer is torn down, so a dead
// view cannot keep mutating local state.
type Handle struct {
	state  atomic.Int32
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// State reports the handle's current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Unsubscribe stops future snapshot delivery. It does not cancel writes
// already in flight elsewhere.
func (h *Handle) Unsubscribe() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
		h.state.Store(int32(StateClosed))
	})
}

// Subscribe opens a push subscription for one board. onSnapshot runs for the
// current document immediately after the channel opens and again for every
// subsequent change. On transport failure onError runs once and the handle
// terminates; it never retries on its own, re-subscribing is the caller's
// decision.
func Subscribe(client *redis.Client, store Fetcher, ref storage.BoardRef, onSnapshot func(domain.Document), onError func(error), logger *log.Logger) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	h.state.Store(int32(StateOpening))

	pubsub := client.Subscribe(ctx, ref.Channel())

	go func() {
		defer close(h.done)
		defer func() { _ = pubsub.Close() }()

		if _, err := pubsub.Receive(ctx); err != nil {
			h.fail(ctx, err, onError, logger)
			return
		}
		h.state.CompareAndSwap(int32(StateOpening), int32(StateOpen))

		// The document may lag the subscription open on a first-time board;
		// the caller initializes defaults in that case, which triggers a
		// notification and a regular snapshot below.
		if doc, err := store.Fetch(ctx, ref); err == nil {
			onSnapshot(doc)
		} else if !errors.Is(err, storage.ErrNotFound) {
			h.fail(ctx, err, onError, logger)
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					h.fail(ctx, errors.New("subscription channel closed"), onError, logger)
					return
				}
				doc, err := store.Fetch(ctx, ref)
				if err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						// Board deleted remotely; nothing left to converge to.
						continue
					}
					h.fail(ctx, err, onError, logger)
					return
				}
				onSnapshot(doc)
			}
		}
	}()

	return h
}

func (h *Handle) fail(ctx context.Context, err error, onError func(error), logger *log.Logger) {
	if ctx.Err() != nil {
		// Unsubscribed; not an error.
		return
	}
	h.state.Store(int32(StateError))
	if logger != nil {
		logger.WithError(err).Error("board subscription failed")
	}
	if onError != nil {
		onError(err)
	}
}
