package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"boardsync/storage"
)

func TestOpenBootstrapsMissingBoard(t *testing.T) {
	store := &stubStore{}
	logger, _ := test.NewNullLogger()
	reg := NewRegistry(store, nil, stubIdentity{user: testUser()}, logger)

	sess, err := reg.Open(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	snap := sess.Snapshot()
	if snap.Board.Name != DefaultBoardName {
		t.Fatalf("board name = %s, want %s", snap.Board.Name, DefaultBoardName)
	}
	if snap.Board.Owner != "user-1" {
		t.Fatalf("owner = %s", snap.Board.Owner)
	}
	if len(snap.Lists) != 3 {
		t.Fatalf("expected default lists, got %d", len(snap.Lists))
	}
	if _, ok := snap.Members["user@example.com"]; !ok {
		t.Fatal("owner must be a member of the bootstrapped board")
	}
}

func TestOpenExistingBoard(t *testing.T) {
	doc := fixtureDocument()
	doc.Board.Name = "Existing"
	store := newStubStore(doc)
	logger, _ := test.NewNullLogger()
	reg := NewRegistry(store, nil, stubIdentity{user: testUser()}, logger)

	sess, err := reg.Open(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	if got := sess.Snapshot().Board.Name; got != "Existing" {
		t.Fatalf("board name = %s, bootstrap must not run for existing boards", got)
	}
}

func TestOpenWithoutUser(t *testing.T) {
	store := newStubStore(fixtureDocument())
	logger, _ := test.NewNullLogger()
	reg := NewRegistry(store, nil, stubIdentity{err: errors.New("signed out")}, logger)

	_, err := reg.Open(context.Background(), "b1")
	if Classify(err) != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestOpenLiveReceivesRemoteWrites(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	store := storage.New(rc)
	logger, _ := test.NewNullLogger()
	reg := NewRegistry(store, rc, stubIdentity{user: testUser()}, logger)

	sess, err := reg.OpenLive(context.Background(), "b1", func(err error) {
		t.Errorf("unexpected subscription error: %v", err)
	})
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}
	defer sess.Close()

	ch, cancel := sess.Watch()
	defer cancel()

	// A write by another client shows up in this session's replica.
	ref := storage.BoardRef{Owner: "user-1", BoardID: "b1"}
	other := storage.New(rc)
	if err := other.Apply(context.Background(), ref, map[string]any{"name": "From Elsewhere"}, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if sess.Snapshot().Board.Name == "From Elsewhere" {
			return
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatal("remote write never reached the live session")
		}
	}
}

func TestOpenLiveCloseStopsSnapshots(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	store := storage.New(rc)
	logger, _ := test.NewNullLogger()
	reg := NewRegistry(store, rc, stubIdentity{user: testUser()}, logger)

	sess, err := reg.OpenLive(context.Background(), "b1", nil)
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}
	sess.Close()
	sess.Close()

	ref := storage.BoardRef{Owner: "user-1", BoardID: "b1"}
	if err := storage.New(rc).Apply(context.Background(), ref, map[string]any{"name": "Too Late"}, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := sess.Snapshot().Board.Name; got == "Too Late" {
		t.Fatal("closed session still receives snapshots")
	}
}

func TestConcurrentFirstOpenConverges(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	store := storage.New(rc)
	logger, _ := test.NewNullLogger()
	regA := NewRegistry(store, rc, stubIdentity{user: testUser()}, logger)
	regB := NewRegistry(store, rc, stubIdentity{user: testUser()}, logger)

	sessA, err := regA.Open(context.Background(), "shared")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	defer sessA.Close()
	sessB, err := regB.Open(context.Background(), "shared")
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer sessB.Close()

	a, b := sessA.Snapshot(), sessB.Snapshot()
	if a.Board.CreatedAt != b.Board.CreatedAt {
		t.Fatal("both opens must converge on the stored copy")
	}
	if len(a.Lists) != 3 || len(b.Lists) != 3 {
		t.Fatal("default lists missing after concurrent open")
	}
}
