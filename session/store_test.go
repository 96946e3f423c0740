package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, "gorbac"), mr
}

func parkedSession(id string) *Session {
	now := time.Unix(1700000000, 0).UTC()
	return &Session{
		ID:         id,
		UserID:     "u-1",
		State:      Authenticated,
		CreatedAt:  now,
		LastAccess: now,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	sess := parkedSession("sid-1")

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != sess.ID || got.UserID != sess.UserID || got.State != sess.State {
		t.Fatalf("loaded session mismatch: %+v", got)
	}

	count, err := store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count: got %d, want 1", count)
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	store, _ := newStoreTest(t)
	if _, err := store.Load(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestResaveDoesNotInflateCounter(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	sess := parkedSession("sid-1")

	for i := 0; i < 5; i++ {
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	count, err := store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("resave inflated counter: got %d, want 1", count)
	}
}

func TestDeleteIdempotentAndCounterNeverNegative(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	sess := parkedSession("sid-1")

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := store.Delete(ctx, "sid-1", "u-1"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}

	count, err := store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after deletes: got %d, want 0", count)
	}
	ids, err := store.SessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("session ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("index not cleaned: %v", ids)
	}
}

func TestCounterNeverNegativeUnderConcurrentOps(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	const sessionsN = 16
	const workers = 8

	for i := 0; i < sessionsN; i++ {
		sess := parkedSession(fmt.Sprintf("sid-%d", i))
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(workerID int) {
			defer wg.Done()
			<-start
			for r := 0; r < 50; r++ {
				id := fmt.Sprintf("sid-%d", (workerID+r)%sessionsN)
				if err := store.Delete(ctx, id, "u-1"); err != nil {
					t.Errorf("delete: %v", err)
				}
			}
		}(w)
	}
	close(start)
	wg.Wait()

	count, err := store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after concurrent deletes: got %d, want 0", count)
	}
}

func TestTouchExtendsTTL(t *testing.T) {
	store, mr := newStoreTest(t)
	ctx := context.Background()
	sess := parkedSession("sid-1")

	if err := store.Save(ctx, sess, 2*time.Second); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Touch(ctx, "sid-1", time.Hour); err != nil {
		t.Fatalf("touch: %v", err)
	}

	mr.FastForward(5 * time.Second)
	if _, err := store.Load(ctx, "sid-1"); err != nil {
		t.Fatalf("session must survive its original TTL after touch: %v", err)
	}

	if err := store.Touch(ctx, "ghost", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("touch missing: got %v, want ErrNotFound", err)
	}
}

func TestExpiredBlobIsNotFound(t *testing.T) {
	store, mr := newStoreTest(t)
	ctx := context.Background()
	sess := parkedSession("sid-1")

	if err := store.Save(ctx, sess, time.Second); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := store.Load(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after TTL", err)
	}
}

func TestLoadCorruptBlob(t *testing.T) {
	store, mr := newStoreTest(t)
	if err := mr.Set("gorbac:sess:sid-bad", "\x63garbage"); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	if _, err := store.Load(context.Background(), "sid-bad"); !errors.Is(err, ErrCorruptBlob) {
		t.Fatalf("got %v, want ErrCorruptBlob", err)
	}
}
