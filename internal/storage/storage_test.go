package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leansocial/shell/internal/crypto"
	"github.com/leansocial/shell/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncryptor(t *testing.T) crypto.Encryptor {
	t.Helper()
	enc, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)
	return enc
}

func testSnapshot(id string) *session.Snapshot {
	return &session.Snapshot{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Provider:     "google",
		User:         session.User{ID: id, Email: id + "@example.com"},
	}
}

// runStoreContract exercises the behaviour every SessionStore shares
func runStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()

	_, err := store.Load(ctx, "default")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, "default", testSnapshot("u1")))
	got, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, testSnapshot("u1"), got)

	require.NoError(t, store.Save(ctx, "default", testSnapshot("u2")))
	got, err = store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.User.ID, "save replaces the session wholesale")

	_, err = store.Load(ctx, "work")
	assert.ErrorIs(t, err, ErrSessionNotFound, "profiles are isolated")

	require.NoError(t, store.Delete(ctx, "default"))
	require.NoError(t, store.Delete(ctx, "default"), "delete is idempotent")
	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	runStoreContract(t, store)

	t.Run("returned snapshots are copies", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.Save(ctx, "p", testSnapshot("u1")))
		got, err := store.Load(ctx, "p")
		require.NoError(t, err)
		got.AccessToken = "mutated"

		again, err := store.Load(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, "access-u1", again.AccessToken)
	})
}

func newRedisStore(t *testing.T, mr *miniredis.Miniredis) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewRedisStore(client, "leansocial:session:", testEncryptor(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newRedisStore(t, mr)
	runStoreContract(t, store)

	t.Run("sessions are encrypted at rest", func(t *testing.T) {
		require.NoError(t, store.Save(context.Background(), "enc", testSnapshot("u1")))
		raw, err := mr.Get("leansocial:session:enc")
		require.NoError(t, err)
		assert.NotContains(t, raw, "access-u1")
		assert.NotContains(t, raw, "u1@example.com")
	})

	t.Run("wrong key cannot read", func(t *testing.T) {
		other, err := crypto.NewEncryptor([]byte("another-encryption-key-32-bytes!"))
		require.NoError(t, err)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		reader, err := NewRedisStore(client, "leansocial:session:", other)
		require.NoError(t, err)
		defer reader.Close()

		_, err = reader.Load(context.Background(), "enc")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, err := NewRedisStore(nil, "p:", testEncryptor(t))
	assert.ErrorContains(t, err, "redis client is required")

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = NewRedisStore(client, "p:", nil)
	assert.ErrorContains(t, err, "encryptor is required")
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := DialRedis(context.Background(), &redis.Options{Addr: mr.Addr()}, "p:", testEncryptor(t))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	mr.Close()
	_, err = DialRedis(context.Background(), &redis.Options{Addr: mr.Addr()}, "p:", testEncryptor(t))
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "watch channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

func TestRedisStore_Watch(t *testing.T) {
	mr := miniredis.RunT(t)
	here := newRedisStore(t, mr)
	elsewhere := newRedisStore(t, mr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := here.Watch(ctx, "default")
	require.NoError(t, err)

	// Own writes are not echoed back
	require.NoError(t, here.Save(ctx, "default", testSnapshot("self")))

	require.NoError(t, elsewhere.Save(ctx, "default", testSnapshot("u1")))
	ev := receive(t, events)
	assert.Equal(t, "default", ev.Profile)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "u1", ev.Snapshot.User.ID)

	require.NoError(t, elsewhere.Delete(ctx, "default"))
	ev = receive(t, events)
	assert.Nil(t, ev.Snapshot)

	// Other profiles are not reported
	require.NoError(t, elsewhere.Save(ctx, "work", testSnapshot("u2")))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel must close once ctx is done")
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestRedisStore_IgnoresMalformedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newRedisStore(t, mr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := store.Watch(ctx, "default")
	require.NoError(t, err)

	mr.Publish("leansocial:session:default:events", "not json")
	mr.Publish("leansocial:session:default:events", `{"origin":"other","deleted":true}`)

	ev := receive(t, events)
	assert.Nil(t, ev.Snapshot)
}

func TestFirestoreStore_Config(t *testing.T) {
	ctx := context.Background()

	_, err := NewFirestoreStore(ctx, "", firestoreDefaultDB, "sessions", testEncryptor(t))
	assert.ErrorContains(t, err, "projectID is required")

	_, err = NewFirestoreStore(ctx, "project", firestoreDefaultDB, "sessions", nil)
	assert.ErrorContains(t, err, "encryptor is required")

	_, err = NewFirestoreStore(ctx, "project", firestoreDefaultDB, "", testEncryptor(t))
	assert.ErrorContains(t, err, "collection is required")
}

const firestoreDefaultDB = "(default)"

// The Firestore tests run against the emulator when FIRESTORE_EMULATOR_HOST is set
func TestFirestoreStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	collection := "sessions_" + time.Now().Format("150405.000000")

	here, err := NewFirestoreStore(ctx, "leansocial-test", firestoreDefaultDB, collection, testEncryptor(t))
	require.NoError(t, err)
	defer here.Close()
	runStoreContract(t, here)

	elsewhere, err := NewFirestoreStore(ctx, "leansocial-test", firestoreDefaultDB, collection, testEncryptor(t))
	require.NoError(t, err)
	defer elsewhere.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := here.Watch(watchCtx, "watched")
	require.NoError(t, err)

	// Give the listener time to deliver the initial snapshot
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, elsewhere.Save(ctx, "watched", testSnapshot("u1")))
	ev := receive(t, events)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "u1", ev.Snapshot.User.ID)

	require.NoError(t, elsewhere.Delete(ctx, "watched"))
	ev = receive(t, events)
	assert.Nil(t, ev.Snapshot)
}
