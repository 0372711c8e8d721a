package lifecycle

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/guard"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/session"
	"github.com/leansocial/shell/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func launch(t *testing.T, raw string) *nav.History {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return nav.NewHistory(u)
}

func user(id string) *session.Snapshot {
	return &session.Snapshot{AccessToken: "tok-" + id, Provider: "google", User: session.User{ID: id}}
}

type outcomes struct {
	mu        sync.Mutex
	bootstrap []Outcome
	delivered int
	dropped   int
}

func (o *outcomes) BootstrapSettled(outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bootstrap = append(o.bootstrap, outcome)
}

func (o *outcomes) ListenerEvent(delivered bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if delivered {
		o.delivered++
	} else {
		o.dropped++
	}
}

func (o *outcomes) settled() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Outcome(nil), o.bootstrap...)
}

func waitReady(t *testing.T, s *Shell) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("bootstrap did not settle")
	}
}

// recordStates captures every state the store publishes, starting with the
// current one
func recordStates(store *authstate.Store) func() []authstate.State {
	var mu sync.Mutex
	states := []authstate.State{store.Snapshot()}
	store.Subscribe(func(st authstate.State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})
	return func() []authstate.State {
		mu.Lock()
		defer mu.Unlock()
		return append([]authstate.State(nil), states...)
	}
}

func assertLoadingLatch(t *testing.T, states []authstate.State) {
	t.Helper()
	resolved := false
	for _, st := range states {
		assert.Equal(t, st.Session != nil, st.IsAuthenticated)
		if !st.IsLoading {
			resolved = true
		}
		if resolved {
			assert.False(t, st.IsLoading, "loading came back after resolving")
		}
	}
}

func TestColdStart_NoSession(t *testing.T) {
	store := authstate.New()
	client := testutil.NewFakeIdentityClient()
	rec := &outcomes{}
	s := New(store, client, launch(t, "http://127.0.0.1:5173/me"), WithRecorder(rec))

	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	waitReady(t, s)

	st := store.Snapshot()
	assert.Nil(t, st.Session)
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Equal(t, []Outcome{OutcomeAbsent}, rec.settled())

	d := guard.Protected(st, "/login", "/me")
	assert.Equal(t, guard.OutcomeRedirect, d.Outcome)
	assert.Equal(t, "/login?return=%2Fme", d.Target)
}

func TestColdStart_PersistedSession(t *testing.T) {
	store := authstate.New()
	client := testutil.NewFakeIdentityClient()
	client.GetSessionFunc = func(context.Context) (*session.Snapshot, error) { return user("u1"), nil }
	rec := &outcomes{}
	s := New(store, client, launch(t, "http://127.0.0.1:5173/login"), WithRecorder(rec))

	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	waitReady(t, s)

	st := store.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Equal(t, "u1", st.Session.User.ID)
	assert.Equal(t, []Outcome{OutcomeSession}, rec.settled())

	assert.Equal(t, guard.Decision{Outcome: guard.OutcomeRedirect, Target: "/me"}, guard.Public(st, "/me", "/login"))
}

func TestColdStart_RedirectMarker(t *testing.T) {
	store := authstate.New()
	states := recordStates(store)
	history := launch(t, "http://127.0.0.1:5173/me?tab=posts#access_token=jwt&expires_in=3600&token_type=bearer")

	var changes []nav.Change
	history.Subscribe(func(c nav.Change) { changes = append(changes, c) })

	// The provider persists the session and announces it shortly after
	var mu sync.Mutex
	var persisted *session.Snapshot
	client := testutil.NewFakeIdentityClient()
	client.CompleteFunc = func(context.Context, nav.Marker) (string, error) {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		persisted = user("u1")
		mu.Unlock()
		client.Emit(user("u1"))
		return "", nil
	}
	client.GetSessionFunc = func(context.Context) (*session.Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		return persisted.Clone(), nil
	}

	s := New(store, client, history)
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	waitReady(t, s)

	require.Len(t, changes, 1, "marker stripped exactly once")
	assert.Equal(t, nav.ChangeReplace, changes[0].Kind)
	assert.Equal(t, "http://127.0.0.1:5173/me?tab=posts", changes[0].Location.String())
	assert.Equal(t, 1, history.Len())

	markers := client.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "jwt", markers[0].AccessToken)
	assert.True(t, markers[0].InFragment)

	st := store.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assertLoadingLatch(t, states())
	assert.NoError(t, s.RedirectErr())

	t.Run("later navigation with a marker is not reprocessed", func(t *testing.T) {
		require.NoError(t, history.Push("/me?code=abc&state=xyz"))
		assert.Len(t, client.Markers(), 1)
		cur := history.Current()
		assert.Equal(t, "code=abc&state=xyz", cur.RawQuery)
	})
}

func TestColdStart_RedirectReturnURL(t *testing.T) {
	store := authstate.New()
	history := launch(t, "http://127.0.0.1:5173/auth/callback?code=abc&state=xyz")
	client := testutil.NewFakeIdentityClient()
	client.CompleteFunc = func(_ context.Context, m nav.Marker) (string, error) {
		assert.Equal(t, nav.Marker{Code: "abc", State: "xyz"}, m)
		client.Emit(user("u1"))
		return "/me?tab=posts", nil
	}
	client.GetSessionFunc = func(context.Context) (*session.Snapshot, error) { return user("u1"), nil }

	s := New(store, client, history)
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	waitReady(t, s)

	cur := history.Current()
	assert.Equal(t, "/me", cur.Path)
	assert.Equal(t, "tab=posts", cur.RawQuery)
	assert.Equal(t, 1, history.Len())
	assert.True(t, store.Snapshot().IsAuthenticated)
}

func TestColdStart_RedirectFailureLeavesStateToBootstrap(t *testing.T) {
	store := authstate.New()
	states := recordStates(store)
	client := testutil.NewFakeIdentityClient()
	client.CompleteFunc = func(context.Context, nav.Marker) (string, error) {
		return "", errors.New("invalid sign-in state")
	}

	s := New(store, client, launch(t, "http://127.0.0.1:5173/?code=abc&state=forged"))
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	waitReady(t, s)

	assert.EqualError(t, s.RedirectErr(), "invalid sign-in state")
	assert.False(t, store.Snapshot().IsAuthenticated)
	assert.Len(t, states(), 2, "only the bootstrap publishes")
}

func TestMidSessionLogout(t *testing.T) {
	store := authstate.New()
	client := testutil.NewFakeIdentityClient()
	client.GetSessionFunc = func(context.Context) (*session.Snapshot, error) { return user("u1"), nil }

	s := New(store, client, launch(t, "http://127.0.0.1:5173/me"))
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	waitReady(t, s)

	require.Equal(t, guard.OutcomeRender, guard.Protected(store.Snapshot(), "/login", "/me").Outcome)

	client.Emit(nil)

	st := store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Equal(t, guard.OutcomeRedirect, guard.Protected(st, "/login", "/me").Outcome)

	t.Run("token refresh replaces the session wholesale", func(t *testing.T) {
		client.Emit(&session.Snapshot{AccessToken: "fresh", User: session.User{ID: "u1"}})
		assert.Equal(t, "fresh", store.Snapshot().Session.AccessToken)
		assert.Empty(t, store.Snapshot().Session.Provider)
	})
}

func TestBootstrap_FailuresDegradeToUnauthenticated(t *testing.T) {
	tests := []struct {
		name    string
		fetch   func(context.Context) (*session.Snapshot, error)
		outcome Outcome
	}{
		{
			name:    "fetch error",
			fetch:   func(context.Context) (*session.Snapshot, error) { return nil, errors.New("storage unreachable") },
			outcome: OutcomeError,
		},
		{
			name:    "session returned alongside an error",
			fetch:   func(context.Context) (*session.Snapshot, error) { return user("u1"), errors.New("partial") },
			outcome: OutcomeError,
		},
		{
			name:    "collaborator panics",
			fetch:   func(context.Context) (*session.Snapshot, error) { panic("boom") },
			outcome: OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := authstate.New()
			client := testutil.NewFakeIdentityClient()
			client.GetSessionFunc = tt.fetch
			rec := &outcomes{}

			s := New(store, client, launch(t, "http://127.0.0.1:5173/"), WithRecorder(rec))
			require.NotPanics(t, func() { require.NoError(t, s.Mount(context.Background())) })
			defer s.Unmount()
			waitReady(t, s)

			st := store.Snapshot()
			assert.False(t, st.IsLoading)
			assert.False(t, st.IsAuthenticated)
			assert.Nil(t, st.Session)
			assert.Equal(t, []Outcome{tt.outcome}, rec.settled())
		})
	}
}

func TestBootstrap_TimeoutPublishesAbsent(t *testing.T) {
	store := authstate.New()
	client := testutil.NewFakeIdentityClient()
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })

	var calls atomic.Int32
	client.GetSessionFunc = func(context.Context) (*session.Snapshot, error) {
		calls.Add(1)
		<-stuck // ignores its context
		return user("late"), nil
	}
	rec := &outcomes{}

	s := New(store, client, launch(t, "http://127.0.0.1:5173/"),
		WithBootstrapTimeout(20*time.Millisecond), WithRecorder(rec))
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	waitReady(t, s)

	assert.False(t, store.Snapshot().IsLoading)
	assert.False(t, store.Snapshot().IsAuthenticated)
	assert.Equal(t, []Outcome{OutcomeTimeout}, rec.settled())
	assert.EqualValues(t, 1, calls.Load(), "no retries")
}

func TestListenerBeforeBootstrap(t *testing.T) {
	tests := []struct {
		name      string
		fetched   *session.Snapshot
		wantFinal bool
	}{
		{name: "bootstrap confirms the session", fetched: user("u1"), wantFinal: true},
		{name: "bootstrap resolves last with no session", fetched: nil, wantFinal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := authstate.New()
			states := recordStates(store)
			client := testutil.NewFakeIdentityClient()
			release := make(chan struct{})
			client.GetSessionFunc = func(context.Context) (*session.Snapshot, error) {
				<-release
				return tt.fetched.Clone(), nil
			}

			s := New(store, client, launch(t, "http://127.0.0.1:5173/"))
			require.NoError(t, s.Mount(context.Background()))
			defer s.Unmount()

			client.Emit(user("u1"))
			assert.True(t, store.Snapshot().IsAuthenticated)
			assert.False(t, store.Snapshot().IsLoading, "listener event resolves loading")

			close(release)
			waitReady(t, s)

			assert.Equal(t, tt.wantFinal, store.Snapshot().IsAuthenticated, "last call wins")
			all := states()
			assert.Len(t, all, 3)
			assertLoadingLatch(t, all)
		})
	}
}

func TestUnmount_NoLateMutations(t *testing.T) {
	store := authstate.New()
	client := testutil.NewFakeIdentityClient()
	client.GetSessionFunc = func(context.Context) (*session.Snapshot, error) { return user("u1"), nil }
	rec := &outcomes{}

	s := New(store, client, launch(t, "http://127.0.0.1:5173/me"), WithRecorder(rec))
	require.NoError(t, s.Mount(context.Background()))
	waitReady(t, s)

	s.Unmount()
	before := store.Snapshot()

	client.Emit(nil)
	client.Emit(user("u2"))

	assert.Equal(t, before, store.Snapshot())
	assert.Equal(t, 0, client.Subscribers())
	assert.Equal(t, 1, client.Unsubscribes())

	s.Unmount()
	assert.Equal(t, 1, client.Unsubscribes(), "subscription released exactly once")
	assert.Equal(t, 0, rec.dropped, "released subscription receives nothing to drop")
}

func TestUnmount_DiscardsInFlightBootstrap(t *testing.T) {
	store := authstate.New()
	client := testutil.NewFakeIdentityClient()
	started := make(chan struct{})
	client.GetSessionFunc = func(ctx context.Context) (*session.Snapshot, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	rec := &outcomes{}

	s := New(store, client, launch(t, "http://127.0.0.1:5173/"), WithRecorder(rec))
	require.NoError(t, s.Mount(context.Background()))
	<-started

	s.Unmount()
	waitReady(t, s)

	st := store.Snapshot()
	assert.True(t, st.IsLoading, "a discarded bootstrap publishes nothing")
	assert.Zero(t, st.Revision)
	assert.Equal(t, []Outcome{OutcomeDiscarded}, rec.settled())
}

func TestMount_AtMostOnce(t *testing.T) {
	store := authstate.New()
	client := testutil.NewFakeIdentityClient()
	s := New(store, client, launch(t, "http://127.0.0.1:5173/"))

	require.NoError(t, s.Mount(context.Background()))
	assert.ErrorIs(t, s.Mount(context.Background()), ErrAlreadyMounted)
	waitReady(t, s)
	assert.Equal(t, 1, client.Subscribes())

	s.Unmount()
	assert.ErrorIs(t, s.Mount(context.Background()), ErrAlreadyMounted, "an unmounted shell stays down")
	assert.Equal(t, 1, client.Subscribes())
}

func TestUnmount_BeforeMount(t *testing.T) {
	client := testutil.NewFakeIdentityClient()
	s := New(authstate.New(), client, launch(t, "http://127.0.0.1:5173/"))

	assert.NotPanics(t, s.Unmount)
	assert.NotPanics(t, s.Unmount)
	assert.ErrorIs(t, s.Mount(context.Background()), ErrAlreadyMounted)
	assert.Equal(t, 0, client.Subscribes())

	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready must be closed after unmount without mount")
	}
}

func TestUnmount_ReleasesHandleOnce(t *testing.T) {
	sub := new(testutil.MockSubscription)
	sub.On("Unsubscribe").Return()

	client := new(testutil.MockIdentityClient)
	client.On("OnSessionChange", mock.Anything).Return(sub).Once()
	client.On("GetSession", mock.Anything).Return(nil, nil).Once()

	s := New(authstate.New(), client, launch(t, "http://127.0.0.1:5173/"))
	require.NoError(t, s.Mount(context.Background()))
	waitReady(t, s)

	s.Unmount()
	s.Unmount()

	sub.AssertNumberOfCalls(t, "Unsubscribe", 1)
	client.AssertExpectations(t)
}
