package testutil

import (
	"context"
	"sync"

	"github.com/leansocial/shell/internal/identity"
	"github.com/leansocial/shell/internal/nav"
	"github.com/leansocial/shell/internal/session"
)

// FakeIdentityClient is an in-memory identity client whose events are
// driven by the test through Emit. Configure the func fields before use.
type FakeIdentityClient struct {
	// GetSessionFunc answers GetSession; nil means "no session"
	GetSessionFunc func(ctx context.Context) (*session.Snapshot, error)
	// SignInFunc answers SignInExternal; nil returns a fixed provider URL
	SignInFunc func(ctx context.Context, provider, redirectTarget string) (string, error)
	// CompleteFunc answers CompleteRedirect; nil returns an empty return URL
	CompleteFunc func(ctx context.Context, marker nav.Marker) (string, error)
	SignOutErr   error

	mu           sync.Mutex
	handlers     map[int]func(*session.Snapshot)
	order        []int
	next         int
	subscribes   int
	unsubscribes int
	markers      []nav.Marker
}

func NewFakeIdentityClient() *FakeIdentityClient {
	return &FakeIdentityClient{handlers: make(map[int]func(*session.Snapshot))}
}

func (f *FakeIdentityClient) GetSession(ctx context.Context) (*session.Snapshot, error) {
	if f.GetSessionFunc == nil {
		return nil, nil
	}
	return f.GetSessionFunc(ctx)
}

func (f *FakeIdentityClient) OnSessionChange(handler func(*session.Snapshot)) identity.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	f.handlers[id] = handler
	f.order = append(f.order, id)
	f.subscribes++
	return &fakeSubscription{client: f, id: id}
}

func (f *FakeIdentityClient) SignInExternal(ctx context.Context, provider, redirectTarget string) (string, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, provider, redirectTarget)
	}
	return "https://idp.test/authorize?provider=" + provider, nil
}

// SignOut emits "no session" unless SignOutErr is set
func (f *FakeIdentityClient) SignOut(context.Context) error {
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.Emit(nil)
	return nil
}

func (f *FakeIdentityClient) CompleteRedirect(ctx context.Context, marker nav.Marker) (string, error) {
	f.mu.Lock()
	f.markers = append(f.markers, marker)
	f.mu.Unlock()
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, marker)
	}
	return "", nil
}

// Emit delivers snap to every live handler in registration order
func (f *FakeIdentityClient) Emit(snap *session.Snapshot) {
	f.mu.Lock()
	handlers := make([]func(*session.Snapshot), 0, len(f.order))
	for _, id := range f.order {
		handlers = append(handlers, f.handlers[id])
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(snap.Clone())
	}
}

// Subscribers returns the number of live handlers
func (f *FakeIdentityClient) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// Subscribes returns how many times OnSessionChange was called
func (f *FakeIdentityClient) Subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// Unsubscribes counts effective (first) Unsubscribe calls
func (f *FakeIdentityClient) Unsubscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribes
}

// Markers returns the markers handed to CompleteRedirect
func (f *FakeIdentityClient) Markers() []nav.Marker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]nav.Marker(nil), f.markers...)
}

type fakeSubscription struct {
	client *FakeIdentityClient
	id     int
}

func (s *fakeSubscription) Unsubscribe() {
	f := s.client
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[s.id]; !ok {
		return
	}
	delete(f.handlers, s.id)
	for i, v := range f.order {
		if v == s.id {
			f.order = append(f.order[:i:i], f.order[i+1:]...)
			break
		}
	}
	f.unsubscribes++
}
