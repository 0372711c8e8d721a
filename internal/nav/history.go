// Package nav models the shell's navigation surface: a single history of
// locations and the provider redirect markers that may appear on them.
package nav

import (
	"net/url"
	"slices"
	"sync"
)

// ChangeKind tells whether a navigation added or rewrote an entry
type ChangeKind string

const (
	ChangePush    ChangeKind = "push"
	ChangeReplace ChangeKind = "replace"
)

// Change is delivered to history subscribers
type Change struct {
	Kind     ChangeKind
	Location url.URL
}

// History is the shell's navigation stack
type History struct {
	mu      sync.Mutex
	entries []url.URL
	subs    map[uint64]func(Change)
	order   []uint64
	next    uint64
}

// NewHistory starts a history at the given location
func NewHistory(initial *url.URL) *History {
	start := url.URL{Path: "/"}
	if initial != nil {
		start = *initial
	}
	return &History{
		entries: []url.URL{start},
		subs:    make(map[uint64]func(Change)),
	}
}

// Current returns the location of the top entry
func (h *History) Current() url.URL {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

// Len returns the number of history entries
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Push navigates to target, adding an entry
func (h *History) Push(target string) error {
	u, err := h.resolve(target)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.entries = append(h.entries, u)
	subs := h.subscribers()
	h.mu.Unlock()

	h.notify(subs, Change{Kind: ChangePush, Location: u})
	return nil
}

// Replace rewrites the current entry without navigating
func (h *History) Replace(target string) error {
	u, err := h.resolve(target)
	if err != nil {
		return err
	}
	h.ReplaceURL(u)
	return nil
}

// ReplaceURL is Replace for an already parsed location
func (h *History) ReplaceURL(u url.URL) {
	h.mu.Lock()
	h.entries[len(h.entries)-1] = u
	subs := h.subscribers()
	h.mu.Unlock()

	h.notify(subs, Change{Kind: ChangeReplace, Location: u})
}

// Subscribe registers fn for every navigation. Subscribers are called in
// registration order; the cancel func is idempotent.
func (h *History) Subscribe(fn func(Change)) (cancel func()) {
	h.mu.Lock()
	h.next++
	id := h.next
	h.subs[id] = fn
	h.order = append(h.order, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			h.order = slices.DeleteFunc(h.order, func(v uint64) bool { return v == id })
		})
	}
}

func (h *History) resolve(target string) (url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return url.URL{}, err
	}
	cur := h.Current()
	return *cur.ResolveReference(ref), nil
}

// subscribers must be called with h.mu held
func (h *History) subscribers() []func(Change) {
	subs := make([]func(Change), 0, len(h.order))
	for _, id := range h.order {
		subs = append(subs, h.subs[id])
	}
	return subs
}

func (h *History) notify(subs []func(Change), c Change) {
	for _, fn := range subs {
		fn(c)
	}
}
