// Package notifyfakes provides a capturing Notifier for tests.
package notifyfakes

import (
	"context"
	"sync"

	"github.com/pouchdb/pouchbase/notify"
)

// Delivery records a single Send call.
type Delivery struct {
	Identity string
	LoginURL string
}

// FakeNotifier records deliveries instead of sending them. Tests read the
// raw token out of the captured login URL; no raw token is ever retained
// server-side.
type FakeNotifier struct {
	mu         sync.Mutex
	deliveries []Delivery

	// Err, when set, is returned from Send to simulate delivery failure.
	Err error
}

var _ notify.Notifier = (*FakeNotifier)(nil)

// NewFakeNotifier creates an empty capturing notifier.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

func (f *FakeNotifier) Send(_ context.Context, identity, loginURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.deliveries = append(f.deliveries, Delivery{Identity: identity, LoginURL: loginURL})
	return nil
}

// Deliveries returns all recorded deliveries.
func (f *FakeNotifier) Deliveries() []Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Delivery, len(f.deliveries))
	copy(out, f.deliveries)
	return out
}

// Last returns the most recent delivery, or a zero Delivery when none exist.
func (f *FakeNotifier) Last() Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.deliveries) == 0 {
		return Delivery{}
	}
	return f.deliveries[len(f.deliveries)-1]
}
