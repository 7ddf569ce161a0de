// Package notify re-emits entitlement row changes to the sessions watching them.
// Delivery is at-least-once with no replay: consumers take a point read first
// and treat every update as "re-read this row".
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/tbeaudouin05/stripe-entitlements/api/metrics"
	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 16

// notifyStripes bounds the per-user locks that order load-then-send.
const notifyStripes = 64

// Loader reads the current state of a row.
type Loader interface {
	GetEntitlement(ctx context.Context, userID string) (stripedb.Entitlement, error)
}

// Hub fans out row changes to per-user subscriptions.
type Hub struct {
	loader Loader
	buffer int

	// users hashing to the same stripe notify one at a time, so rows reach
	// subscribers in the order they were read.
	stripes [notifyStripes]sync.Mutex

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub returns a Hub that loads rows through loader.
func NewHub(loader Loader) *Hub {
	return &Hub{
		loader: loader,
		buffer: DefaultBuffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription receives the changed rows of one user until Close.
type Subscription struct {
	hub    *Hub
	userID string
	ch     chan stripedb.Entitlement
	// guarded by hub.mu
	closed bool
}

// Subscribe registers interest in userID's row.
func (h *Hub) Subscribe(userID string) *Subscription {
	s := &Subscription{hub: h, userID: userID, ch: make(chan stripedb.Entitlement, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	metrics.NotifierSubscribers.Inc()
	return s
}

// Updates is closed once the subscription is closed, either by Close or by
// the hub evicting a subscriber that fell behind.
func (s *Subscription) Updates() <-chan stripedb.Entitlement { return s.ch }

// UserID returns the user the subscription watches.
func (s *Subscription) UserID() string { return s.userID }

// Close unregisters the subscription. Nothing is delivered after it returns.
// It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	if set, ok := h.subs[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.userID)
		}
	}
	close(s.ch)
	metrics.NotifierSubscribers.Dec()
}

// Notify loads userID's row and hands it to every subscription of that user.
// A subscription whose queue is full is evicted: its channel closes so the
// consumer reconnects and takes a fresh point read instead of holding a stale row.
func (h *Hub) Notify(ctx context.Context, userID string) error {
	if !h.watched(userID) {
		return nil
	}
	lock := &h.stripes[xxhash.Sum64String(userID)%notifyStripes]
	lock.Lock()
	defer lock.Unlock()

	ent, err := h.loader.GetEntitlement(ctx, userID)
	if errors.Is(err, stripedb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[userID] {
		select {
		case s.ch <- ent:
		default:
			metrics.NotifierDropped.Inc()
			log.Warn().Str("user_id", userID).Msg("subscriber queue full, subscription evicted")
			h.removeLocked(s)
		}
	}
	return nil
}

// Publish lets the Hub act as the store's publisher when there is no external
// change feed.
func (h *Hub) Publish(ctx context.Context, userID string) error {
	return h.Notify(ctx, userID)
}

// Resync re-notifies every watched user. Sources call it after a gap in
// their feed.
func (h *Hub) Resync(ctx context.Context) {
	for _, userID := range h.watchedUsers() {
		if err := h.Notify(ctx, userID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("entitlement resync failed")
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (h *Hub) watched(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID]) > 0
}

func (h *Hub) watchedUsers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make([]string, 0, len(h.subs))
	for id := range h.subs {
		users = append(users, id)
	}
	return users
}
