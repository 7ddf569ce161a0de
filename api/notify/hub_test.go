package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
)

type fakeLoader struct {
	mu   sync.Mutex
	rows map[string]stripedb.Entitlement
	err  error
}

func (f *fakeLoader) GetEntitlement(_ context.Context, userID string) (stripedb.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stripedb.Entitlement{}, f.err
	}
	ent, ok := f.rows[userID]
	if !ok {
		return stripedb.Entitlement{}, stripedb.ErrNotFound
	}
	return ent, nil
}

func (f *fakeLoader) set(userID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := status
	f.rows[userID] = stripedb.Entitlement{ID: userID, SubscriptionStatus: &s}
}

func newTestHub() (*Hub, *fakeLoader) {
	loader := &fakeLoader{rows: map[string]stripedb.Entitlement{}}
	return NewHub(loader), loader
}

func receive(t *testing.T, s *Subscription) stripedb.Entitlement {
	t.Helper()
	select {
	case ent, ok := <-s.Updates():
		require.True(t, ok, "subscription closed")
		return ent
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	return stripedb.Entitlement{}
}

func assertNothing(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case ent, ok := <-s.Updates():
		if ok {
			t.Fatalf("unexpected update %+v", ent)
		}
	default:
	}
}

func TestHub_DeliversToSubscribersOfUser(t *testing.T) {
	hub, loader := newTestHub()
	loader.set("u1", "active")
	loader.set("u2", "active")

	a := hub.Subscribe("u1")
	b := hub.Subscribe("u1")
	other := hub.Subscribe("u2")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	require.NoError(t, hub.Notify(context.Background(), "u1"))
	assert.Equal(t, "u1", receive(t, a).ID)
	assert.Equal(t, "u1", receive(t, b).ID)
	assertNothing(t, other)
}

func TestHub_CarriesLatestRow(t *testing.T) {
	hub, loader := newTestHub()
	loader.set("u1", "active")
	s := hub.Subscribe("u1")
	defer s.Close()

	loader.set("u1", "past_due")
	require.NoError(t, hub.Notify(context.Background(), "u1"))
	assert.Equal(t, "past_due", receive(t, s).Status())
}

func TestHub_CloseStopsDelivery(t *testing.T) {
	hub, loader := newTestHub()
	loader.set("u1", "active")
	s := hub.Subscribe("u1")
	assert.Equal(t, 1, hub.Subscribers())

	s.Close()
	s.Close()
	assert.Equal(t, 0, hub.Subscribers())
	require.NoError(t, hub.Notify(context.Background(), "u1"))

	_, ok := <-s.Updates()
	assert.False(t, ok)
}

func TestHub_FullQueueEvictsSubscriber(t *testing.T) {
	hub, loader := newTestHub()
	loader.set("u1", "active")
	slow := hub.Subscribe("u1")
	fast := hub.Subscribe("u1")
	defer slow.Close()
	defer fast.Close()

	for i := 0; i < DefaultBuffer; i++ {
		require.NoError(t, hub.Notify(context.Background(), "u1"))
		receive(t, fast)
	}
	loader.set("u1", "past_due")
	require.NoError(t, hub.Notify(context.Background(), "u1"))

	// The queued rows drain, then the channel is closed so the consumer
	// re-reads instead of sitting on a stale row.
	for i := 0; i < DefaultBuffer; i++ {
		_, ok := <-slow.Updates()
		require.True(t, ok)
	}
	_, ok := <-slow.Updates()
	assert.False(t, ok)

	assert.Equal(t, "past_due", receive(t, fast).Status())
	assert.Equal(t, 1, hub.Subscribers())
	slow.Close()
	assert.Equal(t, 1, hub.Subscribers())
}

// gatedLoader holds its first read until release is closed and answers
// later reads with the newer row.
type gatedLoader struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (g *gatedLoader) GetEntitlement(_ context.Context, userID string) (stripedb.Entitlement, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	status := "past_due"
	if call == 1 {
		close(g.started)
		<-g.release
		status = "active"
	}
	return stripedb.Entitlement{ID: userID, SubscriptionStatus: &status}, nil
}

func TestHub_NotifyKeepsReadOrderPerUser(t *testing.T) {
	loader := &gatedLoader{started: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(loader)
	s := hub.Subscribe("u1")
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = hub.Notify(context.Background(), "u1")
	}()
	<-loader.started
	go func() {
		defer wg.Done()
		_ = hub.Notify(context.Background(), "u1")
	}()
	time.Sleep(50 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, "active", receive(t, s).Status())
	assert.Equal(t, "past_due", receive(t, s).Status())
}

func TestHub_MissingRowAndLoadErrors(t *testing.T) {
	hub, loader := newTestHub()
	s := hub.Subscribe("u1")
	defer s.Close()

	require.NoError(t, hub.Notify(context.Background(), "u1"))
	assertNothing(t, s)

	loader.err = errors.New("db down")
	assert.Error(t, hub.Notify(context.Background(), "u1"))
	// Unwatched users never hit the loader.
	assert.NoError(t, hub.Notify(context.Background(), "u9"))
}

func TestHub_PublishAndResync(t *testing.T) {
	hub, loader := newTestHub()
	loader.set("u1", "active")
	loader.set("u2", "trialing")
	a := hub.Subscribe("u1")
	b := hub.Subscribe("u2")
	defer a.Close()
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), "u1"))
	assert.Equal(t, "active", receive(t, a).Status())

	hub.Resync(context.Background())
	assert.Equal(t, "active", receive(t, a).Status())
	assert.Equal(t, "trialing", receive(t, b).Status())
}

func TestHub_ConcurrentCloseAndNotify(t *testing.T) {
	hub, loader := newTestHub()
	loader.set("u1", "active")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		s := hub.Subscribe("u1")
		go func() {
			defer wg.Done()
			_ = hub.Notify(context.Background(), "u1")
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}
