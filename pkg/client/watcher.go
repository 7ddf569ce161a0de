package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	messageSnapshot = "snapshot"
	messageUpdate   = "update"

	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Watcher keeps the latest entitlement for a session. Each connection starts
// with an authoritative snapshot, so changes missed while disconnected are
// recovered on reconnect.
type Watcher struct {
	client     *Client
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.RWMutex
	current  *Entitlement
	onChange func(Entitlement)
	err      error

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type WatcherOption func(*Watcher)

func WithDialer(d *websocket.Dialer) WatcherOption { return func(w *Watcher) { w.dialer = d } }

// WithBackoff bounds the reconnect delay.
func WithBackoff(min, max time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.minBackoff = min
		w.maxBackoff = max
	}
}

func (c *Client) NewWatcher(opts ...WatcherOption) *Watcher {
	w := &Watcher{
		client:     c,
		dialer:     websocket.DefaultDialer,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// OnChange registers fn to run, on the watcher goroutine, whenever the
// entitlement is replaced.
func (w *Watcher) OnChange(fn func(Entitlement)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Current returns the last entitlement seen, false before the first snapshot.
func (w *Watcher) Current() (Entitlement, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.current == nil {
		return Entitlement{}, false
	}
	return *w.current, true
}

// Err is the reason the loop stopped on its own, if it did.
func (w *Watcher) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Done is closed when the loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Start launches the read loop. It fails only if the session is already over.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.client.session.Token(); err != nil {
		return err
	}
	started := false
	w.startOnce.Do(func() {
		started = true
		ctx, w.cancel = context.WithCancel(ctx)
		go w.loop(ctx)
	})
	if !started {
		return errors.New("watcher already started")
	}
	return nil
}

// Close stops the loop and waits for it to exit.
func (w *Watcher) Close() {
	started := true
	w.startOnce.Do(func() {
		started = false
		close(w.done)
	})
	if started {
		w.cancel()
		<-w.done
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	backoff := w.minBackoff
	for {
		connected, err := w.run(ctx)
		if ctx.Err() != nil {
			return
		}
		if isPermanent(err) {
			log.Warn().Err(err).Msg("entitlement watcher stopped")
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}
		if connected {
			backoff = w.minBackoff
		}
		log.Debug().Err(err).Dur("retry_in", backoff).Msg("entitlement stream disconnected")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > w.maxBackoff {
			backoff = w.maxBackoff
		}
	}
}

// run holds one connection until it drops. connected is true once a
// snapshot arrived on it.
func (w *Watcher) run(ctx context.Context) (connected bool, err error) {
	token, err := w.client.session.Token()
	if err != nil {
		return false, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := w.dialer.DialContext(ctx, streamURL(w.client.session), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return false, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return false, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		for {
			var msg streamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return err
			}
			switch msg.Type {
			case messageSnapshot:
				connected = true
			case messageUpdate:
				if !connected {
					continue
				}
			default:
				continue
			}
			var e Entitlement
			if err := json.Unmarshal(msg.Data, &e); err != nil {
				return fmt.Errorf("decode %s frame: %w", msg.Type, err)
			}
			w.set(e)
		}
	})
	err = g.Wait()
	return connected, err
}

func (w *Watcher) set(e Entitlement) {
	w.mu.Lock()
	w.current = &e
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func isPermanent(err error) bool {
	if errors.Is(err, ErrSessionInvalidated) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

func streamURL(s *Session) string {
	u := s.endpoint(PathEntitlementStream)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
