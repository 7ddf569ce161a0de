package stripehttp

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 2 * pingInterval
)

// Stream message types.
const (
	MessageSnapshot = "snapshot"
	MessageUpdate   = "update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Callers authenticate with a bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type entitlementResponse struct {
	Entitlement       stripedb.Entitlement `json:"entitlement"`
	CustomerPortalURL string               `json:"customer_portal_url,omitempty"`
}

// StreamMessage is one frame on the entitlement stream.
type StreamMessage struct {
	Type string               `json:"type"`
	Data stripedb.Entitlement `json:"data"`
}

// Me returns the caller's entitlement row.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	id, err := h.verifier.FromRequest(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	ent, err := h.svc.GetEntitlement(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entitlementResponse{Entitlement: ent, CustomerPortalURL: h.portalURL})
}

// Stream upgrades to a websocket that sends a snapshot of the caller's row
// followed by an update frame per change.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := h.verifier.FromRequest(r, true)
	if err != nil {
		writeError(w, err)
		return
	}

	// Subscribe before the point read so no change between the two is lost.
	sub := h.hub.Subscribe(id.UserID)
	defer sub.Close()

	snapshot, err := h.svc.GetEntitlement(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", id.UserID).Msg("websocket upgrade failed")
		return
	}
	defer func() {
		sub.Close()
		_ = conn.Close()
	}()
	logger := log.With().Str("user_id", id.UserID).Logger()
	logger.Debug().Msg("entitlement stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(conn, StreamMessage{Type: MessageSnapshot, Data: snapshot}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			logger.Debug().Msg("entitlement stream closed by client")
			return
		case <-r.Context().Done():
			return
		case ent, ok := <-sub.Updates():
			if !ok {
				// Evicted for falling behind; the client reconnects and re-snapshots.
				msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync required")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				logger.Info().Msg("entitlement stream evicted")
				return
			}
			if err := writeFrame(conn, StreamMessage{Type: MessageUpdate, Data: ent}); err != nil {
				logger.Debug().Err(err).Msg("entitlement stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
