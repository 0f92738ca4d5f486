package push

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chunkq/internal/logging"
	"chunkq/internal/textutil"
)

// ControlMessage is the client-to-server frame adjusting a subscription.
type ControlMessage struct {
	Subscribe   []string `json:"subscribe,omitempty"`
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves WebSocket subscriptions backed by a hub.
type Handler struct {
	hub          *Hub
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHandler returns an http.Handler upgrading requests to WebSocket
// subscriptions. Topics passed as repeated "topic" query parameters are
// subscribed immediately; an optional "client" parameter labels the
// connection in logs.
func NewHandler(hub *Hub, writeTimeout time.Duration, logger *slog.Logger) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Handler{hub: hub, writeTimeout: writeTimeout, logger: logging.NewComponentLogger(logger, "push")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "push_upgrade_failed"),
		)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(r.URL.Query()["topic"]...)
	defer h.hub.Unsubscribe(sub)
	logger := h.logger.With(
		logging.String("subscriber", sub.ID),
		logging.String("client", textutil.SanitizeToken(r.URL.Query().Get("client"))),
	)
	logger.Debug("client subscribed", logging.String("remote", r.RemoteAddr))

	readErr := make(chan error, 1)
	go func() {
		for {
			var msg ControlMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			if len(msg.Subscribe) > 0 {
				h.hub.AddTopics(sub, msg.Subscribe...)
			}
			if len(msg.Unsubscribe) > 0 {
				h.hub.RemoveTopics(sub, msg.Unsubscribe...)
			}
		}
	}()

	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(n); err != nil {
				logger.Debug("client write failed", logging.Error(err))
				return
			}
		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("client read ended", logging.Error(err))
			}
			return
		case <-r.Context().Done():
			return
		}
	}
}
