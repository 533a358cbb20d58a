package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/conversation"
	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/metrics"
	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// SocketHandler upgrades a request to a websocket and runs one Conversation on it.
type SocketHandler struct {
	engine       *conversation.Engine
	metrics      *metrics.Collectors
	upgrader     websocket.Upgrader
	maxFrame     int64
	pingInterval time.Duration
}

// NewSocketHandler creates the handler. Browser origins outside origins are refused;
// requests without an Origin header are accepted.
func NewSocketHandler(engine *conversation.Engine, m *metrics.Collectors, origins []string, maxFrame int64, ping time.Duration) *SocketHandler {
	if maxFrame <= 0 {
		maxFrame = 64 << 10
	}
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &SocketHandler{
		engine:       engine,
		metrics:      m,
		maxFrame:     maxFrame,
		pingInterval: ping,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
	}
}

// socketWriter serialises writes; gorilla allows one concurrent writer.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socketWriter) Emit(_ context.Context, frame models.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(frame)
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WarnLog("Socket upgrade failed: %v", err)
		return
	}

	id := middleware.GetReqID(r.Context())
	if id == "" {
		id = uuid.NewString()
	}
	h.metrics.ConnectionOpened()
	logging.Info("socket connected", zap.String("conn", id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	writer := &socketWriter{conn: conn}
	conv := h.engine.NewConversation(ctx, id, writer)

	pingDone := make(chan struct{})
	go h.ping(ctx, writer, pingDone)

	defer func() {
		cancel()
		<-pingDone
		conv.Wait()
		conn.Close()
		h.metrics.ConnectionClosed()
		logging.Info("socket closed", zap.String("conn", id))
	}()

	// Replies have no deadline; a missing pong ends the read instead.
	conn.SetReadLimit(h.maxFrame)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WarnLog("Socket [%s]: read failed: %v", id, err)
			}
			return
		}

		event, payload, ok := decodeFrame(data)
		if !ok {
			logging.Debug("malformed frame dropped", zap.String("conn", id), zap.Int("bytes", len(data)))
			h.metrics.Dropped()
			continue
		}
		conv.Dispatch(event, payload)
	}
}

// ping keeps the connection alive. An unanswered ping sets a read deadline
// that the pong handler clears.
func (h *SocketHandler) ping(ctx context.Context, w *socketWriter, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err == nil {
				err = w.conn.SetReadDeadline(time.Now().Add(h.pingInterval + writeWait))
			}
			w.mu.Unlock()
			if err != nil {
				logging.DebugLog("Socket ping failed: %v", err)
				return
			}
		}
	}
}

func decodeFrame(data []byte) (string, models.InboundPayload, bool) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", models.InboundPayload{}, false
	}
	if err := validate.Struct(env); err != nil {
		return "", models.InboundPayload{}, false
	}

	var payload models.InboundPayload
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return "", models.InboundPayload{}, false
		}
	}
	return env.Event, payload, true
}
