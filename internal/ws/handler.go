package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/zentiam/leadbot/internal/chatbot"
	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/identity"
	"github.com/zentiam/leadbot/internal/metrics"
	"github.com/zentiam/leadbot/internal/store"
	"github.com/zentiam/leadbot/internal/transcript"
)

const (
	readLimit    = 16 << 10
	writeTimeout = 10 * time.Second
)

// Message types.
const (
	TypeMessage = "message"
	TypePing    = "ping"
	TypeEnd     = "end"
	TypeSession = "session"
	TypeReply   = "reply"
	TypePong    = "pong"
	TypeEnded   = "ended"
	TypeError   = "error"
)

// ChatService runs conversation turns.
type ChatService interface {
	StartSession(ctx context.Context) (*domain.ChatSession, error)
	Chat(ctx context.Context, in chatbot.Input) (chatbot.Reply, error)
}

// inbound is a client frame.
type inbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type replyFrame struct {
	Type string `json:"type"`
	chatbot.Reply
}

// Handler upgrades /ws/chat requests and runs one chat session per socket.
type Handler struct {
	chat     ChatService
	sm       *SessionManager
	patterns []string
	isDev    bool
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewHandler creates a WebSocket chat handler. allowedOrigins are full
// origins ("https://zentiam.com") or "*".
func NewHandler(chat ChatService, sm *SessionManager, allowedOrigins []string, isDev bool, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chat:     chat,
		sm:       sm,
		patterns: originPatterns(allowedOrigins),
		isDev:    isDev,
		metrics:  m,
		log:      logger,
	}
}

// originPatterns reduces origins to the host patterns websocket.Accept
// matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, o)
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}

// ServeHTTP implements http.Handler for WebSocket upgrade. The optional
// session_id query parameter resumes a session; otherwise one is created.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.patterns,
		InsecureSkipVerify: h.isDev,
	})
	if err != nil {
		h.log.Warn("Failed to accept WebSocket", "error", err, "ip", identity.IPFromRequest(r))
		return
	}
	conn.SetReadLimit(readLimit)
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if sessionID == "" {
		session, err := h.chat.StartSession(ctx)
		if err != nil {
			h.log.Error("Failed to create session", "error", err)
			h.writeError(ctx, conn, "session_unavailable")
			return
		}
		sessionID = session.SessionID
	}

	h.sm.Register(sessionID, conn)
	defer h.sm.Unregister(sessionID, conn)
	h.metrics.SocketOpened()
	defer h.metrics.SocketClosed()

	if err := h.writeJSON(ctx, conn, map[string]string{"type": TypeSession, "session_id": sessionID}); err != nil {
		return
	}

	h.log.Info("Chat socket opened", "session_id", sessionID, "visitor_id", visitorID)
	h.readLoop(ctx, conn, sessionID, visitorID, chiMiddleware.GetReqID(r.Context()))
	h.log.Info("Chat socket closed", "session_id", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID, visitorID, requestID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.log.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				h.log.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			// Plain text frames are treated as chat messages.
			msg = inbound{Type: TypeMessage, Content: string(data)}
		}

		switch msg.Type {
		case TypeMessage:
			reply, err := h.chat.Chat(ctx, chatbot.Input{
				SessionID: sessionID,
				Message:   msg.Content,
				VisitorID: visitorID,
				Channel:   transcript.ChannelWS,
				RequestID: requestID,
			})
			switch {
			case err == nil:
				if err := h.writeJSON(ctx, conn, replyFrame{Type: TypeReply, Reply: reply}); err != nil {
					return
				}
			case errors.Is(err, chatbot.ErrEmptyMessage):
				h.writeError(ctx, conn, "empty_message")
			case errors.Is(err, store.ErrNotFound):
				h.writeError(ctx, conn, "session_not_found")
				return
			default:
				h.log.Error("Chat turn failed", "error", err, "session_id", sessionID)
				h.writeError(ctx, conn, "turn_failed")
			}
		case TypePing:
			if err := h.writeJSON(ctx, conn, map[string]string{"type": TypePong}); err != nil {
				h.log.Debug("Failed to send pong", "error", err)
			}
		case TypeEnd:
			_ = h.writeJSON(ctx, conn, map[string]string{"type": TypeEnded})
			return
		default:
			h.writeError(ctx, conn, "unknown_type")
		}
	}
}

func (h *Handler) writeError(ctx context.Context, conn *websocket.Conn, code string) {
	if err := h.writeJSON(ctx, conn, map[string]string{"type": TypeError, "error": code}); err != nil {
		h.log.Debug("Failed to send error frame", "error", err, "code", code)
	}
}

func (h *Handler) writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
