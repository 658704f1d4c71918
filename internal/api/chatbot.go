package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/zentiam/leadbot/internal/chatbot"
	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/identity"
	"github.com/zentiam/leadbot/internal/knowledge"
	"github.com/zentiam/leadbot/internal/metrics"
	"github.com/zentiam/leadbot/internal/store"
	"github.com/zentiam/leadbot/internal/transcript"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// ChatService runs conversation turns.
type ChatService interface {
	StartSession(ctx context.Context) (*domain.ChatSession, error)
	Chat(ctx context.Context, in chatbot.Input) (chatbot.Reply, error)
}

// KnowledgeService ingests documents into the knowledge index.
type KnowledgeService interface {
	IngestFile(ctx context.Context, filename string, data []byte) (knowledge.Document, int, error)
	CrawlSite(ctx context.Context, siteURL string) (pages int, chunks int, err error)
	Stats() (chunks int, docs map[string]int)
}

// SessionReader reads stored sessions for the admin views.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	List(ctx context.Context, limit int) ([]domain.SessionSummary, error)
}

// ChatbotHandler serves the chat widget and its admin endpoints.
type ChatbotHandler struct {
	chat      ChatService
	kb        KnowledgeService
	sessions  SessionReader
	siteURL   string
	uploadMax int64
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// ChatbotConfig holds the handler settings.
type ChatbotConfig struct {
	SiteURL   string
	UploadMax int64
}

// NewChatbotHandler creates a chatbot handler.
func NewChatbotHandler(chat ChatService, kb KnowledgeService, sessions SessionReader, cfg ChatbotConfig, m *metrics.Metrics, logger *slog.Logger) *ChatbotHandler {
	if cfg.UploadMax <= 0 {
		cfg.UploadMax = 20 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatbotHandler{
		chat:      chat,
		kb:        kb,
		sessions:  sessions,
		siteURL:   cfg.SiteURL,
		uploadMax: cfg.UploadMax,
		metrics:   m,
		log:       logger,
	}
}

// RegisterRoutes registers the visitor-facing chat routes.
func (h *ChatbotHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chatbot/session", h.CreateSession)
	r.Post("/api/chatbot/chat", h.Chat)
}

// RegisterAdminRoutes registers knowledge and session management routes.
func (h *ChatbotHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/api/chatbot/upload", h.Upload)
	r.Post("/api/chatbot/init", h.Init)
	r.Get("/api/chatbot/sessions", h.ListSessions)
	r.Get("/api/chatbot/session/{id}", h.GetSession)
	r.Get("/api/admin/knowledge", h.KnowledgeStats)
}

// CreateSession starts an empty conversation.
func (h *ChatbotHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chat.StartSession(r.Context())
	if err != nil {
		h.log.Error("Failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"session_id": session.SessionID})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Chat runs one turn.
func (h *ChatbotHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	reply, err := h.chat.Chat(r.Context(), chatbot.Input{
		SessionID: req.SessionID,
		Message:   req.Message,
		VisitorID: identity.VisitorIDFromContext(r.Context()),
		Channel:   transcript.ChannelHTTP,
		RequestID: chiMiddleware.GetReqID(r.Context()),
	})
	switch {
	case err == nil:
		JSON(w, http.StatusOK, reply)
	case errors.Is(err, chatbot.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "session not found")
	default:
		h.log.Error("Chat turn failed", "error", err, "session_id", req.SessionID)
		Error(w, http.StatusInternalServerError, "failed to process message")
	}
}

// Upload ingests a PDF, PPTX or text document from the multipart field "file".
func (h *ChatbotHandler) Upload(w http.ResponseWriter, r *http.Request) {
	tooLargeMsg := fmt.Sprintf("file exceeds %d bytes", h.uploadMax)
	if r.ContentLength > h.uploadMax {
		Error(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMax)
	if err := r.ParseMultipartForm(h.uploadMax); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
			return
		}
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	doc, chunks, err := h.kb.IngestFile(r.Context(), header.Filename, data)
	if err != nil {
		if errors.Is(err, knowledge.ErrUnsupportedType) {
			Error(w, http.StatusBadRequest, "Unsupported file type")
			return
		}
		h.log.Error("Failed to ingest document", "error", err, "filename", header.Filename)
		Error(w, http.StatusInternalServerError, "failed to process document")
		return
	}
	h.updateChunkGauge()

	h.log.Info("Document uploaded", "doc_id", doc.ID, "chunks", chunks)
	JSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Document %s uploaded successfully", header.Filename),
		"doc_id":  doc.ID,
		"chunks":  chunks,
	})
}

type initRequest struct {
	URL string `json:"url"`
}

// Init crawls the marketing site into the knowledge index. The body may
// override the configured site URL.
func (h *ChatbotHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	siteURL := strings.TrimSpace(req.URL)
	if siteURL == "" {
		siteURL = h.siteURL
	}
	if siteURL == "" {
		Error(w, http.StatusBadRequest, "no site URL configured")
		return
	}

	pages, chunks, err := h.kb.CrawlSite(r.Context(), siteURL)
	if err != nil {
		h.log.Error("Site crawl failed", "error", err, "url", siteURL)
		JSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "Failed to crawl website",
			"pages":   pages,
			"chunks":  chunks,
		})
		return
	}
	h.updateChunkGauge()

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Chatbot initialized and website crawled",
		"pages":   pages,
		"chunks":  chunks,
	})
}

// ListSessions returns sessions with at least one message, newest first.
func (h *ChatbotHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSessionLimit)
	}

	sessions, err := h.sessions.List(r.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession returns one session with its transcript.
func (h *ChatbotHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		h.log.Error("Failed to get session", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	JSON(w, http.StatusOK, session)
}

// KnowledgeStats reports the index size per document.
func (h *ChatbotHandler) KnowledgeStats(w http.ResponseWriter, _ *http.Request) {
	chunks, docs := h.kb.Stats()
	JSON(w, http.StatusOK, map[string]interface{}{
		"chunks":    chunks,
		"documents": docs,
	})
}

func (h *ChatbotHandler) updateChunkGauge() {
	chunks, _ := h.kb.Stats()
	h.metrics.Chunks(chunks)
}
