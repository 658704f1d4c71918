package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/zentiam/leadbot/internal/analyze"
	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/extract"
	"github.com/zentiam/leadbot/internal/leads"
	"github.com/zentiam/leadbot/internal/metrics"
	"github.com/zentiam/leadbot/internal/transcript"
)

// ErrEmptyMessage is returned for a blank chat message.
var ErrEmptyMessage = errors.New("message is required")

// MaxMessageLength bounds a single visitor message.
const MaxMessageLength = 4000

// SessionStore is the persistence the turn pipeline needs.
type SessionStore interface {
	Create(ctx context.Context) (*domain.ChatSession, error)
	Get(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error
	UpdateContact(ctx context.Context, sessionID string, update domain.Contact) (domain.Contact, error)
	AppendQuestion(ctx context.Context, sessionID, text string, answered bool) error
	SetTopics(ctx context.Context, sessionID string, topics []string) error
	MarkLeadSynced(ctx context.Context, sessionID string, at time.Time) error
}

// Input is one visitor message.
type Input struct {
	SessionID string
	Message   string
	VisitorID string
	Channel   string
	RequestID string
}

// Reply is what a transport returns to the visitor.
type Reply struct {
	SessionID    string            `json:"session_id"`
	Response     string            `json:"response"`
	NeedsInfo    bool              `json:"needs_info"`
	InfoType     string            `json:"info_type,omitempty"`
	InfoComplete bool              `json:"info_complete"`
	Intent       analyze.Intent    `json:"intent"`
	Sentiment    analyze.Sentiment `json:"sentiment"`
}

// Service runs the per-message pipeline: lock, load, extract, persist,
// analyze, respond, persist, then notify the lead sink and transcript.
type Service struct {
	store      SessionStore
	extractor  *extract.Extractor
	analyzer   *analyze.Analyzer
	orch       *Orchestrator
	locker     Locker
	sink       leads.Sink
	transcript transcript.Logger
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// Deps groups the Service collaborators. Sink, Transcript and Metrics are
// optional; Locker defaults to an in-process lock.
type Deps struct {
	Store        SessionStore
	Extractor    *extract.Extractor
	Analyzer     *analyze.Analyzer
	Orchestrator *Orchestrator
	Locker       Locker
	Sink         leads.Sink
	Transcript   transcript.Logger
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// NewService builds the turn pipeline.
func NewService(d Deps) *Service {
	if d.Locker == nil {
		d.Locker = NewMemoryLocker()
	}
	if d.Transcript == nil {
		d.Transcript = transcript.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		store:      d.Store,
		extractor:  d.Extractor,
		analyzer:   d.Analyzer,
		orch:       d.Orchestrator,
		locker:     d.Locker,
		sink:       d.Sink,
		transcript: d.Transcript,
		metrics:    d.Metrics,
		log:        d.Logger,
	}
}

// StartSession creates an empty session.
func (s *Service) StartSession(ctx context.Context) (*domain.ChatSession, error) {
	session, err := s.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("chat session started", "session_id", session.SessionID)
	return session, nil
}

// Chat runs one turn. It returns store.ErrNotFound for an unknown session
// and ErrEmptyMessage for a blank message; generation failures are folded
// into the reply.
func (s *Service) Chat(ctx context.Context, in Input) (Reply, error) {
	start := time.Now()
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	if runes := []rune(message); len(runes) > MaxMessageLength {
		message = string(runes[:MaxMessageLength])
	}

	unlock, err := s.locker.Lock(ctx, in.SessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	session, err := s.store.Get(ctx, in.SessionID)
	if err != nil {
		return Reply{}, err
	}
	history := session.Messages

	update := s.extractor.Extract(message, session.Contact, session.LastBotMessage())
	contact := session.Contact
	if update != (domain.Contact{}) {
		contact, err = s.store.UpdateContact(ctx, in.SessionID, update)
		if err != nil {
			return Reply{}, fmt.Errorf("update contact: %w", err)
		}
		s.countFields(update)
	}

	userMsg := domain.Message{Sender: domain.SenderUser, Text: message, Timestamp: time.Now().UTC()}
	if err := s.store.AppendMessage(ctx, in.SessionID, userMsg); err != nil {
		return Reply{}, fmt.Errorf("append user message: %w", err)
	}
	s.record(in, transcript.DirectionInbound, transcript.EventUserMessage, message, nil)

	analysis := s.analyzer.Analyze(message, history, contact)
	result := s.orch.Respond(ctx, Turn{
		SessionID: in.SessionID,
		Message:   message,
		History:   history,
		Previous:  session.Contact,
		Contact:   contact,
		Extracted: update,
		Analysis:  analysis,
	})
	if result.Failed {
		s.metrics.GenerationFailed()
	}

	if result.MarkPhoneSkipped {
		contact, err = s.store.UpdateContact(ctx, in.SessionID, domain.Contact{Phone: domain.PhoneSkipped})
		if err != nil {
			return Reply{}, fmt.Errorf("mark phone skipped: %w", err)
		}
	}

	botMsg := domain.Message{Sender: domain.SenderBot, Text: result.Response, Timestamp: time.Now().UTC()}
	if err := s.store.AppendMessage(ctx, in.SessionID, botMsg); err != nil {
		return Reply{}, fmt.Errorf("append bot message: %w", err)
	}
	s.record(in, transcript.DirectionOutbound, transcript.EventBotMessage, result.Response, map[string]any{
		"branch":    result.Branch,
		"intent":    result.Intent,
		"sentiment": result.Sentiment,
	})

	if strings.Contains(message, "?") {
		if err := s.store.AppendQuestion(ctx, in.SessionID, message, result.IsAnswered); err != nil {
			s.log.Warn("failed to record question", "session_id", in.SessionID, "error", err)
		}
	}
	if !slices.Equal(session.QueryTopics, analysis.Memory.Topics) {
		if err := s.store.SetTopics(ctx, in.SessionID, analysis.Memory.Topics); err != nil {
			s.log.Warn("failed to record topics", "session_id", in.SessionID, "error", err)
		}
	}

	if contact.IsLead() {
		s.pushLead(ctx, in)
	}

	s.metrics.ObserveTurn(string(result.Branch), string(result.Intent), time.Since(start))
	s.log.Info("chat turn",
		"session_id", in.SessionID,
		"branch", result.Branch,
		"intent", result.Intent,
		"sentiment", result.Sentiment,
		"needs_info", result.NeedsInfo,
		"info_collected", contact.InfoCollected(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Reply{
		SessionID:    in.SessionID,
		Response:     result.Response,
		NeedsInfo:    result.NeedsInfo,
		InfoType:     result.InfoType,
		InfoComplete: contact.InfoCollected(),
		Intent:       result.Intent,
		Sentiment:    result.Sentiment,
	}, nil
}

// pushLead writes the current snapshot to the lead sink unless this
// contact revision was already written. Failures are left for the sync
// worker.
func (s *Service) pushLead(ctx context.Context, in Input) {
	if s.sink == nil {
		return
	}
	snapshot, err := s.store.Get(ctx, in.SessionID)
	if err != nil {
		s.log.Warn("failed to load lead snapshot", "session_id", in.SessionID, "error", err)
		return
	}
	if snapshot.LeadSynced {
		return
	}
	err = s.sink.Log(ctx, snapshot)
	s.metrics.LeadSync(err)
	if err != nil {
		s.log.Warn("lead sink write failed, will retry", "session_id", in.SessionID, "error", err)
		return
	}
	if err := s.store.MarkLeadSynced(ctx, in.SessionID, time.Now()); err != nil {
		s.log.Warn("failed to mark lead synced", "session_id", in.SessionID, "error", err)
		return
	}
	s.record(in, transcript.DirectionOutbound, transcript.EventLeadLogged, "", map[string]any{
		"name":  snapshot.Contact.Name,
		"email": snapshot.Contact.Email,
	})
}

func (s *Service) record(in Input, direction, eventType, content string, meta map[string]any) {
	if in.RequestID != "" {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["request_id"] = in.RequestID
	}
	s.transcript.Log(transcript.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID:  in.VisitorID,
		SessionID:  in.SessionID,
		Channel:    in.Channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}

func (s *Service) countFields(update domain.Contact) {
	if update.Name != "" {
		s.metrics.ContactField("name")
	}
	if update.Email != "" {
		s.metrics.ContactField("email")
	}
	if update.Phone != "" {
		s.metrics.ContactField("phone")
	}
}
