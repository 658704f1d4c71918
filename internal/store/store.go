// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/knowledge"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Repository defines the interface for persisting chat sessions and
// knowledge chunks.
type Repository interface {
	// Create starts a new empty session with a fresh id.
	Create(ctx context.Context) (*domain.ChatSession, error)

	// Get returns a session with its messages, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*domain.ChatSession, error)

	// AppendMessage adds a message and bumps updated_at.
	AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error

	// UpdateContact fills unset contact fields from update, recomputes
	// info_collected and clears the lead-synced flag when anything changed.
	// It returns the stored contact.
	UpdateContact(ctx context.Context, sessionID string, update domain.Contact) (domain.Contact, error)

	// AppendQuestion records a visitor question as answered or unanswered.
	AppendQuestion(ctx context.Context, sessionID, text string, answered bool) error

	// SetTopics replaces the detected topics of a session.
	SetTopics(ctx context.Context, sessionID string, topics []string) error

	// List returns sessions with at least one message, newest first.
	List(ctx context.Context, limit int) ([]domain.SessionSummary, error)

	// ListUnsyncedLeads returns sessions with name and email whose current
	// contact has not been written to the lead sink.
	ListUnsyncedLeads(ctx context.Context, limit int) ([]*domain.ChatSession, error)

	// Counts summarizes sessions and leads.
	Counts(ctx context.Context) (domain.Counts, error)

	// MarkLeadSynced records a successful lead sink write.
	MarkLeadSynced(ctx context.Context, sessionID string, at time.Time) error

	// DeleteOlderThan removes sessions not updated since cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	knowledge.ChunkStore

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
