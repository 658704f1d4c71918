package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/knowledge"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // Serializes read-modify-write updates to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		info_collected INTEGER NOT NULL DEFAULT 0,
		query_topics TEXT NOT NULL DEFAULT '[]',
		lead_synced INTEGER NOT NULL DEFAULT 0,
		lead_synced_at INTEGER,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		text TEXT NOT NULL,
		answered INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_questions_session ON questions(session_id, id);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		chunk_id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		text TEXT NOT NULL,
		keywords TEXT NOT NULL,
		metadata TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON knowledge_chunks(doc_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// withRetry runs op, retrying SQLITE_BUSY and locked errors with
// exponential backoff: 50ms, 100ms, 200ms.
func withRetry(ctx context.Context, name string, op func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !isConflict(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("SQLite busy, retrying", "op", name, "attempt", i+1, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", name, maxRetries, err)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Create starts a new empty session.
func (s *SQLiteStore) Create(ctx context.Context) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	session := &domain.ChatSession{
		SessionID: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := withRetry(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (session_id, created_at, updated_at) VALUES (?, ?, ?)`,
			session.SessionID, now.UnixMilli(), now.UnixMilli())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// Get retrieves a session with its messages and questions.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	session, err := s.getHeader(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, text, created_at FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()
	for rows.Next() {
		var m domain.Message
		var sender string
		var ts int64
		if err := rows.Scan(&sender, &m.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Sender = domain.Sender(sender)
		m.Timestamp = time.UnixMilli(ts).UTC()
		session.Messages = append(session.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	qrows, err := s.db.QueryContext(ctx,
		`SELECT text, answered FROM questions WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer func() {
		if closeErr := qrows.Close(); closeErr != nil {
			slog.Warn("failed to close question rows", "error", closeErr)
		}
	}()
	for qrows.Next() {
		var text string
		var answered bool
		if err := qrows.Scan(&text, &answered); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if answered {
			session.AnsweredQuestions = append(session.AnsweredQuestions, text)
		} else {
			session.UnansweredQuestions = append(session.UnansweredQuestions, text)
		}
	}
	if err := qrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	return session, nil
}

const sessionColumns = `session_id, name, email, phone, info_collected, query_topics,
	lead_synced, lead_synced_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var topics string
	var syncedAt sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(
		&session.SessionID, &session.Contact.Name, &session.Contact.Email, &session.Contact.Phone,
		&session.InfoCollected, &topics, &session.LeadSynced, &syncedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &session.QueryTopics); err != nil {
		return nil, fmt.Errorf("decode query topics: %w", err)
	}
	if syncedAt.Valid {
		session.LeadSyncedAt = time.UnixMilli(syncedAt.Int64).UTC()
	}
	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	session.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &session, nil
}

func (s *SQLiteStore) getHeader(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// AppendMessage adds a message to a session.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return withRetry(ctx, "append message", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET message_count = message_count + 1, updated_at = ? WHERE session_id = ?`,
			time.Now().UTC().UnixMilli(), sessionID)
		if err != nil {
			return fmt.Errorf("bump session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, sender, text, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, string(msg.Sender), msg.Text, msg.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return tx.Commit()
	})
}

// UpdateContact merges update into the stored contact.
func (s *SQLiteStore) UpdateContact(ctx context.Context, sessionID string, update domain.Contact) (domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.getHeader(ctx, sessionID)
	if err != nil {
		return domain.Contact{}, err
	}
	contact := session.Contact
	if !contact.Merge(update) {
		return contact, nil
	}

	err = withRetry(ctx, "update contact", func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE sessions SET name = ?, email = ?, phone = ?, info_collected = ?,
				lead_synced = 0, updated_at = ?
			WHERE session_id = ?`,
			contact.Name, contact.Email, contact.Phone, contact.InfoCollected(),
			time.Now().UTC().UnixMilli(), sessionID)
		return err
	})
	if err != nil {
		return domain.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return contact, nil
}

// AppendQuestion records a visitor question.
func (s *SQLiteStore) AppendQuestion(ctx context.Context, sessionID, text string, answered bool) error {
	return withRetry(ctx, "append question", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC().UnixMilli()
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ? WHERE session_id = ?`, now, sessionID)
		if err != nil {
			return fmt.Errorf("bump session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (session_id, text, answered, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, text, answered, now); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return tx.Commit()
	})
}

// SetTopics replaces the detected topics of a session.
func (s *SQLiteStore) SetTopics(ctx context.Context, sessionID string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	return withRetry(ctx, "set topics", func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET query_topics = ?, updated_at = ? WHERE session_id = ?`,
			string(data), time.Now().UTC().UnixMilli(), sessionID)
		return err
	})
}

// List returns sessions with at least one message, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, name, email, message_count, info_collected, lead_synced, created_at, updated_at
		FROM sessions WHERE message_count > 0
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var out []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var createdAt, updatedAt int64
		if err := rows.Scan(&sum.SessionID, &sum.Name, &sum.Email, &sum.MessageCount,
			&sum.InfoCollected, &sum.LeadSynced, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(createdAt).UTC()
		sum.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// ListUnsyncedLeads returns leads waiting for the lead sink.
func (s *SQLiteStore) ListUnsyncedLeads(ctx context.Context, limit int) ([]*domain.ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id FROM sessions
		WHERE lead_synced = 0 AND name != '' AND email != ''
		ORDER BY updated_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unsynced leads: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate unsynced leads: %w", err)
	}
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close lead rows", "error", err)
	}

	out := make([]*domain.ChatSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// Counts summarizes sessions and leads in one scan.
func (s *SQLiteStore) Counts(ctx context.Context) (domain.Counts, error) {
	var c domain.Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(message_count > 0), 0),
			COALESCE(SUM(name != '' AND email != ''), 0),
			COALESCE(SUM(info_collected), 0),
			COALESCE(SUM(lead_synced = 0 AND name != '' AND email != ''), 0)
		FROM sessions`).Scan(&c.Sessions, &c.Conversations, &c.Leads, &c.InfoCollected, &c.UnsyncedLeads)
	if err != nil {
		return domain.Counts{}, fmt.Errorf("count sessions: %w", err)
	}
	return c, nil
}

// MarkLeadSynced records a successful lead sink write.
func (s *SQLiteStore) MarkLeadSynced(ctx context.Context, sessionID string, at time.Time) error {
	return withRetry(ctx, "mark lead synced", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET lead_synced = 1, lead_synced_at = ?, updated_at = ? WHERE session_id = ?`,
			at.UTC().UnixMilli(), time.Now().UTC().UnixMilli(), sessionID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteOlderThan removes sessions not updated since cutoff along with
// their messages and questions.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	err := withRetry(ctx, "delete old sessions", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		threshold := cutoff.UTC().UnixMilli()
		old := `SELECT session_id FROM sessions WHERE updated_at < ?`
		for _, table := range []string{"messages", "questions"} {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE session_id IN (`+old+`)`, threshold); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return tx.Commit()
	})
	return deleted, err
}

// SaveChunks replaces the stored chunks of docID.
func (s *SQLiteStore) SaveChunks(ctx context.Context, docID string, chunks []knowledge.Chunk) error {
	return withRetry(ctx, "save chunks", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE doc_id = ?`, docID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO knowledge_chunks (chunk_id, doc_id, seq, text, keywords, metadata)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range chunks {
			keywords, err := json.Marshal(c.Keywords)
			if err != nil {
				return fmt.Errorf("encode keywords: %w", err)
			}
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, c.ID, docID, c.Seq, c.Text, string(keywords), string(meta)); err != nil {
				return fmt.Errorf("insert chunk %s: %w", c.ID, err)
			}
		}
		return tx.Commit()
	})
}

// DeleteChunks removes every stored chunk of docID.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, docID string) error {
	return withRetry(ctx, "delete chunks", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE doc_id = ?`, docID)
		return err
	})
}

// LoadChunks returns every stored chunk in ingestion order.
func (s *SQLiteStore) LoadChunks(ctx context.Context) ([]knowledge.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, doc_id, seq, text, keywords, metadata FROM knowledge_chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chunk rows", "error", closeErr)
		}
	}()

	var out []knowledge.Chunk
	for rows.Next() {
		var c knowledge.Chunk
		var keywords, meta string
		if err := rows.Scan(&c.ID, &c.DocID, &c.Seq, &c.Text, &keywords, &meta); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &c.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords of %s: %w", c.ID, err)
		}
		if strings.TrimSpace(meta) != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
