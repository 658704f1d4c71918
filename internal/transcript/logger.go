// Package transcript writes chat turns to newline-delimited JSON files, one
// file per visitor session plus an optional combined file.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one logged line.
type Event struct {
	Timestamp  string         `json:"ts"`
	VisitorID  string         `json:"visitor_id,omitempty"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Channels and event types.
const (
	ChannelHTTP = "chat_http"
	ChannelWS   = "chat_ws"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	EventUserMessage = "chat_user_message"
	EventBotMessage  = "chat_bot_message"
	EventLeadLogged  = "lead_logged"
)

// Logger accepts events without blocking the caller.
type Logger interface {
	Log(Event)
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Log(Event)    {}
func (Nop) Close() error { return nil }

// FileLogger drains a bounded queue on a single goroutine. When the queue
// is full events are dropped and counted.
type FileLogger struct {
	cfg    Config
	log    *slog.Logger
	queue  chan Event
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool

	dropped int
	files   map[string]*os.File
	global  *os.File
}

// New returns a Logger for cfg. A disabled config yields Nop.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l := &FileLogger{
		cfg:   cfg,
		log:   logger,
		queue: make(chan Event, cfg.QueueSize),
		done:  make(chan struct{}),
		files: make(map[string]*os.File),
	}
	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global transcript directory: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open global transcript: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

// Log enqueues ev. Missing timestamp and cleaned content are filled in.
func (l *FileLogger) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = Clean(ev.ContentRaw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.dropped++
		if l.dropped == 1 || l.dropped%100 == 0 {
			l.log.Warn("transcript queue full, dropping events", "dropped", l.dropped)
		}
	}
}

// Close flushes queued events and closes every file.
func (l *FileLogger) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}

func (l *FileLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		l.write(ev)
	}
	for path, f := range l.files {
		if err := f.Close(); err != nil {
			l.log.Warn("failed to close transcript file", "path", path, "error", err)
		}
	}
	if l.global != nil {
		if err := l.global.Close(); err != nil {
			l.log.Warn("failed to close global transcript", "error", err)
		}
	}
}

func (l *FileLogger) write(ev Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		l.log.Warn("failed to encode transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	f, err := l.sessionFile(ev)
	if err != nil {
		l.log.Warn("failed to open transcript file", "session_id", ev.SessionID, "error", err)
	} else if _, err := f.Write(line); err != nil {
		l.log.Warn("failed to write transcript event", "session_id", ev.SessionID, "error", err)
	}
	if l.global != nil {
		if _, err := l.global.Write(line); err != nil {
			l.log.Warn("failed to write global transcript", "error", err)
		}
	}
}

func (l *FileLogger) sessionFile(ev Event) (*os.File, error) {
	visitor := safeName(ev.VisitorID, "anonymous")
	session := safeName(ev.SessionID, "unknown")
	path := filepath.Join(l.cfg.Dir, visitor, session+".ndjson")
	if f, ok := l.files[path]; ok {
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l.files[path] = f
	return f, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeName(s, fallback string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}

var (
	ansiSeq      = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)
)

// Clean strips terminal escapes and control characters and collapses runs
// of blanks, so pasted console output reads cleanly.
func Clean(raw string) string {
	s := ansiSeq.ReplaceAllString(raw, "")
	s = controlChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
