package transcript

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    filepath.Join(dir, "all.ndjson"),
		QueueSize:     16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		VisitorID:  "visitor-1",
		SessionID:  "sess-1",
		Channel:    ChannelHTTP,
		Direction:  DirectionInbound,
		EventType:  EventUserMessage,
		ContentRaw: "Do you build chatbots?",
	})

	line := waitForLogLine(t, filepath.Join(dir, "visitor-1", "sess-1.ndjson"))
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "Do you build chatbots?" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content == "" || got.Timestamp == "" {
		t.Fatalf("expected cleaned content and timestamp: %+v", got)
	}

	waitForLogLine(t, filepath.Join(dir, "all.ndjson"))
}

func TestLoggerFlushesOnClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 64}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		logger.Log(Event{SessionID: "s", EventType: EventBotMessage, ContentRaw: "reply"})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Logging after close is ignored.
	logger.Log(Event{SessionID: "s", ContentRaw: "late"})

	data, err := os.ReadFile(filepath.Join(dir, "anonymous", "s.ndjson"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 10 {
		t.Fatalf("expected 10 lines, got %d", n)
	}
}

func TestDisabledLoggerIsNop(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := logger.(Nop); !ok {
		t.Fatalf("expected Nop, got %T", logger)
	}
}

func TestCleanStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m   plain\x07"
	clean := Clean(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if clean != "error plain" {
		t.Fatalf("unexpected clean text: %q", clean)
	}
}

func TestSafeNameBlocksTraversal(t *testing.T) {
	t.Parallel()

	if got := safeName("../../etc/passwd", "x"); strings.Contains(got, "/") || strings.HasPrefix(got, ".") {
		t.Fatalf("unsafe name: %q", got)
	}
	if got := safeName("", "anonymous"); got != "anonymous" {
		t.Fatalf("fallback = %q", got)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
