package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/leads"
	"github.com/zentiam/leadbot/internal/store"
)

// setupEnv points every path the CLI touches at a temp dir.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "leadbot.db"))
	t.Setenv("LEADS_ENABLED", "true")
	t.Setenv("LEADS_WORKBOOK", filepath.Join(dir, "leads.xlsx"))
	t.Setenv("CONVERSATION_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("SITE_URL", "")
	t.Setenv("TAXONOMY_PATH", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// seedLead stores a qualified conversation directly.
func seedLead(t *testing.T, dir string) string {
	t.Helper()
	ctx := context.Background()
	repo, err := store.NewSQLite(filepath.Join(dir, "leadbot.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer repo.Close()

	session, err := repo.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, msg := range []domain.Message{
		{Sender: domain.SenderUser, Text: "We need help with inventory tracking", Timestamp: time.Now()},
		{Sender: domain.SenderBot, Text: "Could you share your name?", Timestamp: time.Now()},
	} {
		if err := repo.AppendMessage(ctx, session.SessionID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if _, err := repo.UpdateContact(ctx, session.SessionID, domain.Contact{Name: "Dana", Email: "dana@co.com", Phone: domain.PhoneSkipped}); err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	return session.SessionID
}

func TestIngest(t *testing.T) {
	dir := setupEnv(t)

	doc := filepath.Join(dir, "services.txt")
	if err := os.WriteFile(doc, []byte("Zentiam builds warehouse inventory software and integrations."), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := run(t, "ingest", doc)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, "services.txt") || !strings.Contains(out, "chunks in knowledge base") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	deck := filepath.Join(dir, "deck.key")
	if err := os.WriteFile(deck, []byte("binary"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err = run(t, "ingest", deck)
	if err == nil {
		t.Fatal("expected error for unsupported file")
	}
	if !strings.Contains(out, "unsupported file type") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCrawlRequiresURL(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "crawl"); err == nil || !strings.Contains(err.Error(), "SITE_URL") {
		t.Fatalf("expected SITE_URL error, got %v", err)
	}
}

func TestSessionsAndExport(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "No sessions found.") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	id := seedLead(t, dir)
	out, err = run(t, "sessions", "--limit", "5")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "dana@co.com") || !strings.Contains(out, "pending") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, err = run(t, "export", id)
	if err != nil {
		t.Fatalf("export yaml: %v", err)
	}
	var asYAML struct {
		Session domain.ChatSession `yaml:"session"`
		Lead    leads.Row          `yaml:"lead"`
	}
	if err := yaml.Unmarshal([]byte(out), &asYAML); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, out)
	}
	if asYAML.Session.SessionID != id || len(asYAML.Session.Messages) != 2 {
		t.Fatalf("unexpected session %+v", asYAML.Session)
	}
	if asYAML.Lead.Email != "dana@co.com" {
		t.Fatalf("unexpected lead %+v", asYAML.Lead)
	}

	target := filepath.Join(dir, "export.json")
	if _, err := run(t, "export", id, "-f", "json", "-o", target); err != nil {
		t.Fatalf("export json: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var asJSON sessionExport
	if err := json.Unmarshal(data, &asJSON); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if asJSON.Session == nil || asJSON.Session.Contact.Name != "Dana" {
		t.Fatalf("unexpected export %+v", asJSON)
	}

	if _, err := run(t, "export", id, "-f", "csv"); err == nil {
		t.Fatal("expected error for csv format")
	}
	if _, err := run(t, "export", "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestSyncWritesWorkbook(t *testing.T) {
	dir := setupEnv(t)
	seedLead(t, dir)

	out, err := run(t, "sync")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(out, "1 lead(s) written") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	rows, err := leads.ReadRows(filepath.Join(dir, "leads.xlsx"))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	out, err = run(t, "sync")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if !strings.Contains(out, "0 lead(s) written") {
		t.Fatalf("expected nothing pending:\n%s", out)
	}
}

func TestSyncDisabled(t *testing.T) {
	setupEnv(t)
	t.Setenv("LEADS_ENABLED", "false")

	if _, err := run(t, "sync"); err == nil {
		t.Fatal("expected error when leads are disabled")
	}
}
