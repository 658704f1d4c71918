package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/zentiam/leadbot/internal/domain"
)

// Requires a reachable server; set MONGO_TEST_URI to run.
func TestMongoStoreRoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	s, err := NewMongo(uri, fmt.Sprintf("leadbot_test_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("NewMongo failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.sessions.Database().Drop(context.Background())
		_ = s.Close()
	})

	session, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.AppendMessage(ctx, session.SessionID, domain.Message{Sender: domain.SenderUser, Text: "hi"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if _, err := s.UpdateContact(ctx, session.SessionID, domain.Contact{Name: "Dana", Email: "dana@co.com"}); err != nil {
		t.Fatalf("UpdateContact failed: %v", err)
	}

	leads, err := s.ListUnsyncedLeads(ctx, 10)
	if err != nil || len(leads) != 1 {
		t.Fatalf("ListUnsyncedLeads = %d, %v", len(leads), err)
	}
	counts, err := s.Counts(ctx)
	if err != nil || counts != (domain.Counts{Sessions: 1, Conversations: 1, Leads: 1, UnsyncedLeads: 1}) {
		t.Fatalf("Counts = %+v, %v", counts, err)
	}
	list, err := s.List(ctx, 10)
	if err != nil || len(list) != 1 || list[0].MessageCount != 1 || list[0].Name != "Dana" {
		t.Fatalf("List = %+v, %v", list, err)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
