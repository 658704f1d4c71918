package leads

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

func session(id string, c domain.Contact, userMessages ...string) *domain.ChatSession {
	s := &domain.ChatSession{SessionID: id, Contact: c, InfoCollected: c.InfoCollected()}
	for _, m := range userMessages {
		s.Messages = append(s.Messages,
			domain.Message{Sender: domain.SenderUser, Text: m},
			domain.Message{Sender: domain.SenderBot, Text: "ok"})
	}
	return s
}

func TestBuildRow(t *testing.T) {
	t.Parallel()

	b := NewBuilder(taxonomy.Default())
	now := time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC)

	tests := []struct {
		name     string
		session  *domain.ChatSession
		status   string
		query    string
		phone    string
		industry string
	}{
		{
			name: "hot lead",
			session: session("s1",
				domain.Contact{Name: "Dana", Email: "dana@co.com", Phone: "555-123-4567"},
				"Hello", "We need a demo of your chatbot for our warehouse team"),
			status:   StatusHot,
			query:    "Demo Request",
			phone:    "555-123-4567",
			industry: "Logistics",
		},
		{
			name: "warm lead with skipped phone",
			session: session("s2",
				domain.Contact{Name: "Sam", Email: "sam@co.com", Phone: domain.PhoneSkipped},
				"What is your pricing for automation?"),
			status:   StatusWarm,
			query:    "Pricing Inquiry",
			phone:    notProvided,
			industry: notSpecified,
		},
		{
			name: "qualified lead",
			session: session("s3",
				domain.Contact{Name: "Lee", Email: "lee@co.com"},
				"Tell me about your company"),
			status:   StatusQualified,
			query:    generalInquiry,
			phone:    notProvided,
			industry: notSpecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := b.Build(tt.session, now)
			if row.Status != tt.status {
				t.Errorf("status = %q, want %q", row.Status, tt.status)
			}
			if row.QueryType != tt.query {
				t.Errorf("query type = %q, want %q", row.QueryType, tt.query)
			}
			if row.Phone != tt.phone {
				t.Errorf("phone = %q, want %q", row.Phone, tt.phone)
			}
			if row.Industry != tt.industry {
				t.Errorf("industry = %q, want %q", row.Industry, tt.industry)
			}
			if row.Date != "2026-03-04" || row.Time != "09:15" {
				t.Errorf("timestamp = %s %s", row.Date, row.Time)
			}
			if len(row.Values()) != len(Header) {
				t.Errorf("row has %d cells, header %d", len(row.Values()), len(Header))
			}
		})
	}
}

func TestSummarySkipsGreeting(t *testing.T) {
	t.Parallel()

	b := NewBuilder(taxonomy.Default())
	row := b.Build(session("s1", domain.Contact{Name: "Dana", Email: "d@co.com"},
		"Hello there, how are you doing today?",
		"Our clinic is struggling with appointment scheduling"), time.Now())

	if !strings.Contains(row.Summary, "Initial ask: Our clinic is struggling") {
		t.Fatalf("summary = %q", row.Summary)
	}
	if !strings.HasPrefix(row.Summary, "Query: Problem/Solution") {
		t.Fatalf("summary = %q", row.Summary)
	}
	if row.Requirements == notSpecified {
		t.Fatalf("expected requirements from challenge, got %q", row.Requirements)
	}
}

func TestWorkbookAppendsRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "leads", "leads.xlsx")
	w := NewWorkbook(path, NewBuilder(taxonomy.Default()))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		s := session(id, domain.Contact{Name: "Dana", Email: "dana@co.com"}, "Do you build chatbots?")
		if err := w.Log(ctx, s); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	rows, err := ReadRows(path)
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][2] != "Dana" || rows[1][len(Header)-1] != "b" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestWorkbookRecentAndStatus(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "leads.xlsx")
	w := NewWorkbook(path, NewBuilder(taxonomy.Default()))
	ctx := context.Background()

	st := w.Status()
	if st.Exists || !st.Writable || st.Rows != 0 {
		t.Fatalf("status before first write = %+v", st)
	}
	rows, err := w.Recent(5)
	if err != nil || len(rows) != 0 {
		t.Fatalf("Recent on missing workbook = %v, %v", rows, err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := w.Log(ctx, session(id, domain.Contact{Name: "Dana", Email: "dana@co.com"}, "Do you build chatbots?")); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	rows, err = w.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(rows) != 2 || rows[0].SessionID != "c" || rows[1].SessionID != "b" {
		t.Fatalf("expected newest first, got %+v", rows)
	}
	if rows[0].Email != "dana@co.com" {
		t.Fatalf("row = %+v", rows[0])
	}

	st = w.Status()
	if !st.Exists || !st.Writable || st.Rows != 3 || st.Error != "" {
		t.Fatalf("status after writes = %+v", st)
	}
}

func TestRowFromValuesPadsShortRows(t *testing.T) {
	r := RowFromValues([]string{"2026-03-04", "09:15", "Dana"})
	if r.Name != "Dana" || r.SessionID != "" {
		t.Fatalf("row = %+v", r)
	}
	full := Row{Name: "Dana", Email: "d@co.com", SessionID: "s1", Summary: "Query: Demo"}
	if got := RowFromValues(full.Values()); got != full {
		t.Fatalf("RowFromValues(Values()) = %+v", got)
	}
}

type fakeStore struct {
	mu      sync.Mutex
	pending []*domain.ChatSession
	synced  map[string]bool
	pruned  time.Time
}

func (f *fakeStore) ListUnsyncedLeads(_ context.Context, _ int) ([]*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ChatSession
	for _, s := range f.pending {
		if !f.synced[s.SessionID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkLeadSynced(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced[id] = true
	return nil
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = cutoff
	return 2, nil
}

type flakySink struct {
	failFor string
	logged  []string
}

func (s *flakySink) Log(_ context.Context, session *domain.ChatSession) error {
	if session.SessionID == s.failFor {
		return errors.New("sheet unavailable")
	}
	s.logged = append(s.logged, session.SessionID)
	return nil
}

func TestSyncOnceLeavesFailuresPending(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		pending: []*domain.ChatSession{
			session("ok", domain.Contact{Name: "A", Email: "a@co.com"}),
			session("bad", domain.Contact{Name: "B", Email: "b@co.com"}),
		},
		synced: map[string]bool{},
	}
	sink := &flakySink{failFor: "bad"}
	syncer := NewSyncer(store, sink, 0, nil, nil)

	n, err := syncer.SyncOnce(context.Background())
	if err == nil {
		t.Fatal("expected sink error to be reported")
	}
	if n != 1 || !store.synced["ok"] || store.synced["bad"] {
		t.Fatalf("synced = %d, state %v", n, store.synced)
	}

	sink.failFor = ""
	if n, err = syncer.SyncOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("retry = %d, %v", n, err)
	}
	if len(sink.logged) != 2 {
		t.Fatalf("expected each lead logged once, got %v", sink.logged)
	}
}

func TestPruneRespectsRetention(t *testing.T) {
	t.Parallel()

	store := &fakeStore{synced: map[string]bool{}}
	off := NewSyncer(store, &flakySink{}, 0, nil, nil)
	if n, err := off.Prune(context.Background()); err != nil || n != 0 || !store.pruned.IsZero() {
		t.Fatalf("disabled prune ran: %d, %v", n, err)
	}

	on := NewSyncer(store, &flakySink{}, 24*time.Hour, nil, nil)
	n, err := on.Prune(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	if time.Since(store.pruned) < 23*time.Hour {
		t.Fatalf("cutoff too recent: %v", store.pruned)
	}
}
