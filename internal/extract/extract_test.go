package extract

import (
	"testing"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

func newTestExtractor() *Extractor {
	return New(taxonomy.Default())
}

func TestExtractName(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	tests := []struct {
		name    string
		message string
		lastBot string
		want    string
	}{
		{"plain request for help", "I need help", "", ""},
		{"question", "What services do you offer?", "", ""},
		{"reply to name request", "Alex Johnson", "Great! May I know your name?", "Alex Johnson"},
		{"pattern stops at connector", "My name is Sarah and I need help", "", "Sarah"},
		{"lowercase explicit pattern", "my name is dana", "", "Dana"},
		{"self intro with company", "Hi, I'm Dana from Acme", "", "Dana"},
		{"i am plus adjective", "I am interested in automation", "", ""},
		{"i'm struggling", "I'm struggling with inventory", "", ""},
		{"this is a sentence", "this is great", "", ""},
		{"name prefix", "Name: jordan lee", "", "Jordan Lee"},
		{"name here", "Priya here", "", "Priya"},
		{"call me back", "please call me back", "", ""},
		{"request but question", "Why do you need my name?", "May I know your name?", ""},
		{"request but excluded word", "I need pricing", "What's your name?", ""},
		{"request but email", "dana@co.com", "may i know your name", ""},
		{"request but too many words", "well it depends on a lot of things", "your name?", ""},
		{"greeting without request", "Hello", "", ""},
		{"no request and bare name", "Alex Johnson", "How can I help?", ""},
		{"curly apostrophe", "I’m Morgan", "", "Morgan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.message, domain.Contact{}, tt.lastBot)
			if got.Name != tt.want {
				t.Fatalf("Extract(%q).Name = %q, want %q", tt.message, got.Name, tt.want)
			}
		})
	}
}

func TestExtractEmailAlwaysFound(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	messages := []string{
		"dana@co.com",
		"you can reach me at dana.smith+work@example.co.uk thanks",
		"Email: DANA@CO.COM, phone later",
		"is bob_99@mail-server.io ok?",
	}
	want := []string{"dana@co.com", "dana.smith+work@example.co.uk", "DANA@CO.COM", "bob_99@mail-server.io"}

	for i, msg := range messages {
		got := e.Extract(msg, domain.Contact{}, "")
		if got.Email != want[i] {
			t.Errorf("Extract(%q).Email = %q, want %q", msg, got.Email, want[i])
		}
	}
}

func TestExtractPhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    string
	}{
		{"call 555-123-4567 anytime", "555-123-4567"},
		{"+1 (555) 123-4567", "+1 (555) 123-4567"},
		{"my number is 5551234567.", "5551234567"},
		{"we have 12 people and 3 offices", ""},
		{"skip", ""},
		{"order 12345", ""},
	}

	for _, tt := range tests {
		if got := Phone(tt.message); got != tt.want {
			t.Errorf("Phone(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestExtractIsMonotonic(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	current := domain.Contact{Name: "Dana", Email: "dana@co.com", Phone: domain.PhoneSkipped}
	messages := []string{
		"My name is Sarah",
		"new email: other@example.com",
		"call me at 555-987-6543",
	}
	for _, msg := range messages {
		got := e.Extract(msg, current, "What's your name?")
		if got != (domain.Contact{}) {
			t.Fatalf("Extract(%q) returned %+v for a complete contact", msg, got)
		}
	}

	merged := current
	merged.Merge(e.Extract("My name is Sarah", domain.Contact{}, ""))
	if merged.Name != "Dana" {
		t.Fatalf("merge overwrote name: %q", merged.Name)
	}
}

func TestExtractEmptyMessage(t *testing.T) {
	t.Parallel()

	if got := newTestExtractor().Extract("   ", domain.Contact{}, "your name?"); got != (domain.Contact{}) {
		t.Fatalf("expected nothing, got %+v", got)
	}
}
