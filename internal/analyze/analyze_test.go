package analyze

import (
	"strings"
	"testing"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

func history(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		sender := domain.SenderUser
		if i%2 == 1 {
			sender = domain.SenderBot
		}
		msgs[i] = domain.Message{Sender: sender, Text: "ok"}
	}
	return msgs
}

func TestIntentPriority(t *testing.T) {
	t.Parallel()

	a := New(taxonomy.Default())
	tests := []struct {
		name    string
		message string
		depth   int
		want    Intent
	}{
		{"pricing wins over problem", "We're struggling, what does pricing look like?", 0, IntentReadyToConvert},
		{"demo request", "Can I get a demo?", 6, IntentReadyToConvert},
		{"problem statement", "We're struggling with inventory tracking", 2, IntentSpecificProblem},
		{"early explanatory question", "What is process automation?", 0, IntentExploring},
		{"late explanatory question falls back", "What is process automation?", 5, IntentEngaged},
		{"depth fallback engaged", "ok sounds good", 4, IntentEngaged},
		{"depth fallback exploring", "ok sounds good", 3, IntentExploring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Intent(tt.message, tt.depth); got != tt.want {
				t.Fatalf("Intent(%q, %d) = %q, want %q", tt.message, tt.depth, got, tt.want)
			}
		})
	}
}

func TestSentimentPositiveWinsTies(t *testing.T) {
	t.Parallel()

	a := New(taxonomy.Default())
	tests := []struct {
		message string
		want    Sentiment
	}{
		{"Thanks, that's great", SentimentPositive},
		{"thanks but I'm confused", SentimentPositive},
		{"I'm confused", SentimentNegative},
		{"tell me more", SentimentNeutral},
	}
	for _, tt := range tests {
		if got := a.Sentiment(tt.message); got != tt.want {
			t.Errorf("Sentiment(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestAnalyzeSignals(t *testing.T) {
	t.Parallel()

	a := New(taxonomy.Default())

	got := a.Analyze("This is not helpful, I don't understand", history(3), domain.Contact{})
	if !got.IsFrustrated {
		t.Fatal("expected frustration")
	}
	if !got.NeedsContactCollection {
		t.Fatal("expected contact collection at depth 3")
	}
	if got.Depth != 3 {
		t.Fatalf("Depth = %d, want 3", got.Depth)
	}

	early := a.Analyze("I don't understand", history(1), domain.Contact{})
	if !early.IsFrustrated || early.NeedsContactCollection {
		t.Fatalf("expected frustration without escalation, got %+v", early)
	}

	human := a.Analyze("Can I talk to a human?", nil, domain.Contact{})
	if !human.WantsHuman {
		t.Fatal("expected handoff signal")
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()

	a := New(taxonomy.Default())
	hist := []domain.Message{
		{Sender: domain.SenderUser, Text: "We run a hospital network."},
		{Sender: domain.SenderBot, Text: "Tell me about your retail plans"},
		{Sender: domain.SenderUser, Text: "We need better dashboards. Also curious about pricing."},
	}
	got := a.Analyze("We're struggling with inventory tracking in our warehouse", hist, domain.Contact{})

	if got.Memory.Industry != "logistics" {
		t.Fatalf("Industry = %q, want logistics", got.Memory.Industry)
	}
	wantTopics := []string{"pricing", "analytics"}
	if strings.Join(got.Memory.Topics, ",") != strings.Join(wantTopics, ",") {
		t.Fatalf("Topics = %v, want %v", got.Memory.Topics, wantTopics)
	}
	if len(got.Memory.Challenges) != 2 {
		t.Fatalf("Challenges = %v, want 2 entries", got.Memory.Challenges)
	}
	if got.Memory.Challenges[0] != "We need better dashboards" {
		t.Fatalf("first challenge = %q", got.Memory.Challenges[0])
	}
	for _, c := range got.Memory.Challenges {
		if len(c) > maxChallengeLen {
			t.Fatalf("challenge too long: %q", c)
		}
	}
}

func TestMemorySummaryEmpty(t *testing.T) {
	t.Parallel()

	if got := (Memory{}).Summary(); got == "" {
		t.Fatal("expected placeholder summary")
	}
}
