package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLoadsEmbeddedTables(t *testing.T) {
	t.Parallel()

	tx := Default()
	if len(tx.Stopwords) == 0 {
		t.Fatal("expected stopwords")
	}
	if len(tx.Industries) != 6 {
		t.Fatalf("expected 6 industries, got %d", len(tx.Industries))
	}
	if tx.Industries[0].Label != "healthcare" {
		t.Fatalf("expected healthcare first, got %q", tx.Industries[0].Label)
	}
	if len(tx.DeclinePhonePhrases) == 0 || len(tx.Leads.QueryTypes) == 0 {
		t.Fatal("expected decline phrases and query types")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := "greeting_words: [Ahoy]\ntopics:\n  - label: security\n    keywords: [Security, SOC2]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tx, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tx.GreetingWords) != 1 || tx.GreetingWords[0] != "ahoy" {
		t.Fatalf("expected overridden greeting words, got %v", tx.GreetingWords)
	}
	if len(tx.Topics) != 1 || tx.Topics[0].Keywords[1] != "soc2" {
		t.Fatalf("expected overridden topics, got %+v", tx.Topics)
	}
	if len(tx.Stopwords) == 0 {
		t.Fatal("expected default stopwords to survive overlay")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestContainsRespectsWordBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"hi there", "hi", true},
		{"this is great", "hi", false},
		{"i need pricing info", "pricing", true},
		{"skipping ahead", "skip", false},
		{"skip.", "skip", true},
		{"i don’t understand", "don't understand", true},
		{"talk to a human please", "talk to a human", true},
		{"", "hi", false},
	}

	for _, tt := range tests {
		got := Contains(Normalize(tt.text), tt.phrase)
		if got != tt.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tt.text, tt.phrase, got, tt.want)
		}
	}
}

func TestMatchCategoryFirstWins(t *testing.T) {
	t.Parallel()

	tx := Default()
	label, ok := MatchCategory("Our hospital runs a retail pharmacy", tx.Industries)
	if !ok || label != "healthcare" {
		t.Fatalf("expected healthcare, got %q (%v)", label, ok)
	}
	if _, ok := MatchCategory("nothing relevant", tx.Industries); ok {
		t.Fatal("expected no industry")
	}

	topics := MatchAllCategories("pricing for a chatbot dashboard", tx.Topics)
	want := []string{"pricing", "chatbots", "analytics"}
	if len(topics) != len(want) {
		t.Fatalf("expected %v, got %v", want, topics)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, topics)
		}
	}
}
