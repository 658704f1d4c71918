// Package analyze classifies a chat turn: intent, sentiment, escalation
// signals and the running conversation memory.
package analyze

import (
	"strings"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

// Intent is the visitor's apparent goal for a turn.
type Intent string

const (
	IntentGreeting        Intent = "greeting"
	IntentHandoff         Intent = "handoff"
	IntentExploring       Intent = "exploring"
	IntentSpecificProblem Intent = "specific_problem"
	IntentReadyToConvert  Intent = "ready_to_convert"
	IntentEngaged         Intent = "engaged"
	IntentInfoCollection  Intent = "info_collection"
	IntentClosure         Intent = "closure"
	IntentUnknown         Intent = "unknown"
)

// Sentiment is the emotional tone of a turn.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNegative   Sentiment = "negative"
	SentimentNeutral    Sentiment = "neutral"
	SentimentFrustrated Sentiment = "frustrated"
)

const (
	exploringMaxDepth = 3
	engagedMinDepth   = 4
	escalationDepth   = 2
	maxChallenges     = 3
	maxChallengeLen   = 120
)

// Memory summarizes what the visitor has told us so far. It is rebuilt
// from the full history on every turn.
type Memory struct {
	Industry   string   `json:"industry,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	Challenges []string `json:"challenges,omitempty"`
}

// Analysis is the classification of one turn.
type Analysis struct {
	Intent                 Intent    `json:"intent"`
	Sentiment              Sentiment `json:"sentiment"`
	IsFrustrated           bool      `json:"is_frustrated"`
	WantsHuman             bool      `json:"wants_human"`
	NeedsContactCollection bool      `json:"needs_contact_collection"`
	Depth                  int       `json:"conversation_depth"`
	Memory                 Memory    `json:"memory"`
}

// Analyzer classifies turns using the keyword taxonomy.
type Analyzer struct {
	tx *taxonomy.Taxonomy
}

// New returns an Analyzer.
func New(tx *taxonomy.Taxonomy) *Analyzer {
	return &Analyzer{tx: tx}
}

// Analyze classifies message given the prior history, which must not
// include message itself.
func (a *Analyzer) Analyze(message string, history []domain.Message, _ domain.Contact) Analysis {
	depth := len(history)
	frustrated := taxonomy.ContainsAny(message, a.tx.FrustrationPhrases)

	userTexts := make([]string, 0, depth+1)
	for _, m := range history {
		if m.Sender == domain.SenderUser {
			userTexts = append(userTexts, m.Text)
		}
	}
	userTexts = append(userTexts, message)

	return Analysis{
		Intent:                 a.Intent(message, depth),
		Sentiment:              a.Sentiment(message),
		IsFrustrated:           frustrated,
		WantsHuman:             taxonomy.ContainsAny(message, a.tx.HumanHandoffPhrases),
		NeedsContactCollection: frustrated && depth >= escalationDepth,
		Depth:                  depth,
		Memory:                 a.Memory(userTexts),
	}
}

// Intent applies the priority order: conversion signals, then problem
// statements, then early explanatory questions, then a depth fallback.
func (a *Analyzer) Intent(message string, depth int) Intent {
	switch {
	case taxonomy.ContainsAny(message, a.tx.Intent.ReadyToConvert):
		return IntentReadyToConvert
	case taxonomy.ContainsAny(message, a.tx.Intent.SpecificProblem):
		return IntentSpecificProblem
	case depth < exploringMaxDepth && taxonomy.ContainsAny(message, a.tx.Intent.ExploringStarters):
		return IntentExploring
	case depth >= engagedMinDepth:
		return IntentEngaged
	default:
		return IntentExploring
	}
}

// Sentiment checks positive phrases before negative ones.
func (a *Analyzer) Sentiment(message string) Sentiment {
	switch {
	case taxonomy.ContainsAny(message, a.tx.Sentiment.Positive):
		return SentimentPositive
	case taxonomy.ContainsAny(message, a.tx.Sentiment.Negative):
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Memory derives industry, topics and challenges from user messages in
// chronological order. The latest message naming an industry decides it.
func (a *Analyzer) Memory(userMessages []string) Memory {
	var mem Memory
	seenTopic := make(map[string]struct{})
	seenChallenge := make(map[string]struct{})

	for _, text := range userMessages {
		if label, ok := taxonomy.MatchCategory(text, a.tx.Industries); ok {
			mem.Industry = label
		}
		for _, topic := range taxonomy.MatchAllCategories(text, a.tx.Topics) {
			if _, dup := seenTopic[topic]; dup {
				continue
			}
			seenTopic[topic] = struct{}{}
			mem.Topics = append(mem.Topics, topic)
		}
		if len(mem.Challenges) >= maxChallenges {
			continue
		}
		if snippet := a.challenge(text); snippet != "" {
			if _, dup := seenChallenge[snippet]; !dup {
				seenChallenge[snippet] = struct{}{}
				mem.Challenges = append(mem.Challenges, snippet)
			}
		}
	}
	return mem
}

// challenge returns the sentence fragment starting at the first challenge
// phrase in text, or "".
func (a *Analyzer) challenge(text string) string {
	lower := taxonomy.Normalize(text)
	best := -1
	for _, p := range a.tx.ChallengePhrases {
		if !taxonomy.Contains(lower, p) {
			continue
		}
		if i := strings.Index(lower, p); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	// Normalize keeps byte offsets for ASCII input; fall back to the
	// normalized text when the original differs in length.
	source := text
	if len(source) != len(lower) {
		source = lower
	}
	snippet := source[best:]
	if end := strings.IndexAny(snippet, ".!?\n"); end >= 0 {
		snippet = snippet[:end]
	}
	snippet = strings.TrimSpace(snippet)
	if len(snippet) > maxChallengeLen {
		snippet = strings.TrimSpace(truncateWords(snippet, maxChallengeLen))
	}
	return snippet
}

func truncateWords(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		return cut[:i]
	}
	return cut
}

// Summary renders memory for a prompt.
func (m Memory) Summary() string {
	var parts []string
	if m.Industry != "" {
		parts = append(parts, "Industry: "+m.Industry)
	}
	if len(m.Topics) > 0 {
		parts = append(parts, "Topics discussed: "+strings.Join(m.Topics, ", "))
	}
	if len(m.Challenges) > 0 {
		parts = append(parts, "Challenges mentioned: "+strings.Join(m.Challenges, "; "))
	}
	if len(parts) == 0 {
		return "Nothing notable yet."
	}
	return strings.Join(parts, "\n")
}
