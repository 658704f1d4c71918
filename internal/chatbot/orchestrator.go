// Package chatbot runs one conversation turn: it extracts contact details,
// classifies the message and decides how the assistant replies.
package chatbot

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zentiam/leadbot/internal/analyze"
	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/llm"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

// Branch names the decision taken for a turn.
type Branch string

const (
	BranchClosure        Branch = "closure"
	BranchGreeting       Branch = "greeting"
	BranchHandoff        Branch = "handoff"
	BranchEmpathy        Branch = "empathy"
	BranchInfoCollection Branch = "info_collection"
	BranchAnswer         Branch = "answer"
	BranchFallback       Branch = "fallback"
)

const (
	// DefaultTopK is how many knowledge chunks feed a prompt.
	DefaultTopK = 3

	minAnsweredLength = 100
	maxGreetingWords  = 5
	maxDeclineWords   = 6
	satisfactionDepth = 4
)

// Retriever returns the knowledge snippets most relevant to text.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// Turn is everything the orchestrator needs to decide one reply.
type Turn struct {
	SessionID string
	Message   string
	// History holds the messages before Message.
	History []domain.Message
	// Previous is the contact as stored before Message was read.
	Previous domain.Contact
	// Contact already includes the fields extracted from Message.
	Contact domain.Contact
	// Extracted holds only the fields first captured from Message.
	Extracted domain.Contact
	Analysis  analyze.Analysis
}

// Result is the reply and the signals the caller persists.
type Result struct {
	Response     string            `json:"response"`
	NeedsInfo    bool              `json:"needs_info"`
	InfoType     string            `json:"info_type,omitempty"`
	IsAnswered   bool              `json:"is_answered"`
	InfoComplete bool              `json:"info_complete"`
	Intent       analyze.Intent    `json:"intent"`
	Sentiment    analyze.Sentiment `json:"sentiment"`
	Branch       Branch            `json:"branch"`
	// MarkPhoneSkipped asks the caller to record a declined phone.
	MarkPhoneSkipped bool `json:"-"`
	// Failed is set when retrieval or generation failed and the apology
	// was returned instead.
	Failed bool `json:"-"`
}

// Orchestrator selects one of seven branches per turn, in priority order.
type Orchestrator struct {
	tx    *taxonomy.Taxonomy
	kb    Retriever
	gen   llm.Generator
	brand Brand
	topK  int
	log   *slog.Logger
}

// NewOrchestrator wires the decision logic to its collaborators.
func NewOrchestrator(tx *taxonomy.Taxonomy, kb Retriever, gen llm.Generator, brand Brand, topK int, logger *slog.Logger) *Orchestrator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	if brand.Company == "" {
		brand.Company = "our company"
	}
	return &Orchestrator{tx: tx, kb: kb, gen: gen, brand: brand, topK: topK, log: logger}
}

// Respond decides the reply for turn. It never returns an error: adapter
// failures become the apology reply.
func (o *Orchestrator) Respond(ctx context.Context, turn Turn) Result {
	a := turn.Analysis
	c := turn.Contact
	msg := strings.TrimSpace(turn.Message)
	lastBot := lastBotMessage(turn.History)
	missing := c.NextMissing()
	suppliedField := turn.Extracted != (domain.Contact{})

	// 1. Closure: the contact record just became complete, in whatever
	// order the fields arrived.
	completedNow := suppliedField && c.InfoCollected() && !turn.Previous.InfoCollected()
	declined := missing == "phone" && o.declinedPhone(msg, lastBot)
	if completedNow || declined {
		final := c
		if declined {
			final.Phone = domain.PhoneSkipped
		}
		return Result{
			Response:         o.brand.closure(final),
			IsAnswered:       true,
			InfoComplete:     true,
			Intent:           analyze.IntentClosure,
			Sentiment:        a.Sentiment,
			Branch:           BranchClosure,
			MarkPhoneSkipped: declined,
		}
	}

	// 2. Greeting on an empty conversation.
	if len(turn.History) == 0 && o.isGreeting(msg) {
		return Result{
			Response:  o.brand.greeting(c),
			Intent:    analyze.IntentGreeting,
			Sentiment: a.Sentiment,
			Branch:    BranchGreeting,
		}
	}

	// 3. Human handoff.
	if a.WantsHuman {
		r := Result{
			Response:  o.brand.handoff(c),
			Intent:    analyze.IntentHandoff,
			Sentiment: a.Sentiment,
			Branch:    BranchHandoff,
		}
		if !c.IsLead() {
			r.NeedsInfo = true
			r.InfoType = missing
		}
		return r
	}

	// 4. Empathy.
	if a.IsFrustrated {
		return o.empathize(ctx, turn, missing)
	}

	// 5. Explicit info collection.
	if missing != "" {
		explicit := taxonomy.ContainsAny(msg, o.tx.ContactRequestPhrases)
		followUp := suppliedField && !strings.Contains(msg, "?") && !taxonomy.ContainsAny(msg, o.tx.BusinessKeywords)
		if explicit || followUp {
			return Result{
				Response:  infoPrompt(missing, c),
				NeedsInfo: true,
				InfoType:  missing,
				Intent:    analyze.IntentInfoCollection,
				Sentiment: a.Sentiment,
				Branch:    BranchInfoCollection,
			}
		}
	}

	// 6. Answer first for business-shaped messages.
	if o.businessShaped(msg, a.Intent) {
		r := o.answer(ctx, turn, BranchAnswer)
		if r.Failed || missing == "" {
			return r
		}
		if (a.Depth >= 3 && c.Name == "") || suppliedField {
			r.Response += "\n\n" + infoPrompt(missing, c)
			r.NeedsInfo = true
			r.InfoType = missing
		}
		return r
	}

	// 7. Fallback.
	return o.answer(ctx, turn, BranchFallback)
}

func (o *Orchestrator) businessShaped(msg string, intent analyze.Intent) bool {
	if strings.Contains(msg, "?") || taxonomy.ContainsAny(msg, o.tx.BusinessKeywords) {
		return true
	}
	switch intent {
	case analyze.IntentSpecificProblem, analyze.IntentReadyToConvert, analyze.IntentExploring:
		return true
	}
	return false
}

// answer retrieves context and generates a reply.
func (o *Orchestrator) answer(ctx context.Context, turn Turn, branch Branch) Result {
	a := turn.Analysis
	var snippets []string
	if o.kb != nil {
		var err error
		snippets, err = o.kb.Query(ctx, turn.Message, o.topK)
		if err != nil {
			o.log.Error("knowledge query failed", "session_id", turn.SessionID, "error", err)
			return o.apology(a, branch)
		}
	}
	knowledge := strings.Join(snippets, "\n")

	text, err := o.gen.Generate(ctx, turn.SessionID, o.brand.answerPrompt(a, knowledge), turn.Message)
	if err != nil {
		o.log.Error("generation failed", "session_id", turn.SessionID, "branch", branch, "error", err)
		return o.apology(a, branch)
	}

	answered := o.isAnswered(text, knowledge)
	if a.Depth >= satisfactionDepth && a.Sentiment != analyze.SentimentFrustrated {
		text += "\n\n" + satisfactionCheck
	}

	return Result{
		Response:     text,
		IsAnswered:   answered,
		InfoComplete: turn.Contact.InfoCollected(),
		Intent:       a.Intent,
		Sentiment:    a.Sentiment,
		Branch:       branch,
	}
}

// empathize acknowledges frustration without answering the question.
func (o *Orchestrator) empathize(ctx context.Context, turn Turn, missing string) Result {
	a := turn.Analysis
	text, err := o.gen.Generate(ctx, turn.SessionID, o.brand.empathyPrompt(a), turn.Message)
	if err != nil {
		o.log.Error("generation failed", "session_id", turn.SessionID, "branch", BranchEmpathy, "error", err)
		r := o.apology(a, BranchEmpathy)
		r.Sentiment = analyze.SentimentFrustrated
		return r
	}

	r := Result{
		Response:  text,
		Intent:    a.Intent,
		Sentiment: analyze.SentimentFrustrated,
		Branch:    BranchEmpathy,
	}
	if a.NeedsContactCollection && !turn.Contact.IsLead() {
		r.Response += "\n\n" + escalation
		r.NeedsInfo = true
		r.InfoType = missing
	}
	return r
}

func (o *Orchestrator) apology(a analyze.Analysis, branch Branch) Result {
	return Result{
		Response:  apologyText,
		Intent:    analyze.IntentUnknown,
		Sentiment: a.Sentiment,
		Branch:    branch,
		Failed:    true,
	}
}

// isAnswered requires retrieved context, a substantive reply and no
// admission of uncertainty.
func (o *Orchestrator) isAnswered(response, knowledge string) bool {
	if knowledge == "" || len(response) <= minAnsweredLength {
		return false
	}
	return !taxonomy.ContainsAny(response, o.tx.UncertaintyPhrases)
}

// isGreeting matches short messages opening with a greeting word.
func (o *Orchestrator) isGreeting(msg string) bool {
	if strings.Contains(msg, "?") || len(strings.Fields(msg)) > maxGreetingWords {
		return false
	}
	lower := taxonomy.Normalize(msg)
	for _, g := range o.tx.GreetingWords {
		if !strings.HasPrefix(lower, g) {
			continue
		}
		rest := lower[len(g):]
		if rest == "" || !isWordStart(rest) {
			return true
		}
	}
	return false
}

// declinedPhone detects a refusal to share a phone number. Only a reply to
// the phone question counts, so "no thanks" said about something else
// does not end the conversation.
func (o *Orchestrator) declinedPhone(msg, lastBot string) bool {
	if !askedForPhone(lastBot) {
		return false
	}
	lower := strings.TrimSpace(taxonomy.Normalize(msg))
	for _, exact := range o.tx.DeclinePhoneExact {
		if lower == exact {
			return true
		}
	}
	return len(strings.Fields(lower)) <= maxDeclineWords && taxonomy.ContainsAny(lower, o.tx.DeclinePhonePhrases)
}

func isWordStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lastBotMessage(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender == domain.SenderBot {
			return history[i].Text
		}
	}
	return ""
}
