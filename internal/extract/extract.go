// Package extract pulls visitor contact details out of free-form chat text.
//
// Email and phone are matched on shape alone. Names are only considered when
// the previous bot turn asked for one or the visitor introduced themselves
// with an explicit phrase, so ordinary sentences never turn into names.
package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

const (
	maxNameTokens    = 4
	maxCandidateWord = 5
	minTokenLen      = 2
	maxTokenLen      = 20
	minPhoneLen      = 10
	minPhoneDigits   = 10
	minRunDigits     = 7
)

var (
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRunPattern = regexp.MustCompile(`[\d\s\-()+]+`)
	punctuation     = regexp.MustCompile(`[.,;!:()"\n\r]`)
)

// selfIntro is a phrase a visitor uses to introduce themselves. Weak phrases
// also appear in ordinary sentences, so their candidate must be capitalized.
type selfIntro struct {
	pattern *regexp.Regexp
	weak    bool
}

var selfIntros = []selfIntro{
	{regexp.MustCompile(`(?i)\bmy name is\s+(.+)`), false},
	{regexp.MustCompile(`(?i)\bname\s*:\s*(.+)`), false},
	{regexp.MustCompile(`(?i)\bcall me\s+(.+)`), false},
	{regexp.MustCompile(`(?i)\b(?:i am|i'm)\s+(.+)`), true},
	{regexp.MustCompile(`(?i)\bthis is\s+(.+)`), true},
	{regexp.MustCompile(`(?i)\bit's\s+(.+)`), true},
	{regexp.MustCompile(`(?i)^\s*([a-z]+(?:\s+[a-z]+){0,3})\s+here\b`), true},
}

// Extractor infers contact fields from a single message.
type Extractor struct {
	tx         *taxonomy.Taxonomy
	exclusions map[string]struct{}
	boundaries map[string]struct{}
}

// New returns an Extractor driven by the given taxonomy.
func New(tx *taxonomy.Taxonomy) *Extractor {
	return &Extractor{
		tx:         tx,
		exclusions: taxonomy.Set(tx.NameExclusions),
		boundaries: taxonomy.Set(tx.NameBoundaryWords),
	}
}

// Extract returns the contact fields newly found in message. Fields already
// set in current are never returned. A zero Contact means nothing was found.
func (e *Extractor) Extract(message string, current domain.Contact, lastBotMessage string) domain.Contact {
	var out domain.Contact
	message = strings.TrimSpace(message)
	if message == "" {
		return out
	}

	if current.Email == "" {
		out.Email = Email(message)
	}
	if current.Phone == "" {
		out.Phone = Phone(message)
	}
	if current.Name == "" {
		out.Name = e.Name(message, lastBotMessage)
	}
	return out
}

// Email returns the first email-shaped substring of message.
func Email(message string) string {
	return emailPattern.FindString(message)
}

// Phone returns the first phone-shaped substring of message when the
// message carries at least ten digits.
func Phone(message string) string {
	if countDigits(message) < minPhoneDigits {
		return ""
	}
	for _, run := range phoneRunPattern.FindAllString(message, -1) {
		run = strings.TrimSpace(run)
		if len(run) >= minPhoneLen && countDigits(run) >= minRunDigits {
			return run
		}
	}
	return ""
}

// Name returns a Title-Cased name when the message is an explicit
// self-introduction or a reply to a bot turn that asked for a name.
func (e *Extractor) Name(message, lastBotMessage string) string {
	message = strings.NewReplacer("’", "'", "‘", "'").Replace(strings.TrimSpace(message))

	for _, intro := range selfIntros {
		m := intro.pattern.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		candidate := e.truncate(m[1])
		if intro.weak && !startsUpper(candidate) {
			continue
		}
		if name := e.validate(candidate); name != "" {
			return name
		}
	}

	if lastBotMessage == "" || !taxonomy.ContainsAny(lastBotMessage, e.tx.NameRequestPhrases) {
		return ""
	}
	if !e.plausible(message) {
		return ""
	}
	return e.validate(e.truncate(message))
}

// truncate cuts a candidate at the first punctuation mark or connector word.
func (e *Extractor) truncate(candidate string) string {
	if loc := punctuation.FindStringIndex(candidate); loc != nil {
		candidate = candidate[:loc[0]]
	}
	fields := strings.Fields(candidate)
	for i, f := range fields {
		if _, ok := e.boundaries[strings.ToLower(f)]; ok {
			fields = fields[:i]
			break
		}
	}
	return strings.Join(fields, " ")
}

// plausible applies the whole-text rejections to a candidate.
func (e *Extractor) plausible(candidate string) bool {
	lower := strings.ToLower(candidate)
	if strings.Contains(lower, "@") || strings.Contains(lower, "?") {
		return false
	}
	for _, marker := range e.tx.URLMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if countDigits(candidate) > countLetters(candidate) {
		return false
	}
	return len(strings.Fields(candidate)) <= maxCandidateWord
}

func (e *Extractor) validate(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !e.plausible(candidate) {
		return ""
	}
	tokens := strings.Fields(candidate)
	if len(tokens) > maxNameTokens {
		return ""
	}
	for i, tok := range tokens {
		n := utf8.RuneCountInString(tok)
		if n < minTokenLen || n > maxTokenLen || !isAlpha(tok) {
			return ""
		}
		lower := strings.ToLower(tok)
		if _, excluded := e.exclusions[lower]; excluded {
			return ""
		}
		tokens[i] = titleCase(lower)
	}
	return strings.Join(tokens, " ")
}

func titleCase(word string) string {
	runes := []rune(word)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
