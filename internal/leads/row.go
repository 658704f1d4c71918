// Package leads turns qualified chat sessions into spreadsheet rows for the
// sales team and keeps the lead sink in step with the session store.
package leads

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/zentiam/leadbot/internal/analyze"
	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

// Sink receives a snapshot of a session whose contact is worth a follow-up.
type Sink interface {
	Log(ctx context.Context, session *domain.ChatSession) error
}

// Header is the first row of the lead sheet.
var Header = []string{
	"Date", "Time", "Lead Name", "Email", "Phone",
	"Query Type", "Services Interested", "Industry",
	"Key Requirements", "Lead Status", "Follow-up Priority", "Conversation Summary",
	"Session ID",
}

// Lead status values, hottest first.
const (
	StatusHot       = "Hot Lead"
	StatusWarm      = "Warm Lead"
	StatusQualified = "Qualified Lead"
	StatusCaptured  = "Contact Captured"
	StatusInquiry   = "Inquiry"
)

const (
	notProvided      = "Not provided"
	notSpecified     = "Not specified"
	generalInquiry   = "General Inquiry"
	maxRequirements  = 300
	maxSummary       = 400
	maxInitialAsk    = 150
	substantiveAskAt = 20
)

// Row is one lead sheet line.
type Row struct {
	Date         string `json:"date" yaml:"date"`
	Time         string `json:"time" yaml:"time"`
	Name         string `json:"name" yaml:"name"`
	Email        string `json:"email" yaml:"email"`
	Phone        string `json:"phone" yaml:"phone"`
	QueryType    string `json:"query_type" yaml:"query_type"`
	Services     string `json:"services" yaml:"services"`
	Industry     string `json:"industry" yaml:"industry"`
	Requirements string `json:"requirements" yaml:"requirements"`
	Status       string `json:"status" yaml:"status"`
	Priority     string `json:"priority" yaml:"priority"`
	Summary      string `json:"summary" yaml:"summary"`
	SessionID    string `json:"session_id" yaml:"session_id"`
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{
		r.Date, r.Time, r.Name, r.Email, r.Phone,
		r.QueryType, r.Services, r.Industry,
		r.Requirements, r.Status, r.Priority, r.Summary,
		r.SessionID,
	}
}

// Builder derives the business columns of a row from the conversation.
type Builder struct {
	tx       *taxonomy.Taxonomy
	analyzer *analyze.Analyzer
}

// NewBuilder returns a Builder over the given taxonomy.
func NewBuilder(tx *taxonomy.Taxonomy) *Builder {
	return &Builder{tx: tx, analyzer: analyze.New(tx)}
}

// Build renders session as a lead row stamped with now (UTC).
func (b *Builder) Build(session *domain.ChatSession, now time.Time) Row {
	now = now.UTC()
	userMessages := session.UserMessages()
	allText := strings.Join(userMessages, " ")
	contact := session.Contact

	queryType, ok := taxonomy.MatchCategory(allText, b.tx.Leads.QueryTypes)
	if !ok {
		queryType = generalInquiry
	}
	services := taxonomy.MatchAllCategories(allText, b.tx.Leads.Services)
	mem := b.analyzer.Memory(userMessages)
	status := b.status(contact, allText)

	row := Row{
		Date:         now.Format("2006-01-02"),
		Time:         now.Format("15:04"),
		Name:         orDefault(contact.Name, notProvided),
		Email:        orDefault(contact.Email, notProvided),
		Phone:        notProvided,
		QueryType:    queryType,
		Services:     generalInquiry,
		Industry:     notSpecified,
		Requirements: notSpecified,
		Status:       status,
		Priority:     priority(status, len(services)),
		Summary:      truncate(summary(userMessages, services, queryType), maxSummary),
		SessionID:    session.SessionID,
	}
	if contact.Phone != "" && !contact.PhoneDeclined() {
		row.Phone = contact.Phone
	}
	if len(services) > 0 {
		row.Services = strings.Join(services, ", ")
	}
	if mem.Industry != "" {
		row.Industry = capitalize(mem.Industry)
	}
	if len(mem.Challenges) > 0 {
		row.Requirements = truncate(strings.Join(mem.Challenges, "; "), maxRequirements)
	}
	return row
}

func (b *Builder) status(c domain.Contact, text string) string {
	hasPhone := c.Phone != "" && !c.PhoneDeclined()
	highIntent := taxonomy.ContainsAny(text, b.tx.Leads.HighIntent)

	switch {
	case c.Email != "" && hasPhone && highIntent:
		return StatusHot
	case c.Email != "" && highIntent:
		return StatusWarm
	case c.Email != "":
		return StatusQualified
	case c.InfoCollected():
		return StatusCaptured
	default:
		return StatusInquiry
	}
}

func priority(status string, services int) string {
	switch {
	case status == StatusHot:
		return "High - Contact within 24hrs"
	case status == StatusWarm:
		return "Medium - Contact within 48hrs"
	case status == StatusQualified || services > 2:
		return "Normal - Contact within 3 days"
	default:
		return "Low - Add to nurture list"
	}
}

// summary is "Query: X | Interest: a, b | Initial ask: ..." where the
// initial ask is the first message that is not a short greeting.
func summary(userMessages, services []string, queryType string) string {
	if len(userMessages) == 0 {
		return "No conversation recorded"
	}
	ask := ""
	for _, m := range userMessages {
		lower := strings.ToLower(strings.TrimSpace(m))
		if len(m) > substantiveAskAt && !hasGreetingPrefix(lower) {
			ask = m
			break
		}
	}
	if ask == "" {
		ask = userMessages[0]
	}

	parts := []string{"Query: " + queryType}
	if len(services) > 0 {
		if len(services) > 3 {
			services = services[:3]
		}
		parts = append(parts, "Interest: "+strings.Join(services, ", "))
	}
	parts = append(parts, "Initial ask: "+truncate(strings.TrimSpace(ask), maxInitialAsk))
	return strings.Join(parts, " | ")
}

func hasGreetingPrefix(s string) bool {
	for _, p := range []string{"hi", "hello", "hey"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// RowFromValues rebuilds a row from cells in Header order. Missing
// trailing cells stay empty.
func RowFromValues(values []string) Row {
	cell := func(i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
	return Row{
		Date: cell(0), Time: cell(1), Name: cell(2), Email: cell(3), Phone: cell(4),
		QueryType: cell(5), Services: cell(6), Industry: cell(7),
		Requirements: cell(8), Status: cell(9), Priority: cell(10), Summary: cell(11),
		SessionID: cell(12),
	}
}
