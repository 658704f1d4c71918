package domain

import (
	"time"
)

// PhoneSkipped marks a visitor who declined to share a phone number.
const PhoneSkipped = "skipped"

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single chat line.
type Message struct {
	Sender    Sender    `json:"sender" bson:"sender" yaml:"sender"`
	Text      string    `json:"text" bson:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp" yaml:"timestamp"`
}

// Contact holds the visitor details collected so far. Empty means unset.
type Contact struct {
	Name  string `json:"name,omitempty" bson:"name,omitempty" yaml:"name,omitempty"`
	Email string `json:"email,omitempty" bson:"email,omitempty" yaml:"email,omitempty"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty" yaml:"phone,omitempty"`
}

// InfoCollected reports whether name and email are set and phone is set or skipped.
func (c Contact) InfoCollected() bool {
	return c.Name != "" && c.Email != "" && c.Phone != ""
}

// PhoneDeclined reports whether the visitor skipped the phone field.
func (c Contact) PhoneDeclined() bool {
	return c.Phone == PhoneSkipped
}

// IsLead reports whether the contact is worth a sales follow-up.
func (c Contact) IsLead() bool {
	return c.Name != "" && c.Email != ""
}

// Merge fills unset fields of c from u. Set fields are never overwritten.
// It reports whether anything changed.
func (c *Contact) Merge(u Contact) bool {
	changed := false
	if c.Name == "" && u.Name != "" {
		c.Name = u.Name
		changed = true
	}
	if c.Email == "" && u.Email != "" {
		c.Email = u.Email
		changed = true
	}
	if c.Phone == "" && u.Phone != "" {
		c.Phone = u.Phone
		changed = true
	}
	return changed
}

// NextMissing returns the next contact field to ask for, in the order
// name, email, phone, or "" when nothing is missing.
func (c Contact) NextMissing() string {
	switch {
	case c.Name == "":
		return "name"
	case c.Email == "":
		return "email"
	case c.Phone == "":
		return "phone"
	default:
		return ""
	}
}

// ChatSession is one visitor conversation.
type ChatSession struct {
	SessionID           string    `json:"session_id" bson:"_id" yaml:"session_id"`
	Contact             Contact   `json:"contact" bson:"contact" yaml:"contact"`
	Messages            []Message `json:"messages" bson:"messages" yaml:"messages"`
	InfoCollected       bool      `json:"info_collected" bson:"info_collected" yaml:"info_collected"`
	AnsweredQuestions   []string  `json:"answered_questions" bson:"answered_questions" yaml:"answered_questions"`
	UnansweredQuestions []string  `json:"unanswered_questions" bson:"unanswered_questions" yaml:"unanswered_questions"`
	QueryTopics         []string  `json:"query_topics" bson:"query_topics" yaml:"query_topics"`
	LeadSynced          bool      `json:"lead_synced" bson:"lead_synced" yaml:"lead_synced"`
	LeadSyncedAt        time.Time `json:"lead_synced_at,omitempty" bson:"lead_synced_at,omitempty" yaml:"lead_synced_at,omitempty"`
	CreatedAt           time.Time `json:"created_at" bson:"created_at" yaml:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" bson:"updated_at" yaml:"updated_at"`
}

// LastBotMessage returns the most recent bot message text, or "".
func (s *ChatSession) LastBotMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderBot {
			return s.Messages[i].Text
		}
	}
	return ""
}

// UserMessages returns the text of every user message in order.
func (s *ChatSession) UserMessages() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Sender == SenderUser {
			out = append(out, m.Text)
		}
	}
	return out
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	SessionID     string    `json:"session_id" yaml:"session_id"`
	Name          string    `json:"name,omitempty" yaml:"name,omitempty"`
	Email         string    `json:"email,omitempty" yaml:"email,omitempty"`
	MessageCount  int       `json:"message_count" yaml:"message_count"`
	InfoCollected bool      `json:"info_collected" yaml:"info_collected"`
	LeadSynced    bool      `json:"lead_synced" yaml:"lead_synced"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// Counts summarizes stored sessions for the admin dashboard.
type Counts struct {
	Sessions      int64 `json:"sessions"`
	Conversations int64 `json:"conversations"`
	Leads         int64 `json:"leads"`
	InfoCollected int64 `json:"info_collected"`
	UnsyncedLeads int64 `json:"unsynced_leads"`
}
