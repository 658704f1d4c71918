package chatbot

import (
	"fmt"
	"strings"

	"github.com/zentiam/leadbot/internal/analyze"
	"github.com/zentiam/leadbot/internal/domain"
)

// Brand is the company the assistant speaks for.
type Brand struct {
	Company      string
	ContactEmail string
}

const apologyText = "I apologize, but I'm having trouble processing your request right now. " +
	"Could you rephrase your question, or would you like me to connect you with our team directly?"

const (
	promptName  = "I'd love to help you better! May I know your name?"
	promptEmail = "Thanks! If you'd like our team to follow up with detailed information, could you share your email address?"
	promptPhone = "Great! And if you'd like a quick call from our team, what's the best number to reach you? " +
		"(Optional - you can skip this if you prefer email)"
)

// infoPrompt returns the question for the next missing contact field.
func infoPrompt(field string, c domain.Contact) string {
	switch field {
	case "name":
		return promptName
	case "email":
		if c.Name != "" {
			return fmt.Sprintf("Thanks, %s! If you'd like our team to follow up with detailed information, could you share your email address?", c.Name)
		}
		return promptEmail
	case "phone":
		return promptPhone
	default:
		return ""
	}
}

// askedForPhone reports whether a bot message carried the phone question.
func askedForPhone(botMessage string) bool {
	return strings.Contains(botMessage, "best number to reach you")
}

func (b Brand) greeting(c domain.Contact) string {
	if c.Name != "" {
		return fmt.Sprintf("Nice to meet you, %s! Welcome to %s. What can I help you with today?", c.Name, b.Company)
	}
	return fmt.Sprintf("Hello! Welcome to %s. I'm here to help you explore how AI can work for your business. "+
		"What brings you here today?", b.Company)
}

func (b Brand) handoff(c domain.Contact) string {
	var sb strings.Builder
	sb.WriteString("Of course! I'll make sure a member of our team gets in touch with you.\n\n")
	sb.WriteString("**Ways to reach us:**\n")
	fmt.Fprintf(&sb, "→ Email us at %s\n", b.ContactEmail)
	sb.WriteString("→ Submit a detailed request via our [contact form](/contact)\n")
	sb.WriteString("→ Book a 30-minute consultation directly\n")
	switch {
	case c.Name == "":
		sb.WriteString("\nIf you share your name and email, our team will reach out within 24 hours.")
	case c.Email == "":
		fmt.Fprintf(&sb, "\nThanks, %s. What email address should our team use to reach you?", c.Name)
	default:
		fmt.Fprintf(&sb, "\nWe'll follow up at %s within 24 hours.", c.Email)
	}
	return sb.String()
}

// closure is sent once, when the contact record becomes complete.
func (b Brand) closure(c domain.Contact) string {
	reach := c.Email
	if c.Phone != "" && !c.PhoneDeclined() {
		reach = c.Email + " or " + c.Phone
	}
	return fmt.Sprintf(`Perfect! Thank you, %s. I've noted down your details.

**What happens next:**
✓ Our team will review your inquiry
✓ You'll hear from us at %s within 24 hours
✓ We'll prepare specific recommendations for your situation

**Or, you can take immediate action:**
→ Submit a detailed request via our [contact form](/contact)
→ Book a 30-minute consultation directly
→ Take our AI Assessment to get instant insights

Feel free to ask me anything else in the meantime! I'm here to help.`, c.Name, reach)
}

// escalation asks for contact details after repeated frustration.
const escalation = "I sense this might be getting complex. Let me connect you with our team who can give you personalized guidance. " +
	"Could you share your name and email so they can reach out within 24 hours?"

// satisfactionCheck closes longer answers.
const satisfactionCheck = "Is this helpful? Or would you like me to explore a different angle?"

func (b Brand) answerPrompt(a analyze.Analysis, knowledge string) string {
	if knowledge == "" {
		knowledge = "No specific context found - use general knowledge about AI consulting."
	}
	return fmt.Sprintf(`You are an intelligent AI assistant representing %[1]s, an AI consulting company.

**Your Role:** Help visitors understand how we can solve their problems with AI solutions.

**Speaking Style:**
- Speak as "we" and "our" (you ARE part of the %[1]s team)
- Be conversational, warm, and helpful
- Show understanding of their problem
- Ask clarifying questions when needed
- Be specific with examples and numbers when available

**Conversation Context:**
- User Intent: %[2]s
- User Sentiment: %[3]s
- What we know so far: %[4]s
- Conversation Depth: %[5]d messages

**Knowledge Base Context:**
%[6]s

**Guidelines:**
1. If the user has a specific problem: show empathy and relate it to similar cases we've solved
2. If the user is exploring: give a helpful overview and ask what interests them most
3. If the user is ready to convert: share concrete details and suggest next steps
4. Relate answers to business value (ROI, time savings, efficiency)
5. If unsure about something, admit it and offer to connect them with our team at %[7]s

Your goal is to be genuinely helpful first, and naturally guide towards engagement when it makes sense.`,
		b.Company, a.Intent, a.Sentiment, a.Memory.Summary(), a.Depth, knowledge, b.ContactEmail)
}

func (b Brand) empathyPrompt(a analyze.Analysis) string {
	return fmt.Sprintf(`You are a caring assistant representing %s, an AI consulting company.
The visitor is frustrated or confused. Do not try to answer their question in detail yet.

- Acknowledge the frustration sincerely in one or two sentences
- Apologize for any confusion without being defensive
- Offer to explain it differently, or to connect them with a person on our team
- Keep the reply short and calm

What we know so far: %s`, b.Company, a.Memory.Summary())
}
