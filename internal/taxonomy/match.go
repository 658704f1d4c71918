package taxonomy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize lower-cases text and folds typographic apostrophes so phrase
// lists only need one spelling.
func Normalize(text string) string {
	text = strings.ToLower(text)
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

// Contains reports whether phrase occurs in text on word boundaries.
// Both arguments are expected to be normalized.
func Contains(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	offset := 0
	for {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

// ContainsAny reports whether any phrase occurs in text on word boundaries.
func ContainsAny(text string, phrases []string) bool {
	return FirstMatch(text, phrases) != ""
}

// FirstMatch returns the first phrase in list order found in text, or "".
func FirstMatch(text string, phrases []string) string {
	text = Normalize(text)
	for _, p := range phrases {
		if Contains(text, p) {
			return p
		}
	}
	return ""
}

// MatchCategory returns the label of the first category with a keyword in text.
func MatchCategory(text string, cats []Category) (string, bool) {
	text = Normalize(text)
	for _, c := range cats {
		for _, k := range c.Keywords {
			if Contains(text, k) {
				return c.Label, true
			}
		}
	}
	return "", false
}

// MatchAllCategories returns every category label with a keyword in text,
// in category order.
func MatchAllCategories(text string, cats []Category) []string {
	text = Normalize(text)
	var out []string
	for _, c := range cats {
		for _, k := range c.Keywords {
			if Contains(text, k) {
				out = append(out, c.Label)
				break
			}
		}
	}
	return out
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
