// Package taxonomy holds the keyword and phrase tables that drive extraction,
// classification and lead scoring. The tables are data, not code: a default
// set is embedded and an operator file can replace any list.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Category is an ordered label with the phrases that select it.
type Category struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Intent lists the phrase sets used by intent detection.
type Intent struct {
	ReadyToConvert    []string `yaml:"ready_to_convert"`
	SpecificProblem   []string `yaml:"specific_problem"`
	ExploringStarters []string `yaml:"exploring_starters"`
}

// Sentiment lists the phrase sets used by sentiment detection.
type Sentiment struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Leads lists the tables used to describe a lead row.
type Leads struct {
	QueryTypes []Category `yaml:"query_types"`
	Services   []Category `yaml:"services"`
	HighIntent []string   `yaml:"high_intent"`
}

// Taxonomy is the full set of tables.
type Taxonomy struct {
	Stopwords             []string   `yaml:"stopwords"`
	NameRequestPhrases    []string   `yaml:"name_request_phrases"`
	NameBoundaryWords     []string   `yaml:"name_boundary_words"`
	NameExclusions        []string   `yaml:"name_exclusions"`
	URLMarkers            []string   `yaml:"url_markers"`
	GreetingWords         []string   `yaml:"greeting_words"`
	Intent                Intent     `yaml:"intent"`
	Sentiment             Sentiment  `yaml:"sentiment"`
	FrustrationPhrases    []string   `yaml:"frustration_phrases"`
	HumanHandoffPhrases   []string   `yaml:"human_handoff_phrases"`
	ContactRequestPhrases []string   `yaml:"contact_request_phrases"`
	DeclinePhonePhrases   []string   `yaml:"decline_phone_phrases"`
	DeclinePhoneExact     []string   `yaml:"decline_phone_exact"`
	BusinessKeywords      []string   `yaml:"business_keywords"`
	UncertaintyPhrases    []string   `yaml:"uncertainty_phrases"`
	Industries            []Category `yaml:"industries"`
	Topics                []Category `yaml:"topics"`
	ChallengePhrases      []string   `yaml:"challenge_phrases"`
	Leads                 Leads      `yaml:"leads"`
}

// Default returns the embedded taxonomy.
func Default() *Taxonomy {
	t, err := parse(defaultYAML, nil)
	if err != nil {
		panic("taxonomy: embedded default is invalid: " + err.Error())
	}
	return t
}

// Load returns the embedded taxonomy overlaid with the file at path.
// Keys present in the file replace the default list; absent keys keep it.
// An empty path returns the default.
func Load(path string) (*Taxonomy, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	t, err := parse(data, base)
	if err != nil {
		return nil, fmt.Errorf("parse taxonomy file %s: %w", path, err)
	}
	return t, nil
}

func parse(data []byte, base *Taxonomy) (*Taxonomy, error) {
	t := &Taxonomy{}
	if base != nil {
		*t = *base
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, err
	}
	t.normalize()
	return t, nil
}

func (t *Taxonomy) normalize() {
	lists := []*[]string{
		&t.Stopwords, &t.NameRequestPhrases, &t.NameBoundaryWords, &t.NameExclusions,
		&t.URLMarkers, &t.GreetingWords, &t.Intent.ReadyToConvert,
		&t.Intent.SpecificProblem, &t.Intent.ExploringStarters, &t.Sentiment.Positive,
		&t.Sentiment.Negative, &t.FrustrationPhrases, &t.HumanHandoffPhrases,
		&t.ContactRequestPhrases, &t.DeclinePhonePhrases, &t.DeclinePhoneExact,
		&t.BusinessKeywords, &t.UncertaintyPhrases, &t.ChallengePhrases,
		&t.Leads.HighIntent,
	}
	for _, l := range lists {
		*l = lowerAll(*l)
	}
	for _, cats := range []*[]Category{&t.Industries, &t.Topics, &t.Leads.QueryTypes, &t.Leads.Services} {
		out := make([]Category, len(*cats))
		for i, c := range *cats {
			out[i] = Category{Label: c.Label, Keywords: lowerAll(c.Keywords)}
		}
		*cats = out
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Set builds a lookup set from a list.
func Set(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
