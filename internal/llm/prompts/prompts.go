package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	classDataRegex          = regexp.MustCompile(`(?i)</?\s*class-data\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Variant selects the level of detail of generated insights.
type Variant string

const (
	// VariantBrief asks for a short summary and up to three actions.
	VariantBrief Variant = "brief"
	// VariantDetailed asks for a per-topic discussion.
	VariantDetailed Variant = "detailed"
)

var validVariants = map[Variant]bool{
	VariantBrief:    true,
	VariantDetailed: true,
}

const maxNameRunes = 200

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// IsValidVariant checks if a variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// TopicStat summarizes one topic of a finalized assessment.
type TopicStat struct {
	Name        string
	MaxScore    int
	Scored      int
	MeanPercent float64
}

// InsightData holds template data for insight prompts.
type InsightData struct {
	Title            string
	PostTestMaxScore int
	Students         int
	Complete         int
	AtRisk           int
	Topics           []TopicStat
}

// Load parses the insight templates from fsys. Only the first call has an
// effect; BuildInsightPrompt calls it with the embedded templates.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template)
		for _, v := range []Variant{VariantBrief, VariantDetailed} {
			file := "templates/insights_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// BuildInsightPrompt renders the system prompt of the given variant.
func BuildInsightPrompt(variant Variant, data InsightData) (string, error) {
	if err := Load(templateFS); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := templates[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %s", variant)
	}

	data.Title = sanitizeName(data.Title)
	topics := make([]TopicStat, len(data.Topics))
	for i, t := range data.Topics {
		t.Name = sanitizeName(t.Name)
		topics[i] = t
	}
	data.Topics = topics

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeName strips delimiter tags from user-entered names and caps
// their length.
func sanitizeName(s string) string {
	s = classDataRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "[untitled]"
	}
	if utf8.RuneCountInString(s) > maxNameRunes {
		s = string([]rune(s)[:maxNameRunes]) + "..."
	}
	return s
}
