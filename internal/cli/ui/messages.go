// Package ui renders command output: tables, sections and error messages
package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a standardized diagnostic with suggestions and help commands
//
// Example output:
//
//	❌ DESCRIPTOR NOT FOUND: PostSerialiser
//	   No descriptor named 'PostSerialiser'.
//
//	   Did you mean: PostSerializer?
//
//	   → List descriptors: autorelated plan --help
type Message struct {
	Level        Level
	Context      string
	Problem      string
	Detail       string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// Format renders the message
func (m Message) Format() string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string

	switch m.Level {
	case LevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case LevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}
	if m.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if m.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if m.Detail != "" {
		bodyColor.Fprintf(&b, "   %s\n", m.Detail)
	}

	if len(m.Suggestions) > 0 {
		yellow := color.New(color.FgYellow)
		if m.NoColor {
			yellow.DisableColor()
		}
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.HelpCommands) > 0 {
		cyan := color.New(color.FgCyan)
		if m.NoColor {
			cyan.DisableColor()
		}
		b.WriteString("\n")
		for _, cmd := range m.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// Write writes the formatted message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// NotFound builds the message for an unknown name of the given kind,
// suggesting the closest of candidates
func NotFound(kind, name string, candidates []string, help string, noColor bool) Message {
	m := Message{
		Level:       LevelError,
		Context:     kind + " not found",
		Problem:     name,
		Detail:      fmt.Sprintf("No %s named '%s'.", strings.ToLower(kind), name),
		Suggestions: FindSimilar(name, candidates, DefaultMaxDistance, DefaultMaxSuggestions),
		NoColor:     noColor,
	}
	if help != "" {
		m.HelpCommands = []string{help}
	}
	return m
}

const (
	// DefaultMaxDistance is the default maximum edit distance of a suggestion
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions is the default maximum number of suggestions
	DefaultMaxSuggestions = 3
)

// FindSimilar returns up to max candidates within maxDistance edits of
// target, closest first. Matching ignores case.
func FindSimilar(target string, candidates []string, maxDistance, max int) []string {
	type match struct {
		value    string
		distance int
	}

	var matches []match
	lower := strings.ToLower(target)
	for _, candidate := range candidates {
		if d := Levenshtein(lower, strings.ToLower(candidate)); d <= maxDistance {
			matches = append(matches, match{candidate, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, max)
	for i := 0; i < len(matches) && i < max; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// Levenshtein returns the number of single-byte insertions, deletions and
// substitutions that turn a into b
func Levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minOf(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
