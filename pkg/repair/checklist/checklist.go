// Package checklist derives repair steps from free-form assistant replies.
//
// Extraction is a heuristic line-prefix match against text written by a
// language model, so the rule set is data (Patterns) rather than code.
package checklist

import (
	"fmt"
	"regexp"
	"strings"
)

// Step is one entry of a session checklist. Text never changes after the
// step is created; Completed only ever moves from false to true.
type Step struct {
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
}

// Pattern is one numbered-instruction rule. Expr must contain a named
// capture group "text" holding the instruction body.
type Pattern struct {
	Name string
	Expr *regexp.Regexp
}

// DefaultPatterns matches lines such as "Step 2: remove the screws",
// "**3)** Lift the panel" and "4 - Reseat the cable". The bare numeral form
// requires whitespace after the separator so "3.5mm jack" is not a step.
var DefaultPatterns = []Pattern{
	MustCompile("step-word", `(?i)^\s*(?:[-*>#]\s+)?[*_~`+"`"+`]*\s*step\s*(\d{1,3})\s*[*_~`+"`"+`]*\s*[.):\-]\s*(?P<text>.+)$`),
	MustCompile("numeral", `^\s*(?:[-*>#]\s+)?[*_~`+"`"+`]*\s*(\d{1,3})\s*[*_~`+"`"+`]*\s*[.):\-](?:\s+|[*_~`+"`"+`]+\s*)(?P<text>.+)$`),
}

// Compile builds a Pattern from a regular expression.
func Compile(name, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("checklist pattern %q: %w", name, err)
	}
	if re.SubexpIndex("text") < 0 {
		return Pattern{}, fmt.Errorf("checklist pattern %q: missing (?P<text>...) group", name)
	}
	return Pattern{Name: name, Expr: re}, nil
}

// MustCompile is Compile that panics on error. Use for package-level defaults.
func MustCompile(name, expr string) Pattern {
	p, err := Compile(name, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileAll compiles exprs in order. An empty input yields DefaultPatterns.
func CompileAll(exprs []string) ([]Pattern, error) {
	if len(exprs) == 0 {
		return DefaultPatterns, nil
	}
	out := make([]Pattern, 0, len(exprs))
	for i, expr := range exprs {
		p, err := Compile(fmt.Sprintf("custom-%d", i), expr)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Extractor maps assistant text to at most one new Step.
type Extractor struct {
	patterns []Pattern
	dedupe   bool
}

// NewExtractor returns an Extractor over patterns, or DefaultPatterns if
// none are given.
func NewExtractor(patterns ...Pattern) *Extractor {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Extractor{patterns: append([]Pattern(nil), patterns...)}
}

// SkipDuplicates returns a copy of e whose Apply adds nothing when the
// extracted text already appears in steps, compared case-insensitively.
func (e *Extractor) SkipDuplicates() *Extractor {
	out := NewExtractor()
	if e != nil {
		*out = *e
	}
	out.dedupe = true
	return out
}

var emphasis = strings.NewReplacer("*", "", "_", "", "`", "", "~", "")

// Extract scans text line by line and returns the first numbered
// instruction found. Later lines are not examined.
func (e *Extractor) Extract(text string) (Step, bool) {
	patterns := DefaultPatterns
	if e != nil && len(e.patterns) > 0 {
		patterns = e.patterns
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, p := range patterns {
			m := p.Expr.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			body := strings.Join(strings.Fields(emphasis.Replace(m[p.Expr.SubexpIndex("text")])), " ")
			if body == "" {
				continue
			}
			return Step{Text: body}, true
		}
	}
	return Step{}, false
}

// Apply returns steps extended by the step extracted from text, if any.
// Existing entries are never modified. Every match adds one step unless the
// extractor was built with SkipDuplicates.
func (e *Extractor) Apply(steps []Step, text string) ([]Step, bool) {
	step, ok := e.Extract(text)
	if !ok {
		return steps, false
	}
	if e != nil && e.dedupe {
		for _, s := range steps {
			if strings.EqualFold(s.Text, step.Text) {
				return steps, false
			}
		}
	}
	out := make([]Step, len(steps), len(steps)+1)
	copy(out, steps)
	return append(out, step), true
}

// LastIncomplete returns the index of the last step not yet completed, or -1.
func LastIncomplete(steps []Step) int {
	for i := len(steps) - 1; i >= 0; i-- {
		if !steps[i].Completed {
			return i
		}
	}
	return -1
}

// CompletedCount reports how many steps are completed.
func CompletedCount(steps []Step) int {
	n := 0
	for _, s := range steps {
		if s.Completed {
			n++
		}
	}
	return n
}
