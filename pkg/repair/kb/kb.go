// Package kb is the static repair knowledge base keyed by detection label.
package kb

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity levels used by guides and overlay colours.
const (
	SeverityNone     = "none"
	SeverityEasy     = "easy"
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityUnknown  = "unknown"
)

// Guide describes how to fix one fault class.
type Guide struct {
	Label       string   `yaml:"-" json:"label"`
	DisplayName string   `yaml:"display_name" json:"display_name"`
	Severity    string   `yaml:"severity" json:"severity"`
	Tools       []string `yaml:"tools" json:"tools"`
	Steps       []string `yaml:"steps" json:"steps"`
}

//go:embed guides.yaml
var builtinGuides []byte

// Base maps labels to guides. The zero value has no entries and every
// lookup falls back.
type Base struct {
	guides map[string]Guide
}

type document struct {
	Guides map[string]Guide `yaml:"guides"`
}

// Default returns the built-in knowledge base.
func Default() *Base {
	b, err := Parse(strings.NewReader(string(builtinGuides)))
	if err != nil {
		panic(fmt.Sprintf("kb: builtin guides: %v", err))
	}
	return b
}

// Parse reads a guides document.
func Parse(r io.Reader) (*Base, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("kb: decode guides: %w", err)
	}
	return New(doc.Guides)
}

// New builds a base from guides keyed by label.
func New(guides map[string]Guide) (*Base, error) {
	b := &Base{guides: make(map[string]Guide, len(guides))}
	for label, g := range guides {
		label = normalizeLabel(label)
		if label == "" {
			return nil, fmt.Errorf("kb: empty label")
		}
		g.Label = label
		g.Severity = strings.ToLower(strings.TrimSpace(g.Severity))
		if g.Severity == "" {
			g.Severity = SeverityUnknown
		}
		b.guides[label] = g
	}
	return b, nil
}

// Merge returns a copy of b with other's guides layered on top.
func (b *Base) Merge(other *Base) *Base {
	out := &Base{guides: map[string]Guide{}}
	if b != nil {
		for k, v := range b.guides {
			out.guides[k] = v
		}
	}
	if other != nil {
		for k, v := range other.guides {
			out.guides[k] = v
		}
	}
	return out
}

// Lookup returns the guide for label. Unknown labels get a generic guide
// with SeverityUnknown and ok=false.
func (b *Base) Lookup(label string) (Guide, bool) {
	key := normalizeLabel(label)
	if b != nil {
		if g, ok := b.guides[key]; ok {
			return g, true
		}
	}
	return Guide{
		Label:    key,
		Severity: SeverityUnknown,
		Tools:    []string{},
		Steps:    []string{"No repair guide available for this fault type."},
	}, false
}

// Labels returns the known labels in sorted order.
func (b *Base) Labels() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.guides))
	for k := range b.guides {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
