package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/midas/pkg/repair/checklist"
	"github.com/vango-go/midas/pkg/repair/kb"
	"github.com/vango-go/midas/pkg/repair/overlay"
	"github.com/vango-go/midas/pkg/repair/speechctx"
)

// Profile overrides prompts, step patterns and overlay styling. Every field
// is optional; a zero Profile keeps the built-in defaults.
type Profile struct {
	ChatPrompt      string   `yaml:"chat_prompt"`
	DiagnosisPrompt string   `yaml:"diagnosis_prompt"`
	ConfirmText     string   `yaml:"confirm_text"`
	StepPatterns    []string `yaml:"step_patterns"`

	// SkipDuplicateSteps stops a repeated instruction from adding a second
	// checklist entry.
	SkipDuplicateSteps bool `yaml:"skip_duplicate_steps"`

	Overlay struct {
		Kind           string            `yaml:"kind"`
		Palette        []string          `yaml:"palette"`
		SeverityColors map[string]string `yaml:"severity_colors"`
	} `yaml:"overlay"`

	// Guides are merged over the built-in knowledge base.
	Guides map[string]kb.Guide `yaml:"guides"`

	// Keywords replace the built-in speech context table when non-empty.
	Keywords map[string][]KeywordWeight `yaml:"keywords"`
}

// KeywordWeight is the YAML form of speechctx.Weight.
type KeywordWeight struct {
	Class  string  `yaml:"class"`
	Weight float64 `yaml:"weight"`
}

// LoadProfile reads the profile at path. An empty path yields the zero
// profile.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("MIDAS_PROFILE: %w", err)
	}
	p, err := ParseProfile(bytes.NewReader(data))
	if err != nil {
		return Profile{}, fmt.Errorf("MIDAS_PROFILE %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes and validates a profile document.
func ParseProfile(r io.Reader) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if _, err := p.Patterns(); err != nil {
		return Profile{}, err
	}
	if _, err := p.Style(); err != nil {
		return Profile{}, err
	}
	for phrase, weights := range p.Keywords {
		for _, w := range weights {
			if w.Class == "" || w.Weight <= 0 {
				return Profile{}, fmt.Errorf("keyword %q: class and positive weight required", phrase)
			}
		}
	}
	return p, nil
}

// Patterns compiles StepPatterns, falling back to the built-in set.
func (p Profile) Patterns() ([]checklist.Pattern, error) {
	return checklist.CompileAll(p.StepPatterns)
}

// Extractor builds the step extractor the profile describes.
func (p Profile) Extractor() (*checklist.Extractor, error) {
	patterns, err := p.Patterns()
	if err != nil {
		return nil, err
	}
	e := checklist.NewExtractor(patterns...)
	if p.SkipDuplicateSteps {
		e = e.SkipDuplicates()
	}
	return e, nil
}

// KnowledgeBase returns the built-in guides with the profile's merged over.
func (p Profile) KnowledgeBase() (*kb.Base, error) {
	base := kb.Default()
	if len(p.Guides) == 0 {
		return base, nil
	}
	extra, err := kb.New(p.Guides)
	if err != nil {
		return nil, fmt.Errorf("guides: %w", err)
	}
	return base.Merge(extra), nil
}

// Style returns the overlay style described by the profile.
func (p Profile) Style() (overlay.Style, error) {
	guides, err := p.KnowledgeBase()
	if err != nil {
		return overlay.Style{}, err
	}
	style := overlay.Style{
		Guides:         guides,
		Palette:        p.Overlay.Palette,
		SeverityColors: p.Overlay.SeverityColors,
	}
	if p.Overlay.Kind != "" {
		kind, err := overlay.ParseKind(p.Overlay.Kind)
		if err != nil {
			return overlay.Style{}, fmt.Errorf("overlay.kind: %w", err)
		}
		style.Kind = kind
	}
	return style, nil
}

// SpeechContext builds a speech context from Keywords, or the built-in
// table when none are set.
func (p Profile) SpeechContext() *speechctx.Context {
	if len(p.Keywords) == 0 {
		return speechctx.New()
	}
	table := make(map[string][]speechctx.Weight, len(p.Keywords))
	for phrase, weights := range p.Keywords {
		for _, w := range weights {
			table[phrase] = append(table[phrase], speechctx.Weight{Class: w.Class, Weight: w.Weight})
		}
	}
	return speechctx.NewWithKeywords(table)
}
