// Package overlay keeps the small, slot-stable set of markers drawn over the
// live camera view, and the detection loop that feeds it.
package overlay

import (
	"fmt"
	"strings"

	"github.com/vango-go/midas/pkg/repair/detect"
	"github.com/vango-go/midas/pkg/repair/kb"
)

// Kind is the marker shape.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindArrow     Kind = "arrow"
	KindCircle    Kind = "circle"
)

// ParseKind maps a config string to a Kind. Empty means rectangle.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindRectangle:
		return KindRectangle, nil
	case KindArrow:
		return KindArrow, nil
	case KindCircle:
		return KindCircle, nil
	default:
		return "", fmt.Errorf("overlay: unknown marker kind %q", s)
	}
}

// Annotation is one on-screen marker. Slot is the positional index inside
// the window and is the only identity the renderer should key on.
//
// X and Y are the top-left corner for rectangles, the centre for circles and
// the tip for arrows.
type Annotation struct {
	Slot       int     `json:"slot"`
	Kind       Kind    `json:"kind"`
	Label      string  `json:"label"`
	Caption    string  `json:"caption,omitempty"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Rotation   float64 `json:"rotation,omitempty"`
	Length     int     `json:"length,omitempty"`
	Radius     int     `json:"radius,omitempty"`
	Color      string  `json:"color"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// SeverityColors maps guide severities to marker colours.
var SeverityColors = map[string]string{
	kb.SeverityEasy:     "#00c800",
	kb.SeverityModerate: "#ffb400",
	kb.SeverityHigh:     "#ff0000",
	kb.SeverityUnknown:  "#b4b4b4",
}

// Palette is cycled by slot for labels the knowledge base does not know.
var Palette = []string{"#6464ff", "#64ff64", "#ff6464", "#64ffff", "#ff64ff", "#ffff64"}

// Style controls how detections become annotations.
type Style struct {
	Kind           Kind
	Guides         *kb.Base
	SeverityColors map[string]string
	Palette        []string
}

func (s Style) withDefaults() Style {
	if s.Kind == "" {
		s.Kind = KindRectangle
	}
	if s.Guides == nil {
		s.Guides = kb.Default()
	}
	if len(s.SeverityColors) == 0 {
		s.SeverityColors = SeverityColors
	}
	if len(s.Palette) == 0 {
		s.Palette = Palette
	}
	return s
}

const minArrowLength = 24

// Annotate converts one detection into the marker for slot.
func (s Style) Annotate(slot int, d detect.Detection) Annotation {
	box := d.BBox.Normalize()

	severity := kb.SeverityUnknown
	caption := d.Label
	known := false
	if d.Repair != nil && d.Repair.Severity != "" {
		severity = strings.ToLower(d.Repair.Severity)
		known = true
	}
	if g, ok := s.Guides.Lookup(d.Label); ok {
		if !known {
			severity = g.Severity
		}
		if g.DisplayName != "" {
			caption = g.DisplayName
		}
		known = true
	}

	color := s.Palette[slot%len(s.Palette)]
	if known {
		if c, ok := s.SeverityColors[severity]; ok {
			color = c
		} else if c, ok := s.SeverityColors[kb.SeverityUnknown]; ok {
			color = c
		}
	}

	a := Annotation{
		Slot:       slot,
		Kind:       s.Kind,
		Label:      d.Label,
		Caption:    fmt.Sprintf("%s %.0f%%", caption, d.Confidence*100),
		Color:      color,
		Severity:   severity,
		Confidence: d.Confidence,
	}
	switch s.Kind {
	case KindCircle:
		a.X, a.Y = box.CenterX, box.CenterY
		a.Radius = max(box.Width, box.Height) / 2
	case KindArrow:
		// Points straight down at the top edge of the box.
		a.X, a.Y = box.CenterX, box.Y1
		a.Rotation = 90
		a.Length = max(minArrowLength, box.Height/3)
	default:
		a.X, a.Y = box.X1, box.Y1
		a.Width, a.Height = box.Width, box.Height
	}
	return a
}
