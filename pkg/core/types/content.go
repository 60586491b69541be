package types

import (
	"encoding/base64"
	"fmt"
)

// ContentBlock is the interface for all content types.
type ContentBlock interface {
	BlockType() string
}

// TextBlock represents text content.
type TextBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

func (t TextBlock) BlockType() string { return "text" }

// ImageBlock represents image content.
type ImageBlock struct {
	Type   string      `json:"type"` // "image"
	Source ImageSource `json:"source"`
}

func (t ImageBlock) BlockType() string { return "image" }

// ImageSource contains the image data or reference.
type ImageSource struct {
	Type      string `json:"type"`                 // "base64" or "url"
	MediaType string `json:"media_type,omitempty"` // "image/png", etc.
	Data      string `json:"data,omitempty"`       // base64 data
	URL       string `json:"url,omitempty"`        // URL reference
	Detail    string `json:"detail,omitempty"`     // "low", "high" or "auto"
}

// Text returns a text block.
func Text(s string) TextBlock {
	return TextBlock{Type: "text", Text: s}
}

// Image returns a base64 image block for raw image bytes.
func Image(data []byte, mediaType string) ImageBlock {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return ImageBlock{
		Type: "image",
		Source: ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
			Detail:    "high",
		},
	}
}

// DataURL renders the image as a data: URL, or returns the URL reference.
func (s ImageSource) DataURL() string {
	if s.Type == "url" {
		return s.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", s.MediaType, s.Data)
}

// Bytes decodes base64 image data. URL sources return an error.
func (s ImageSource) Bytes() ([]byte, error) {
	if s.Type != "base64" {
		return nil, fmt.Errorf("image source type %q has no inline data", s.Type)
	}
	return base64.StdEncoding.DecodeString(s.Data)
}
