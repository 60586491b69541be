package types

import (
	"encoding/json"
	"strings"
)

// Roles used in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat history.
type Message struct {
	Role    string `json:"role"`    // "user" or "assistant"
	Content any    `json:"content"` // string or []ContentBlock
}

// MarshalJSON always emits content as either a string or a block array.
func (m Message) MarshalJSON() ([]byte, error) {
	type rawMessage struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}
	var content any
	switch c := m.Content.(type) {
	case string:
		content = c
	case ContentBlock:
		content = []ContentBlock{c}
	case []ContentBlock:
		content = c
	default:
		content = m.Content
	}
	return json.Marshal(rawMessage{Role: m.Role, Content: content})
}

// ContentBlocks returns Content as []ContentBlock regardless of input type.
func (m Message) ContentBlocks() []ContentBlock {
	switch c := m.Content.(type) {
	case string:
		return []ContentBlock{TextBlock{Type: "text", Text: c}}
	case ContentBlock:
		return []ContentBlock{c}
	case []ContentBlock:
		return c
	default:
		return nil
	}
}

// TextContent concatenates the message's text blocks.
func (m Message) TextContent() string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	var b strings.Builder
	for _, block := range m.ContentBlocks() {
		switch tb := block.(type) {
		case TextBlock:
			b.WriteString(tb.Text)
		case *TextBlock:
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

// Images returns the message's image blocks in order.
func (m Message) Images() []ImageBlock {
	var out []ImageBlock
	for _, block := range m.ContentBlocks() {
		switch ib := block.(type) {
		case ImageBlock:
			out = append(out, ib)
		case *ImageBlock:
			out = append(out, *ib)
		}
	}
	return out
}

// DefaultImagePrompt is the user text used when an image must be sent but
// the history holds no user message to carry it.
const DefaultImagePrompt = "Analyze this image."

// AttachImage returns a copy of messages with img added to the last user
// message. The input slice is not modified. If there is no user message, a
// new one carrying DefaultImagePrompt is appended.
func AttachImage(messages []Message, img ImageBlock) []Message {
	out := make([]Message, len(messages), len(messages)+1)
	copy(out, messages)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role != RoleUser {
			continue
		}
		blocks := append([]ContentBlock(nil), out[i].ContentBlocks()...)
		out[i] = Message{Role: RoleUser, Content: append(blocks, img)}
		return out
	}
	return append(out, Message{
		Role:    RoleUser,
		Content: []ContentBlock{TextBlock{Type: "text", Text: DefaultImagePrompt}, img},
	})
}
