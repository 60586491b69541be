package types

// ChatRequest is a single stateless chat call. The full history is sent on
// every request.
type ChatRequest struct {
	Model       string    `json:"model"` // "provider/model-name"
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`

	// ResponseFormat is "text" (default) or "json".
	ResponseFormat string `json:"response_format,omitempty"`

	// User metadata (passthrough)
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WantsJSON reports whether the caller asked for a JSON object reply.
func (r *ChatRequest) WantsJSON() bool {
	return r != nil && r.ResponseFormat == "json"
}
