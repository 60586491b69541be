package types

// ChatResponse is the assistant's reply to a ChatRequest.
type ChatResponse struct {
	ID         string     `json:"id,omitempty"`
	Model      string     `json:"model"`
	Text       string     `json:"text"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Usage      Usage      `json:"usage"`
}

// StopReason indicates why generation stopped.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonFiltered  StopReason = "content_filter"
)
