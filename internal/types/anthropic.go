package types

import (
	"encoding/json"
	"strings"
)

// AnthropicMessagesRequest is the incoming request body for POST /v1/messages.
// Content-bearing fields stay raw: they accept several shapes and are
// normalized by the parser.
type AnthropicMessagesRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        json.RawMessage    `json:"system,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
	ToolChoice    any                `json:"tool_choice,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	Thinking      *AnthropicThinking `json:"thinking,omitempty"`
}

// AnthropicThinking is the extended thinking request block.
type AnthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// AnthropicCountTokensResponse is the response body for token counting.
type AnthropicCountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

// AnthropicMessage represents a single user/assistant message.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicTool is a Messages API tool definition.
type AnthropicTool struct {
	Type        string         `json:"type,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// AnthropicContentBlock represents a content block used by Messages API requests.
type AnthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      json.RawMessage `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Source    map[string]any  `json:"source,omitempty"`
}

// TextValue decodes a text field that may be a string or an array of strings.
// Fragments are joined without separators.
func (b AnthropicContentBlock) TextValue() string {
	return JoinTextFragments(b.Text)
}

// AnthropicMessageResponse is the non-streaming response for POST /v1/messages.
type AnthropicMessageResponse struct {
	ID           string                `json:"id"`
	Type         string                `json:"type"`
	Role         string                `json:"role"`
	Model        string                `json:"model"`
	Content      []AnthropicContentOut `json:"content"`
	StopReason   *string               `json:"stop_reason"`
	StopSequence *string               `json:"stop_sequence"`
	Usage        AnthropicUsage        `json:"usage"`
}

// AnthropicContentOut represents response content blocks.
type AnthropicContentOut struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
}

// AnthropicUsage holds Messages API usage.
type AnthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// AnthropicBlockStart is the content_block payload of a content_block_start event.
// Text and Thinking are pointers so an empty opening value is still emitted.
type AnthropicBlockStart struct {
	Type     string  `json:"type"`
	Text     *string `json:"text,omitempty"`
	Thinking *string `json:"thinking,omitempty"`
	ID       string  `json:"id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Input    any     `json:"input,omitempty"`
}

// AnthropicContentDelta is the delta payload of a content_block_delta event.
type AnthropicContentDelta struct {
	Type        string  `json:"type"`
	Text        *string `json:"text,omitempty"`
	Thinking    *string `json:"thinking,omitempty"`
	PartialJSON *string `json:"partial_json,omitempty"`
}

// AnthropicMessageDelta is the delta payload of a message_delta event.
type AnthropicMessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// AnthropicErrorResponse is the canonical error envelope for Anthropic-compatible routes.
type AnthropicErrorResponse struct {
	Type  string             `json:"type"`
	Error AnthropicErrorBody `json:"error"`
}

// AnthropicErrorBody is the nested error payload.
type AnthropicErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseContent parses message content that may be a string, an array of
// strings or an array of typed blocks. Bare strings become text blocks.
func (m *AnthropicMessage) ParseContent() ([]AnthropicContentBlock, error) {
	if len(m.Content) == 0 || string(m.Content) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return []AnthropicContentBlock{{Type: "text", Text: mustRawString(s)}}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(m.Content, &items); err != nil {
		return nil, err
	}
	blocks := make([]AnthropicContentBlock, 0, len(items))
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: mustRawString(str)})
			continue
		}
		var b AnthropicContentBlock
		if err := json.Unmarshal(item, &b); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// JoinTextFragments decodes a string, an array of strings or an array of
// typed text blocks into one string with no separators. Anything else yields "".
func JoinTextFragments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	var out strings.Builder
	for _, item := range items {
		if err := json.Unmarshal(item, &s); err == nil {
			out.WriteString(s)
			continue
		}
		var b AnthropicContentBlock
		if err := json.Unmarshal(item, &b); err == nil && (b.Type == "" || b.Type == "text") {
			out.WriteString(b.TextValue())
		}
	}
	return out.String()
}

func mustRawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
