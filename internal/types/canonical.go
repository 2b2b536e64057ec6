package types

import "encoding/json"

// Roles carried by canonical messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block kinds.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockImage      = "image"
)

// Prompt cache retention values accepted from client metadata.
const (
	CacheRetentionInMemory = "in_memory"
	CacheRetention24h      = "24h"
)

// CanonicalRequest is the protocol-agnostic form of an inbound chat request.
// It is built once by a parser and treated as read-only afterwards.
type CanonicalRequest struct {
	Model    string
	System   SystemText
	Messages []CanonicalMessage
	Tools    []ToolSpec
	Stream   bool

	// SessionID is derived from metadata.user_id; empty when absent.
	SessionID string
	// CacheRetention is "in_memory", "24h" or empty.
	CacheRetention string

	Thinking      *ThinkingConfig
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	StopSequences []string
}

// SystemText is the normalized system prompt.
type SystemText struct {
	Text string
}

// CanonicalMessage is one role-tagged message.
type CanonicalMessage struct {
	Role    string
	Content MessageContent
}

// MessageContent holds the ordered blocks of a message.
type MessageContent struct {
	Blocks []ContentBlock
}

// ContentBlock is a flat tagged variant: Type selects which fields are meaningful.
//
//	text        Text
//	tool_use    ID, Name, Input
//	tool_result ToolUseID, Content (nil when absent), IsError
//	image       Source
type ContentBlock struct {
	Type string

	Text string

	ID    string
	Name  string
	Input json.RawMessage

	ToolUseID string
	Content   json.RawMessage
	IsError   bool

	Source map[string]any
}

// HasContent reports whether a tool_result block carried a content field.
func (b ContentBlock) HasContent() bool {
	return len(b.Content) > 0 && string(b.Content) != "null"
}

// ToolSpec is a client tool definition.
type ToolSpec struct {
	// Type is the client built-in discriminator, e.g. "web_search_20250305"; empty for custom tools.
	Type        string
	Name        string
	Description string
	InputSchema map[string]any
}

// ThinkingConfig mirrors the client's extended thinking request.
type ThinkingConfig struct {
	Type         string
	BudgetTokens int
}
