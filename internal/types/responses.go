package types

// ResponsesInputItem represents a single item in the Responses API input array.
// Uses a flat discriminated union pattern: Type determines which fields are relevant.
// Output is a pointer so a function_call_output always serializes its output,
// even when empty, while other item types omit it.
type ResponsesInputItem struct {
	Type      string             `json:"type"`
	Role      string             `json:"role,omitempty"`
	Content   []ResponsesContent `json:"content,omitempty"`
	Name      string             `json:"name,omitempty"`
	Arguments *string            `json:"arguments,omitempty"`
	CallID    string             `json:"call_id,omitempty"`
	Output    *string            `json:"output,omitempty"`
}

// ResponsesContent represents a content item in a Responses API input message.
type ResponsesContent struct {
	Type     string         `json:"type"`
	Text     *string        `json:"text,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
	Source   map[string]any `json:"source,omitempty"`
}

// ResponsesTool represents a tool in the Responses API format.
type ResponsesTool struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Strict      *bool  `json:"strict,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ReasoningParam represents the reasoning parameter for the Responses API.
type ReasoningParam struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary,omitempty"`
}

// ResponsesText carries output text settings.
type ResponsesText struct {
	Verbosity string `json:"verbosity"`
}

// ResponsesRequest is the full payload sent to a Codex Responses upstream.
// Pointer fields let the validation stage distinguish absent from zero.
type ResponsesRequest struct {
	Model                string               `json:"model"`
	Instructions         *string              `json:"instructions"`
	Input                []ResponsesInputItem `json:"input"`
	Tools                []ResponsesTool      `json:"tools"`
	ToolChoice           *string              `json:"tool_choice"`
	ParallelToolCalls    *bool                `json:"parallel_tool_calls"`
	Reasoning            *ReasoningParam      `json:"reasoning,omitempty"`
	Store                *bool                `json:"store"`
	Stream               *bool                `json:"stream"`
	Include              []string             `json:"include"`
	PromptCacheKey       string               `json:"prompt_cache_key,omitempty"`
	PromptCacheRetention string               `json:"prompt_cache_retention,omitempty"`
	Text                 *ResponsesText       `json:"text,omitempty"`
}
