package wire

import "encoding/json"

// OaiRole is an OpenAI-dialect message role.
type OaiRole string

const (
	OaiRoleSystem    OaiRole = "system"
	OaiRoleUser      OaiRole = "user"
	OaiRoleAssistant OaiRole = "assistant"
	OaiRoleTool      OaiRole = "tool"
)

// ToCanonicalRole maps an OpenAI role onto the canonical Role, folding
// "tool" into "user" since tool results become user messages in the
// canonical dialect.
func (r OaiRole) ToCanonicalRole() Role {
	switch r {
	case OaiRoleSystem:
		return RoleSystem
	case OaiRoleAssistant:
		return RoleAssistant
	default:
		return RoleUser
	}
}

// Effort is the OpenAI `reasoning_effort` enum; BudgetTokens maps it to the
// thinking budget_tokens it derives.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// BudgetTokens returns the fixed reasoning_effort -> budget_tokens
// schedule: low=256, medium=2048, high=16384.
func (e Effort) BudgetTokens() uint64 {
	switch e {
	case EffortLow:
		return 256
	case EffortHigh:
		return 16384
	default:
		return 2048
	}
}

// OaiToolCallFunction is the function payload of an OpenAI tool_call.
type OaiToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OaiToolCall is one entry of an OpenAI assistant message's tool_calls.
// Index matters on streaming deltas, where each distinct tool_calls[*].index
// value must increase monotonically starting at 0; non-streaming responses
// leave Index at 0 on every tool call, however many a choice carries.
type OaiToolCall struct {
	ID       string              `json:"id"`
	Index    int                 `json:"index"`
	Type     string              `json:"type"`
	Function OaiToolCallFunction `json:"function"`
}

// OaiMessage is one message in the OpenAI chat-completions wire format.
type OaiMessage struct {
	Role        OaiRole                 `json:"role"`
	Content     json.RawMessage         `json:"content,omitempty"`
	ToolCallID  string                  `json:"tool_call_id,omitempty"`
	ToolCalls   []OaiToolCall           `json:"tool_calls,omitempty"`
	Annotations []UrlCitationAnnotation `json:"annotations,omitempty"`
}

// ContentAsString best-effort extracts OaiMessage.Content as a string: a
// plain JSON string passes through; anything else round-trips through
// JSON encoding so downstream code always has a string to work with.
func (m OaiMessage) ContentAsString() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	return string(m.Content)
}

// OaiCreateMessageParams is the full OpenAI-dialect request body.
type OaiCreateMessageParams struct {
	Model              string            `json:"model"`
	Messages           []OaiMessage      `json:"messages"`
	MaxTokens          *int              `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int             `json:"max_completion_tokens,omitempty"`
	Temperature        *float64          `json:"temperature,omitempty"`
	Stop               json.RawMessage   `json:"stop,omitempty"`
	Stream             *bool             `json:"stream,omitempty"`
	Thinking           *Thinking         `json:"thinking,omitempty"`
	ReasoningEffort    *Effort           `json:"reasoning_effort,omitempty"`
	TopK               *int              `json:"top_k,omitempty"`
	TopP               *float64          `json:"top_p,omitempty"`
	FrequencyPenalty   *float64          `json:"frequency_penalty,omitempty"`
	LogitBias          map[string]int    `json:"logit_bias,omitempty"`
	Tools              []json.RawMessage `json:"tools,omitempty"`
	ToolChoice         json.RawMessage   `json:"tool_choice,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	N                  *int              `json:"n,omitempty"`
}
