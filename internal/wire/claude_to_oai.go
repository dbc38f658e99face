package wire

import (
	"encoding/json"
	"strings"
)

// OaiChoiceMessage is one choice's message in an OpenAI-dialect response.
type OaiChoiceMessage struct {
	Role       string                  `json:"role"`
	Content    *string                 `json:"content"`
	ToolCalls  []OaiToolCall           `json:"tool_calls,omitempty"`
	Annotations []UrlCitationAnnotation `json:"annotations,omitempty"`
}

// OaiChoice is one entry of an OpenAI-dialect response's choices array.
type OaiChoice struct {
	Index        int              `json:"index"`
	Message      OaiChoiceMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// OaiUsage is the OpenAI-dialect usage block.
type OaiUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// OaiCreateMessageResponse is the full non-stream OpenAI-dialect response.
type OaiCreateMessageResponse struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Model   string       `json:"model"`
	Choices []OaiChoice `json:"choices"`
	Usage   *OaiUsage   `json:"usage,omitempty"`
}

// finishReasonTable maps a canonical StopReason to its OpenAI-dialect
// finish_reason string.
var finishReasonTable = map[StopReason]string{
	StopEndTurn:      "stop",
	StopMaxTokens:    "length",
	StopStopSequence: "stop",
	StopToolUse:      "tool_calls",
	StopRefusal:      "content_filter",
}

func mapFinishReason(r *StopReason) string {
	if r == nil {
		return "stop"
	}
	if mapped, ok := finishReasonTable[*r]; ok {
		return mapped
	}
	return "stop"
}

// ClaudeToOaiResponse converts a canonical, completed response into its
// OpenAI-dialect equivalent. A valid thinking signature found among the
// response's blocks is captured into the process-wide signature slot before
// conversion proceeds.
func ClaudeToOaiResponse(resp CreateMessageResponse) OaiCreateMessageResponse {
	var textParts []string
	var toolCalls []OaiToolCall
	var citations []Citation
	var searchQuery string

	for _, b := range resp.Content {
		switch b.Type {
		case BlockText:
			textParts = append(textParts, b.Text)
		case BlockToolUse:
			input := b.Input
			if input == nil {
				input = json.RawMessage("{}")
			}
			input = RemapFunctionCallArgs(b.Name, input)
			if b.Signature != "" {
				StoreSignature(b.Signature)
			}
			toolCalls = append(toolCalls, OaiToolCall{
				ID:   b.ID,
				Type: "function",
				Function: OaiToolCallFunction{
					Name:      b.Name,
					Arguments: string(input),
				},
			})
			if b.Name == "web_search" {
				var args map[string]any
				if err := json.Unmarshal(b.Input, &args); err == nil {
					if q, ok := args["query"].(string); ok {
						searchQuery = q
					}
				}
			}
		case BlockThinking:
			if b.HasValidSignature() {
				StoreSignature(b.Signature)
			}
		case BlockWebSearchToolResult:
			citations = append(citations, ExtractCitationsFromToolResult(b.Raw)...)
		case BlockSearchResult:
			citations = append(citations, ExtractCitationsFromSearchResult(b.Raw)...)
		}
	}

	text := strings.Join(textParts, "")
	if len(citations) > 0 {
		text = MergeCitationsIntoText(text, searchQuery, citations)
	}

	var content *string
	if text != "" || len(toolCalls) == 0 {
		content = &text
	}

	msg := OaiChoiceMessage{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	}
	if len(citations) > 0 {
		msg.Annotations = CitationsToAnnotations(citations)
	}

	choice := OaiChoice{
		Index:        0,
		Message:      msg,
		FinishReason: mapFinishReason(resp.StopReason),
	}

	out := OaiCreateMessageResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Model:   resp.Model,
		Choices: []OaiChoice{choice},
	}
	if resp.Usage != nil {
		out.Usage = &OaiUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out
}
