package wire

import (
	"encoding/json"
	"strings"

	"github.com/clewd-gateway/wiregate/internal/schema"
)

// webSearchAnnotationBlock converts an assistant message's echoed
// url_citation annotations into the tool_result block Claude expects to
// precede a web_search tool_use turn in conversation history.
func webSearchAnnotationBlock(anns []UrlCitationAnnotation) ContentBlock {
	results := AnnotationsToWebSearchContent(anns)
	raw, _ := json.Marshal(results)
	return ContentBlock{Type: BlockToolResult, ToolUseID: "web_search", ToolResultContent: raw}
}

// ConvertOaiMessage turns one OpenAI-dialect message into its canonical
// equivalent.
func ConvertOaiMessage(m OaiMessage) Message {
	switch {
	case m.Role == OaiRoleTool:
		content := RemapToolResultArgs(m.Content)
		var asString string
		if err := json.Unmarshal(content, &asString); err != nil {
			asString = string(content)
		}
		return NewBlocksMessage(RoleUser, []ContentBlock{ToolResultBlock(m.ToolCallID, asString)})

	case m.Role == OaiRoleAssistant && len(m.ToolCalls) > 0:
		var blocks []ContentBlock
		if text := m.ContentAsString(); strings.TrimSpace(text) != "" {
			blocks = append(blocks, TextBlock(text))
		}
		for _, tc := range m.ToolCalls {
			input := json.RawMessage(tc.Function.Arguments)
			var probe map[string]any
			if err := json.Unmarshal(input, &probe); err != nil || len(input) == 0 {
				input = json.RawMessage("{}")
			}
			input = RemapOaiToClaudeArgs(tc.Function.Name, input)
			blocks = append(blocks, ToolUseBlock(tc.ID, tc.Function.Name, input))
		}
		if len(m.Annotations) > 0 {
			blocks = append(blocks, webSearchAnnotationBlock(m.Annotations))
		}
		return NewBlocksMessage(RoleAssistant, blocks)

	case m.Role == OaiRoleAssistant && len(m.Annotations) > 0:
		var blocks []ContentBlock
		if text := m.ContentAsString(); strings.TrimSpace(text) != "" {
			blocks = append(blocks, TextBlock(text))
		}
		blocks = append(blocks, webSearchAnnotationBlock(m.Annotations))
		return NewBlocksMessage(RoleAssistant, blocks)

	default:
		role := m.Role.ToCanonicalRole()
		if len(m.Content) == 0 {
			return NewTextMessage(role, "")
		}
		var asString string
		if err := json.Unmarshal(m.Content, &asString); err == nil {
			return NewTextMessage(role, asString)
		}
		var blocks []ContentBlock
		if err := json.Unmarshal(m.Content, &blocks); err == nil {
			blocks = ProcessImageBlocks(blocks)
			return NewBlocksMessage(role, blocks)
		}
		return NewTextMessage(role, string(m.Content))
	}
}

// UpgradeToolChoice converts the simple tool_choice string form
// ("auto"|"any"|"none") to the object form; an already-object form passes
// through unchanged.
func UpgradeToolChoice(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		out, _ := json.Marshal(map[string]any{"type": s})
		return out
	}
	return raw
}

// knownBuiltinTools maps a well-known OpenAI function name onto the
// Claude built-in tool type tag it should become.
var knownBuiltinTools = map[string]string{
	"web_search":                  "web_search_20250305",
	"bash":                        "bash_20250124",
	"str_replace_editor":          "text_editor_20250124",
	"str_replace_based_edit_tool": "text_editor_20250728",
}

// cleanOaiTool converts one OpenAI {"type":"function","function":{...}}
// tool definition into the Claude tool shape: known built-in names become
// their fixed built-in tool tag (no input_schema survives onto those);
// everything else becomes a type:"custom" tool whose input_schema runs
// through the full schema-cleaning pipeline.
func cleanOaiTool(raw json.RawMessage) json.RawMessage {
	var wrapper struct {
		Type     string `json:"type"`
		Function struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Parameters  json.RawMessage `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Function.Name == "" {
		return raw
	}

	if builtin, ok := knownBuiltinTools[wrapper.Function.Name]; ok {
		out, _ := json.Marshal(map[string]any{
			"type": builtin,
			"name": wrapper.Function.Name,
		})
		return out
	}

	var params map[string]any
	if len(wrapper.Function.Parameters) > 0 {
		_ = json.Unmarshal(wrapper.Function.Parameters, &params)
	}
	if params == nil {
		params = map[string]any{}
	}
	cleaned := schema.Clean(params)

	tool := map[string]any{
		"type":         "custom",
		"name":         wrapper.Function.Name,
		"input_schema": cleaned,
	}
	if wrapper.Function.Description != "" {
		tool["description"] = wrapper.Function.Description
	}
	out, _ := json.Marshal(tool)
	return out
}

// CleanOaiTools runs cleanOaiTool over every tool and drops any that
// reduced to an empty raw object.
func CleanOaiTools(tools []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(tools))
	for _, t := range tools {
		cleaned := cleanOaiTool(t)
		if len(cleaned) == 0 || string(cleaned) == "{}" || string(cleaned) == "null" {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

// systemTextBlock is the wire shape of a flattened system-message entry.
type systemTextBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *CacheControlEphemeral `json:"cache_control,omitempty"`
}

// OaiToCanonicalParams converts a full OpenAI-dialect request into the
// canonical CreateMessageParams.
func OaiToCanonicalParams(p OaiCreateMessageParams) CreateMessageParams {
	var systemBlocks []systemTextBlock
	var messages []Message

	for _, raw := range p.Messages {
		if raw.Role == OaiRoleSystem {
			systemBlocks = append(systemBlocks, systemTextBlock{Type: BlockText, Text: raw.ContentAsString()})
			continue
		}
		messages = append(messages, ConvertOaiMessage(raw))
	}

	maxTokens := DefaultMaxTokens
	if p.MaxTokens != nil {
		maxTokens = *p.MaxTokens
	} else if p.MaxCompletionTokens != nil {
		maxTokens = *p.MaxCompletionTokens
	}

	out := CreateMessageParams{
		Model:       p.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
		Stream:      p.Stream,
		TopK:        p.TopK,
		TopP:        p.TopP,
		Metadata:    p.Metadata,
		N:           p.N,
	}

	if len(systemBlocks) > 0 {
		out.System, _ = json.Marshal(systemBlocks)
	}

	if p.Thinking != nil {
		out.Thinking = p.Thinking
	} else if p.ReasoningEffort != nil {
		out.Thinking = NewThinking(p.ReasoningEffort.BudgetTokens())
	}

	if len(p.Tools) > 0 {
		out.Tools = CleanOaiTools(p.Tools)
	}
	if len(p.ToolChoice) > 0 {
		out.ToolChoice = UpgradeToolChoice(p.ToolChoice)
	}

	if len(p.Stop) > 0 {
		var single string
		if err := json.Unmarshal(p.Stop, &single); err == nil {
			out.StopSequences = []string{single}
		} else {
			var many []string
			if err := json.Unmarshal(p.Stop, &many); err == nil {
				out.StopSequences = many
			}
		}
	}

	return out
}
