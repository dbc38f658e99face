package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertOaiMessage_ToolRoleBecomesUserToolResult(t *testing.T) {
	m := OaiMessage{Role: OaiRoleTool, ToolCallID: "call_1", Content: json.RawMessage(`"result text"`)}
	out := ConvertOaiMessage(m)
	assert.Equal(t, RoleUser, out.Role)
	require.True(t, out.Content.IsBlocks)
	require.Len(t, out.Content.Blocks, 1)
	assert.Equal(t, BlockToolResult, out.Content.Blocks[0].Type)
	assert.Equal(t, "call_1", out.Content.Blocks[0].ToolUseID)
}

func TestConvertOaiMessage_AssistantWithToolCalls(t *testing.T) {
	m := OaiMessage{
		Role:    OaiRoleAssistant,
		Content: json.RawMessage(`"thinking out loud"`),
		ToolCalls: []OaiToolCall{
			{ID: "call_1", Type: "function", Function: OaiToolCallFunction{Name: "Grep", Arguments: `{"query":"foo"}`}},
		},
	}
	out := ConvertOaiMessage(m)
	assert.Equal(t, RoleAssistant, out.Role)
	require.Len(t, out.Content.Blocks, 2)
	assert.Equal(t, BlockText, out.Content.Blocks[0].Type)
	assert.Equal(t, BlockToolUse, out.Content.Blocks[1].Type)

	var args map[string]any
	require.NoError(t, json.Unmarshal(out.Content.Blocks[1].Input, &args))
	assert.Equal(t, "foo", args["pattern"])
}

func TestConvertOaiMessage_AssistantToolCallsOmitsEmptyText(t *testing.T) {
	m := OaiMessage{
		Role: OaiRoleAssistant,
		ToolCalls: []OaiToolCall{
			{ID: "call_1", Type: "function", Function: OaiToolCallFunction{Name: "Read", Arguments: `{}`}},
		},
	}
	out := ConvertOaiMessage(m)
	require.Len(t, out.Content.Blocks, 1)
	assert.Equal(t, BlockToolUse, out.Content.Blocks[0].Type)
}

func TestConvertOaiMessage_AssistantAnnotationsBecomeWebSearchToolResult(t *testing.T) {
	m := OaiMessage{
		Role:    OaiRoleAssistant,
		Content: json.RawMessage(`"here's what I found"`),
		Annotations: []UrlCitationAnnotation{
			{Type: "url_citation"},
		},
	}
	m.Annotations[0].URLCitation.URL = "https://a.com"
	m.Annotations[0].URLCitation.Title = "A"
	m.Annotations[0].URLCitation.Content = "snippet"

	out := ConvertOaiMessage(m)
	assert.Equal(t, RoleAssistant, out.Role)
	require.Len(t, out.Content.Blocks, 2)
	assert.Equal(t, BlockText, out.Content.Blocks[0].Type)
	toolResult := out.Content.Blocks[1]
	assert.Equal(t, BlockToolResult, toolResult.Type)
	assert.Equal(t, "web_search", toolResult.ToolUseID)

	var results []map[string]any
	require.NoError(t, json.Unmarshal(toolResult.ToolResultContent, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "https://a.com", results[0]["url"])
}

func TestConvertOaiMessage_ToolCallsAndAnnotationsBothAttach(t *testing.T) {
	m := OaiMessage{
		Role: OaiRoleAssistant,
		ToolCalls: []OaiToolCall{
			{ID: "call_1", Type: "function", Function: OaiToolCallFunction{Name: "Grep", Arguments: `{"query":"foo"}`}},
		},
		Annotations: []UrlCitationAnnotation{{Type: "url_citation"}},
	}
	out := ConvertOaiMessage(m)
	require.Len(t, out.Content.Blocks, 2)
	assert.Equal(t, BlockToolUse, out.Content.Blocks[0].Type)
	assert.Equal(t, BlockToolResult, out.Content.Blocks[1].Type)
}

func TestConvertOaiMessage_PlainStringContent(t *testing.T) {
	m := OaiMessage{Role: OaiRoleUser, Content: json.RawMessage(`"hello"`)}
	out := ConvertOaiMessage(m)
	assert.Equal(t, RoleUser, out.Role)
	assert.False(t, out.Content.IsBlocks)
	assert.Equal(t, "hello", out.Content.Text)
}

func TestConvertOaiMessage_BlockArrayContent(t *testing.T) {
	m := OaiMessage{Role: OaiRoleUser, Content: json.RawMessage(`[{"type":"text","text":"hi"}]`)}
	out := ConvertOaiMessage(m)
	require.True(t, out.Content.IsBlocks)
	require.Len(t, out.Content.Blocks, 1)
	assert.Equal(t, "hi", out.Content.Blocks[0].Text)
}

func TestUpgradeToolChoice_StringBecomesObject(t *testing.T) {
	out := UpgradeToolChoice(json.RawMessage(`"auto"`))
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "auto", m["type"])
}

func TestUpgradeToolChoice_ObjectPassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"type":"tool","name":"Grep"}`)
	out := UpgradeToolChoice(raw)
	assert.JSONEq(t, string(raw), string(out))
}

func TestCleanOaiTools_BuiltinToolGetsFixedTag(t *testing.T) {
	tools := []json.RawMessage{
		json.RawMessage(`{"type":"function","function":{"name":"web_search","parameters":{}}}`),
	}
	out := CleanOaiTools(tools)
	require.Len(t, out, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out[0], &m))
	assert.Equal(t, "web_search_20250305", m["type"])
	assert.NotContains(t, m, "input_schema")
}

func TestCleanOaiTools_CustomToolCleansSchema(t *testing.T) {
	tools := []json.RawMessage{
		json.RawMessage(`{"type":"function","function":{"name":"my_tool","description":"d","parameters":{"type":"object","properties":{"x":{"type":"string"}}}}}`),
	}
	out := CleanOaiTools(tools)
	require.Len(t, out, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out[0], &m))
	assert.Equal(t, "custom", m["type"])
	assert.Equal(t, "my_tool", m["name"])
	assert.Contains(t, m, "input_schema")
}

func TestOaiToCanonicalParams_SystemMessagesBecomeBlocks(t *testing.T) {
	params := OaiToCanonicalParams(OaiCreateMessageParams{
		Model: "test-model",
		Messages: []OaiMessage{
			{Role: OaiRoleSystem, Content: json.RawMessage(`"be nice"`)},
			{Role: OaiRoleUser, Content: json.RawMessage(`"hi"`)},
		},
	})
	require.Len(t, params.Messages, 1)
	var blocks []systemTextBlock
	require.NoError(t, json.Unmarshal(params.System, &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, "be nice", blocks[0].Text)
}

func TestOaiToCanonicalParams_MaxTokensFallsBackToCompletionTokens(t *testing.T) {
	n := 500
	params := OaiToCanonicalParams(OaiCreateMessageParams{
		Model:               "test-model",
		MaxCompletionTokens: &n,
	})
	assert.Equal(t, 500, params.MaxTokens)
}

func TestOaiToCanonicalParams_DefaultsMaxTokens(t *testing.T) {
	params := OaiToCanonicalParams(OaiCreateMessageParams{Model: "test-model"})
	assert.Equal(t, DefaultMaxTokens, params.MaxTokens)
}

func TestOaiToCanonicalParams_ReasoningEffortDerivesThinkingBudget(t *testing.T) {
	effort := EffortHigh
	params := OaiToCanonicalParams(OaiCreateMessageParams{Model: "test-model", ReasoningEffort: &effort})
	require.NotNil(t, params.Thinking)
	assert.Equal(t, uint64(16384), params.Thinking.BudgetTokens)
}

func TestOaiToCanonicalParams_StopArrayAndString(t *testing.T) {
	single := OaiToCanonicalParams(OaiCreateMessageParams{Model: "m", Stop: json.RawMessage(`"END"`)})
	assert.Equal(t, []string{"END"}, single.StopSequences)

	multi := OaiToCanonicalParams(OaiCreateMessageParams{Model: "m", Stop: json.RawMessage(`["A","B"]`)})
	assert.Equal(t, []string{"A", "B"}, multi.StopSequences)
}
