package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTransducer_MessageStartEmitsRoleOnce(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	chunks := tr.HandleEvent(StreamEvent{Type: "message_start"})
	require.Len(t, chunks, 1)
	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)

	chunks = tr.HandleEvent(StreamEvent{Type: "message_start"})
	assert.Nil(t, chunks)
}

func TestStreamTransducer_TextDelta(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	idx := 0
	chunks := tr.HandleEvent(StreamEvent{
		Type:  "content_block_delta",
		Index: &idx,
		Delta: []byte(`{"type":"text_delta","text":"hi"}`),
	})
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Choices[0].Delta.Content)
	assert.Equal(t, "hi", *chunks[0].Choices[0].Delta.Content)
}

// TestStreamTransducer_ToolUseLifecycle asserts the spec-mandated
// buffer-then-emit-once contract: content_block_start and input_json_delta
// only accumulate into the buffer, and content_block_stop emits exactly one
// chunk carrying the fully reassembled, parameter-remapped arguments.
func TestStreamTransducer_ToolUseLifecycle(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	idx := 0

	startChunks := tr.HandleEvent(StreamEvent{
		Type:         "content_block_start",
		Index:        &idx,
		ContentBlock: []byte(`{"type":"tool_use","id":"call_1","name":"Read"}`),
	})
	assert.Nil(t, startChunks)

	deltaChunks := tr.HandleEvent(StreamEvent{
		Type:  "content_block_delta",
		Index: &idx,
		Delta: []byte(`{"type":"input_json_delta","partial_json":"{\"path\":"}`),
	})
	assert.Nil(t, deltaChunks)

	deltaChunks2 := tr.HandleEvent(StreamEvent{
		Type:  "content_block_delta",
		Index: &idx,
		Delta: []byte(`{"type":"input_json_delta","partial_json":"\"/f.txt\"}"}`),
	})
	assert.Nil(t, deltaChunks2)

	stopChunks := tr.HandleEvent(StreamEvent{Type: "content_block_stop", Index: &idx})
	require.Len(t, stopChunks, 1)
	tc := stopChunks[0].Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, 0, tc.Index)
	assert.Equal(t, "function", tc.Type)
	assert.Equal(t, `{"file_path":"/f.txt"}`, tc.Function.Arguments)
}

// TestStreamTransducer_ToolCallIndexIncreasesAcrossCalls confirms emitIndex
// is threaded into the final emitted chunk and increases monotonically,
// starting at 0, across multiple tool_use blocks in the same stream.
func TestStreamTransducer_ToolCallIndexIncreasesAcrossCalls(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	idx0, idx1 := 0, 1

	tr.HandleEvent(StreamEvent{
		Type:         "content_block_start",
		Index:        &idx0,
		ContentBlock: []byte(`{"type":"tool_use","id":"call_1","name":"Bash"}`),
	})
	first := tr.HandleEvent(StreamEvent{Type: "content_block_stop", Index: &idx0})
	require.Len(t, first, 1)
	assert.Equal(t, 0, first[0].Choices[0].Delta.ToolCalls[0].Index)

	tr.HandleEvent(StreamEvent{
		Type:         "content_block_start",
		Index:        &idx1,
		ContentBlock: []byte(`{"type":"tool_use","id":"call_2","name":"Bash"}`),
	})
	second := tr.HandleEvent(StreamEvent{Type: "content_block_stop", Index: &idx1})
	require.Len(t, second, 1)
	assert.Equal(t, 1, second[0].Choices[0].Delta.ToolCalls[0].Index)
}

func TestStreamTransducer_ServerToolUseCapturesQuery(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	idx := 0
	chunks := tr.HandleEvent(StreamEvent{
		Type:         "content_block_start",
		Index:        &idx,
		ContentBlock: []byte(`{"type":"server_tool_use","id":"t1","name":"web_search","input":{"query":"weather"}}`),
	})
	assert.Nil(t, chunks)
	assert.Equal(t, "weather", tr.lastQuery)
}

func TestStreamTransducer_MessageDeltaEmitsFinishReason(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	chunks := tr.HandleEvent(StreamEvent{
		Type:  "message_delta",
		Delta: []byte(`{"stop_reason":"tool_use"}`),
	})
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *chunks[0].Choices[0].FinishReason)
}

func TestStreamTransducer_UnrecognizedEventIsNoOp(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	chunks := tr.HandleEvent(StreamEvent{Type: "ping"})
	assert.Nil(t, chunks)
}

func TestStreamTransducer_RecordWebSearchResult(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	idx := 0
	tr.HandleEvent(StreamEvent{
		Type:         "content_block_start",
		Index:        &idx,
		ContentBlock: []byte(`{"type":"server_tool_use","id":"t1","name":"web_search","input":{"query":"weather today"}}`),
	})

	raw := []byte(`{"type":"web_search_tool_result","content":[{"type":"web_search_result","url":"https://a.com","title":"A","snippet":"s"}]}`)
	chunks := tr.RecordWebSearchResult(raw)
	require.Len(t, chunks, 1)
	assert.Contains(t, *chunks[0].Choices[0].Delta.Content, "https://a.com")
	assert.Contains(t, *chunks[0].Choices[0].Delta.Content, "weather today")
}

func TestStreamTransducer_RecordWebSearchResult_NoCitationsReturnsNil(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	chunks := tr.RecordWebSearchResult([]byte(`{"type":"web_search_tool_result","content":[]}`))
	assert.Nil(t, chunks)
}

// TestStreamTransducer_WebSearchToolResultEmitsOnBlockStart confirms
// citation capture is wired into the normal content_block_start dispatch,
// not left reachable only via the RecordWebSearchResult unit test shim.
func TestStreamTransducer_WebSearchToolResultEmitsOnBlockStart(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	searchIdx, resultIdx := 0, 1
	tr.HandleEvent(StreamEvent{
		Type:         "content_block_start",
		Index:        &searchIdx,
		ContentBlock: []byte(`{"type":"server_tool_use","id":"t1","name":"web_search","input":{"query":"weather today"}}`),
	})

	chunks := tr.HandleEvent(StreamEvent{
		Type:  "content_block_start",
		Index: &resultIdx,
		ContentBlock: []byte(`{"type":"web_search_tool_result","content":[` +
			`{"type":"web_search_result","url":"https://a.com","title":"A","snippet":"s"}]}`),
	})
	require.Len(t, chunks, 1)
	assert.Contains(t, *chunks[0].Choices[0].Delta.Content, "https://a.com")
	assert.Contains(t, *chunks[0].Choices[0].Delta.Content, "weather today")
}

// TestStreamTransducer_SearchResultEmitsOnBlockStart covers the
// search_result block variant, whose citations are sourced from
// data.source/data.content rather than data.content[*].type=="web_search_result".
func TestStreamTransducer_SearchResultEmitsOnBlockStart(t *testing.T) {
	tr := NewStreamTransducer("id1", "model1")
	idx := 0
	chunks := tr.HandleEvent(StreamEvent{
		Type:  "content_block_start",
		Index: &idx,
		ContentBlock: []byte(`{"type":"search_result","source":{"url":"https://b.com","title":"B"},` +
			`"content":[{"type":"text","text":"snippet text"}]}`),
	})
	require.Len(t, chunks, 1)
	assert.Contains(t, *chunks[0].Choices[0].Delta.Content, "https://b.com")
}
