package wire

import (
	"encoding/json"
)

// OaiStreamDelta is the delta object of one OpenAI-dialect streaming chunk.
type OaiStreamDelta struct {
	Role      string        `json:"role,omitempty"`
	Content   *string       `json:"content,omitempty"`
	ToolCalls []OaiToolCall `json:"tool_calls,omitempty"`
}

// OaiStreamChoice is one choice of an OpenAI-dialect streaming chunk.
type OaiStreamChoice struct {
	Index        int             `json:"index"`
	Delta        OaiStreamDelta  `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

// OaiStreamChunk is one `data: {...}` payload of an OpenAI-dialect SSE
// response.
type OaiStreamChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Model   string            `json:"model"`
	Choices []OaiStreamChoice `json:"choices"`
}

func textChunk(id, model string, text string) OaiStreamChunk {
	t := text
	return OaiStreamChunk{
		ID: id, Object: "chat.completion.chunk", Model: model,
		Choices: []OaiStreamChoice{{Index: 0, Delta: OaiStreamDelta{Content: &t}}},
	}
}

func roleChunk(id, model string) OaiStreamChunk {
	return OaiStreamChunk{
		ID: id, Object: "chat.completion.chunk", Model: model,
		Choices: []OaiStreamChoice{{Index: 0, Delta: OaiStreamDelta{Role: "assistant"}}},
	}
}

func toolCallChunk(id, model string, tc OaiToolCall) OaiStreamChunk {
	return OaiStreamChunk{
		ID: id, Object: "chat.completion.chunk", Model: model,
		Choices: []OaiStreamChoice{{Index: 0, Delta: OaiStreamDelta{ToolCalls: []OaiToolCall{tc}}}},
	}
}

func finishChunk(id, model, reason string) OaiStreamChunk {
	r := reason
	return OaiStreamChunk{
		ID: id, Object: "chat.completion.chunk", Model: model,
		Choices: []OaiStreamChoice{{Index: 0, Delta: OaiStreamDelta{}, FinishReason: &r}},
	}
}

// toolCallAccum tracks one in-flight tool_use block's accumulated
// partial_json, keyed by the Claude content block index it arrived on.
type toolCallAccum struct {
	emitIndex int
	id        string
	name      string
	args      []byte
}

// webSearchAccum tracks the query text of an in-flight server_tool_use
// block so the matching web_search_tool_result can be attributed to it.
type webSearchAccum struct {
	query string
}

// StreamTransducer converts one request's canonical SSE stream into
// OpenAI-dialect stream chunks. Its state is scoped to a single request,
// never shared across requests (unlike the process-wide signature slot).
type StreamTransducer struct {
	ID    string
	Model string

	toolCallBuffer  map[int]*toolCallAccum
	webSearchBuffer map[int]*webSearchAccum
	emitIndex       int
	startedRole     bool

	citations   []Citation
	lastQuery   string
}

// NewStreamTransducer builds a transducer for one response stream.
func NewStreamTransducer(id, model string) *StreamTransducer {
	return &StreamTransducer{
		ID:              id,
		Model:           model,
		toolCallBuffer:  map[int]*toolCallAccum{},
		webSearchBuffer: map[int]*webSearchAccum{},
	}
}

// HandleEvent consumes one canonical SSE event and returns zero or more
// OpenAI-dialect chunks to emit. Events of an unrecognized type (including
// Type=="") produce no chunks, per the never-fail policy.
func (t *StreamTransducer) HandleEvent(ev StreamEvent) []OaiStreamChunk {
	switch ev.Type {
	case "message_start":
		if !t.startedRole {
			t.startedRole = true
			return []OaiStreamChunk{roleChunk(t.ID, t.Model)}
		}
		return nil

	case "content_block_start":
		return t.handleBlockStart(ev)

	case "content_block_delta":
		return t.handleBlockDelta(ev)

	case "content_block_stop":
		return t.handleBlockStop(ev)

	case "message_delta":
		return t.handleMessageDelta(ev)

	case "message_stop":
		return nil

	default:
		return nil
	}
}

func (t *StreamTransducer) handleBlockStart(ev StreamEvent) []OaiStreamChunk {
	if ev.Index == nil || len(ev.ContentBlock) == 0 {
		return nil
	}
	var head struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(ev.ContentBlock, &head); err != nil {
		return nil
	}

	switch head.Type {
	case BlockToolUse:
		acc := &toolCallAccum{emitIndex: t.emitIndex, id: head.ID, name: head.Name}
		t.toolCallBuffer[*ev.Index] = acc
		t.emitIndex++
		return nil

	case BlockServerToolUse:
		var args struct {
			Input map[string]any `json:"input"`
		}
		_ = json.Unmarshal(ev.ContentBlock, &args)
		if q, ok := args.Input["query"].(string); ok {
			t.webSearchBuffer[*ev.Index] = &webSearchAccum{query: q}
			t.lastQuery = q
		}
		return nil

	case BlockWebSearchToolResult:
		return t.recordCitations(ExtractCitationsFromToolResult(ev.ContentBlock))

	case BlockSearchResult:
		return t.recordCitations(ExtractCitationsFromSearchResult(ev.ContentBlock))

	default:
		return nil
	}
}

func (t *StreamTransducer) handleBlockDelta(ev StreamEvent) []OaiStreamChunk {
	if ev.Index == nil || len(ev.Delta) == 0 {
		return nil
	}
	var d ContentBlockDelta
	if err := json.Unmarshal(ev.Delta, &d); err != nil {
		return nil
	}

	switch d.Type {
	case "text_delta":
		if d.Text == "" {
			return nil
		}
		return []OaiStreamChunk{textChunk(t.ID, t.Model, d.Text)}

	case "input_json_delta":
		acc, ok := t.toolCallBuffer[*ev.Index]
		if !ok {
			return nil
		}
		acc.args = append(acc.args, []byte(d.PartialJSON)...)
		return nil

	case "signature_delta":
		// The signature goes into the process-wide slot; nothing is emitted.
		StoreSignature(d.Signature)
		return nil

	default:
		return nil
	}
}

func (t *StreamTransducer) handleBlockStop(ev StreamEvent) []OaiStreamChunk {
	if ev.Index == nil {
		return nil
	}

	if acc, ok := t.toolCallBuffer[*ev.Index]; ok {
		args := acc.args
		if len(args) == 0 {
			args = []byte("{}")
		}
		remapped := RemapFunctionCallArgs(acc.name, json.RawMessage(args))
		delete(t.toolCallBuffer, *ev.Index)
		tc := OaiToolCall{
			ID:    acc.id,
			Index: acc.emitIndex,
			Type:  "function",
			Function: OaiToolCallFunction{
				Name:      acc.name,
				Arguments: string(remapped),
			},
		}
		return []OaiStreamChunk{toolCallChunk(t.ID, t.Model, tc)}
	}

	if _, ok := t.webSearchBuffer[*ev.Index]; ok {
		delete(t.webSearchBuffer, *ev.Index)
		return nil
	}

	return nil
}

func (t *StreamTransducer) handleMessageDelta(ev StreamEvent) []OaiStreamChunk {
	var d struct {
		StopReason *StopReason `json:"stop_reason"`
	}
	if len(ev.Delta) > 0 {
		_ = json.Unmarshal(ev.Delta, &d)
	}
	return []OaiStreamChunk{finishChunk(t.ID, t.Model, mapFinishReason(d.StopReason))}
}

// RecordWebSearchResult attaches citations found on a raw
// web_search_tool_result block to the transducer's running citation list and returns the markdown-formatted trailing text chunk, or
// nil if the block carried no citations.
func (t *StreamTransducer) RecordWebSearchResult(raw json.RawMessage) []OaiStreamChunk {
	return t.recordCitations(ExtractCitationsFromToolResult(raw))
}

// recordCitations is the shared sink for both web_search_tool_result and
// search_result blocks once their citations have been extracted.
func (t *StreamTransducer) recordCitations(cites []Citation) []OaiStreamChunk {
	if len(cites) == 0 {
		return nil
	}
	t.citations = append(t.citations, cites...)
	section := FormatCitationsAsMarkdown(t.lastQuery, cites)
	if section == "" {
		return nil
	}
	return []OaiStreamChunk{textChunk(t.ID, t.Model, section)}
}
