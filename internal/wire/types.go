// Package wire implements the canonical Claude-shaped data model and the
// bidirectional conversion engine between the Claude-native dialect and the
// OpenAI chat-completions dialect.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role is a message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content block type tags, preserved bit-exact on the wire.
const (
	BlockText                 = "text"
	BlockImage                = "image"
	BlockImageURL             = "image_url"
	BlockDocument             = "document"
	BlockToolUse              = "tool_use"
	BlockToolResult           = "tool_result"
	BlockThinking             = "thinking"
	BlockRedactedThinking     = "redacted_thinking"
	BlockSearchResult         = "search_result"
	BlockServerToolUse        = "server_tool_use"
	BlockWebSearchToolResult  = "web_search_tool_result"
)

// MinSignatureLength is the shortest thinking signature considered valid.
const MinSignatureLength = 10

// CacheControlEphemeral marks a block for upstream prompt caching.
type CacheControlEphemeral struct {
	Type string  `json:"type"`
	TTL  *string `json:"ttl,omitempty"`
}

// ImageSource is the required-field source of a base64-encoded image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// DocumentSource is the looser source shape carried by document blocks.
type DocumentSource struct {
	Type      string  `json:"type"`
	MediaType *string `json:"media_type,omitempty"`
	Data      *string `json:"data,omitempty"`
	URL       *string `json:"url,omitempty"`
}

// ImageURLRef is the OpenAI-dialect image reference.
type ImageURLRef struct {
	URL string `json:"url"`
}

// ContentBlock is a tagged union over every block shape both dialects use.
// Go has no native tagged enum, so fields from every variant live side by
// side on one struct; MarshalJSON/UnmarshalJSON dispatch on Type and emit
// only the fields that variant carries.
type ContentBlock struct {
	Type string

	// text
	Text string

	// image
	ImageSource *ImageSource

	// image_url
	ImageURL *ImageURLRef

	// document
	DocumentSource *DocumentSource

	// tool_use
	ID        string
	Name      string
	Input     json.RawMessage
	Signature string

	// tool_result
	ToolUseID         string
	ToolResultContent json.RawMessage
	IsError           *bool

	// thinking
	Thinking string

	// redacted_thinking / search_result / server_tool_use / web_search_tool_result:
	// preserved verbatim for pass-through and citation extraction.
	Raw json.RawMessage

	CacheControl *CacheControlEphemeral
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result content block whose content is a
// string, per the invariant that tool_result.content must stay a string.
func ToolResultBlock(toolUseID, content string) ContentBlock {
	raw, _ := json.Marshal(content)
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, ToolResultContent: raw}
}

// HasValidSignature reports whether a thinking block's signature meets the
// minimum-length bar.
func (b ContentBlock) HasValidSignature() bool {
	return b.Type == BlockThinking && len(b.Signature) >= MinSignatureLength
}

// ClearCacheControl removes cache_control from any block variant that
// carries one. A no-op for variants without the field.
func (b *ContentBlock) ClearCacheControl() {
	b.CacheControl = nil
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": b.Type}

	switch b.Type {
	case BlockText:
		m["text"] = b.Text
		if b.CacheControl != nil {
			m["cache_control"] = b.CacheControl
		}
	case BlockImage:
		m["source"] = b.ImageSource
		if b.CacheControl != nil {
			m["cache_control"] = b.CacheControl
		}
	case BlockImageURL:
		m["image_url"] = b.ImageURL
	case BlockDocument:
		m["source"] = b.DocumentSource
		if b.CacheControl != nil {
			m["cache_control"] = b.CacheControl
		}
	case BlockToolUse:
		m["id"] = b.ID
		m["name"] = b.Name
		if b.Input != nil {
			m["input"] = b.Input
		} else {
			m["input"] = json.RawMessage("{}")
		}
		if b.Signature != "" {
			m["signature"] = b.Signature
		}
		if b.CacheControl != nil {
			m["cache_control"] = b.CacheControl
		}
	case BlockToolResult:
		m["tool_use_id"] = b.ToolUseID
		if b.ToolResultContent != nil {
			m["content"] = b.ToolResultContent
		}
		if b.IsError != nil {
			m["is_error"] = *b.IsError
		}
		if b.CacheControl != nil {
			m["cache_control"] = b.CacheControl
		}
	case BlockThinking:
		m["thinking"] = b.Thinking
		if b.Signature != "" {
			m["signature"] = b.Signature
		}
		if b.CacheControl != nil {
			m["cache_control"] = b.CacheControl
		}
	default:
		// redacted_thinking, search_result, server_tool_use,
		// web_search_tool_result: flatten the raw object we captured,
		// keeping "type" as set above.
		if len(b.Raw) > 0 {
			var extra map[string]json.RawMessage
			if err := json.Unmarshal(b.Raw, &extra); err == nil {
				for k, v := range extra {
					if k == "type" {
						continue
					}
					m[k] = v
				}
			}
		}
	}

	return json.Marshal(m)
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("content block: %w", err)
	}
	b.Type = head.Type

	switch head.Type {
	case BlockText:
		var v struct {
			Text         string                 `json:"text"`
			CacheControl *CacheControlEphemeral `json:"cache_control,omitempty"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.Text, b.CacheControl = v.Text, v.CacheControl
	case BlockImage:
		var v struct {
			Source       *ImageSource           `json:"source"`
			CacheControl *CacheControlEphemeral `json:"cache_control,omitempty"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.ImageSource, b.CacheControl = v.Source, v.CacheControl
	case BlockImageURL:
		var v struct {
			ImageURL *ImageURLRef `json:"image_url"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.ImageURL = v.ImageURL
	case BlockDocument:
		var v struct {
			Source       *DocumentSource        `json:"source"`
			CacheControl *CacheControlEphemeral `json:"cache_control,omitempty"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.DocumentSource, b.CacheControl = v.Source, v.CacheControl
	case BlockToolUse:
		var v struct {
			ID           string                 `json:"id"`
			Name         string                 `json:"name"`
			Input        json.RawMessage        `json:"input"`
			Signature    string                 `json:"signature,omitempty"`
			CacheControl *CacheControlEphemeral `json:"cache_control,omitempty"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.ID, b.Name, b.Input, b.Signature, b.CacheControl = v.ID, v.Name, v.Input, v.Signature, v.CacheControl
	case BlockToolResult:
		var v struct {
			ToolUseID    string                 `json:"tool_use_id"`
			Content      json.RawMessage        `json:"content"`
			IsError      *bool                  `json:"is_error,omitempty"`
			CacheControl *CacheControlEphemeral `json:"cache_control,omitempty"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.ToolUseID, b.ToolResultContent, b.IsError, b.CacheControl = v.ToolUseID, v.Content, v.IsError, v.CacheControl
	case BlockThinking:
		var v struct {
			Thinking     string                 `json:"thinking"`
			Signature    string                 `json:"signature,omitempty"`
			CacheControl *CacheControlEphemeral `json:"cache_control,omitempty"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.Thinking, b.Signature, b.CacheControl = v.Thinking, v.Signature, v.CacheControl
	default:
		// redacted_thinking, search_result, server_tool_use,
		// web_search_tool_result, and any unrecognized future tag: keep
		// the whole object so it can pass through unchanged.
		b.Raw = append([]byte(nil), data...)
	}

	return nil
}

// MessageContent is the Claude union: a plain string, or an ordered list of
// content blocks. Unmarshal tries the stricter (string) shape first, then
// falls back to the looser (array) shape, per the dual-shape guidance.
type MessageContent struct {
	IsBlocks bool
	Text     string
	Blocks   []ContentBlock
}

func TextContent(s string) MessageContent        { return MessageContent{Text: s} }
func BlocksContent(b []ContentBlock) MessageContent { return MessageContent{IsBlocks: true, Blocks: b} }

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsBlocks {
		if c.Blocks == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.Text = s
		c.IsBlocks = false
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("message content: neither string nor block array: %w", err)
	}
	c.Blocks = blocks
	c.IsBlocks = true
	return nil
}

// Message is role plus content.
type Message struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: TextContent(text)}
}

func NewBlocksMessage(role Role, blocks []ContentBlock) Message {
	return Message{Role: role, Content: BlocksContent(blocks)}
}

// ClearCacheControl strips cache_control from every block, a no-op for
// string-content messages.
func (m *Message) ClearCacheControl() {
	if !m.Content.IsBlocks {
		return
	}
	for i := range m.Content.Blocks {
		m.Content.Blocks[i].ClearCacheControl()
	}
}

// CleanCacheControlFromMessages clears cache_control on every message.
func CleanCacheControlFromMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].ClearCacheControl()
	}
}

// Thinking configures extended-thinking mode on a request.
type Thinking struct {
	BudgetTokens uint64 `json:"budget_tokens"`
	Type         string `json:"type"`
}

// NewThinking builds a Thinking with the given budget and type "enabled".
func NewThinking(budgetTokens uint64) *Thinking {
	return &Thinking{BudgetTokens: budgetTokens, Type: "enabled"}
}

const DefaultMaxTokens = 8192

// CreateMessageParams is the canonical (Claude-shaped) request body.
type CreateMessageParams struct {
	Model         string            `json:"model"`
	Messages      []Message         `json:"messages"`
	MaxTokens     int               `json:"max_tokens"`
	System        json.RawMessage   `json:"system,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        *bool             `json:"stream,omitempty"`
	Thinking      *Thinking         `json:"thinking,omitempty"`
	TopK          *int              `json:"top_k,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	Tools         []json.RawMessage `json:"tools,omitempty"`
	ToolChoice    json.RawMessage   `json:"tool_choice,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	N             *int              `json:"n,omitempty"`
}

// StopReason is the canonical terminal-state tag of a response.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
	StopRefusal      StopReason = "refusal"
)

// Usage is input/output token counts on a completed response.
type Usage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// StreamUsage is the usage shape carried on message_delta events.
type StreamUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// CreateMessageResponse is the canonical (Claude-shaped) non-stream response.
type CreateMessageResponse struct {
	Content      []ContentBlock `json:"content"`
	ID           string         `json:"id"`
	Model        string         `json:"model"`
	Role         string         `json:"role"`
	StopReason   *StopReason    `json:"stop_reason,omitempty"`
	StopSequence *string        `json:"stop_sequence,omitempty"`
	Type         string         `json:"type"`
	Usage        *Usage         `json:"usage,omitempty"`
}

// ContentBlockDelta is the flat shape of content_block_delta's inner delta
// object; exactly one of its fields is populated depending on Type.
type ContentBlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// StreamEvent is a loosely-typed canonical SSE event: Type selects which of
// the optional fields is meaningful. Events of an unrecognized type keep
// that Type and are treated as no-ops by the transducer, per the never-fail
// error policy; a payload that is not valid JSON fails ParseStreamEvent.
type StreamEvent struct {
	Type         string          `json:"type"`
	Index        *int            `json:"index,omitempty"`
	ContentBlock json.RawMessage `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`
	Usage        *StreamUsage    `json:"usage,omitempty"`
}

// ParseStreamEvent decodes a single SSE data payload. It never returns an
// error for a structurally-valid-but-unrecognized event; callers treat an
// unrecognized Type as a no-op.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamEvent{}, err
	}
	return ev, nil
}
