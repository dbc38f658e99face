package webstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clewd-gateway/wiregate/internal/config"
	"github.com/clewd-gateway/wiregate/internal/wire"
)

func textMsg(role wire.Role, text string) wire.Message {
	return wire.NewTextMessage(role, text)
}

func TestTransform_EmptyMessagesReturnsNotOk(t *testing.T) {
	p := wire.CreateMessageParams{Messages: nil}
	_, ok := Transform(p, config.GatewayConfig{})
	assert.False(t, ok)
}

func TestTransform_SystemBecomesFirstLine(t *testing.T) {
	sys, _ := json.Marshal("You are a helpful bot.")
	p := wire.CreateMessageParams{
		System:   sys,
		Messages: []wire.Message{textMsg(wire.RoleUser, "hello")},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	assert.Contains(t, out.Paste, "You are a helpful bot.")
	assert.Contains(t, out.Paste, "Human: hello")
}

func TestTransform_NoSystemUsesFirstMessageAsPreamble(t *testing.T) {
	p := wire.CreateMessageParams{
		Messages: []wire.Message{
			textMsg(wire.RoleUser, "first turn"),
			textMsg(wire.RoleAssistant, "second turn"),
		},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	assert.True(t, len(out.Paste) > 0)
	assert.NotContains(t, out.Paste, "Human: first turn")
	assert.Contains(t, out.Paste, "Assistant: second turn")
}

func TestTransform_CustomLabelsOverrideDefaults(t *testing.T) {
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System: sys,
		Messages: []wire.Message{
			textMsg(wire.RoleUser, "hi"),
			textMsg(wire.RoleAssistant, "hello back"),
		},
	}
	out, ok := Transform(p, config.GatewayConfig{CustomH: "Q", CustomA: "A"})
	require.True(t, ok)
	assert.Contains(t, out.Paste, "Q: hi")
	assert.Contains(t, out.Paste, "A: hello back")
}

func TestTransform_UseRealRolesAddsBackspaceSeparator(t *testing.T) {
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System:   sys,
		Messages: []wire.Message{textMsg(wire.RoleUser, "hi")},
	}
	out, ok := Transform(p, config.GatewayConfig{UseRealRoles: true})
	require.True(t, ok)
	assert.Contains(t, out.Paste, "\n\n\x08Human: hi")
}

func TestTransform_ConsecutiveSameRoleMessagesJoinWithNewline(t *testing.T) {
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System: sys,
		Messages: []wire.Message{
			textMsg(wire.RoleUser, "line one"),
			textMsg(wire.RoleUser, "line two"),
		},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	assert.Contains(t, out.Paste, "line one\nline two")
}

func TestTransform_ImageBlockExtractedFromMessage(t *testing.T) {
	sys, _ := json.Marshal("sys")
	src := wire.ImageSource{Type: "base64", MediaType: "image/png", Data: "Zm9v"}
	p := wire.CreateMessageParams{
		System: sys,
		Messages: []wire.Message{
			wire.NewBlocksMessage(wire.RoleUser, []wire.ContentBlock{
				wire.TextBlock("look at this"),
				{Type: wire.BlockImage, ImageSource: &src},
			}),
		},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	require.Len(t, out.Images, 1)
	assert.Equal(t, "image/png", out.Images[0].MediaType)
	assert.Contains(t, out.Paste, "look at this")
}

func TestTransform_DataURIImageURLExtracted(t *testing.T) {
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System: sys,
		Messages: []wire.Message{
			wire.NewBlocksMessage(wire.RoleUser, []wire.ContentBlock{
				{Type: wire.BlockImageURL, ImageURL: &wire.ImageURLRef{URL: "data:image/png;base64,Zm9v"}},
			}),
		},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	require.Len(t, out.Images, 1)
	assert.Equal(t, "base64", out.Images[0].Type)
}

func TestTransform_HTTPImageURLBecomesURLTypeImage(t *testing.T) {
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System: sys,
		Messages: []wire.Message{
			wire.NewBlocksMessage(wire.RoleUser, []wire.ContentBlock{
				{Type: wire.BlockImageURL, ImageURL: &wire.ImageURLRef{URL: "https://example.com/photo.jpg"}},
			}),
		},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	require.Len(t, out.Images, 1)
	assert.Equal(t, "url", out.Images[0].Type)
	assert.Equal(t, "image/jpeg", out.Images[0].MediaType)
}

func TestTransform_ThinkingBlockWrappedInTag(t *testing.T) {
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System: sys,
		Messages: []wire.Message{
			wire.NewBlocksMessage(wire.RoleAssistant, []wire.ContentBlock{
				{Type: wire.BlockThinking, Thinking: "pondering"},
			}),
		},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	assert.Contains(t, out.Paste, "<thinking>pondering</thinking>")
}

func TestTransform_StreamTrueSetsMessagesRenderingMode(t *testing.T) {
	stream := true
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System:   sys,
		Stream:   &stream,
		Messages: []wire.Message{textMsg(wire.RoleUser, "hi")},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	assert.Equal(t, "messages", out.RenderingMode)
}

func TestTransform_StreamFalseSetsRawRenderingMode(t *testing.T) {
	sys, _ := json.Marshal("sys")
	p := wire.CreateMessageParams{
		System:   sys,
		Messages: []wire.Message{textMsg(wire.RoleUser, "hi")},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	assert.Equal(t, "raw", out.RenderingMode)
}

func TestMergeSystem_ArrayOfBlocksJoinedWithNewline(t *testing.T) {
	raw, _ := json.Marshal([]map[string]string{{"text": "first"}, {"text": "second"}})
	p := wire.CreateMessageParams{
		System:   raw,
		Messages: []wire.Message{textMsg(wire.RoleUser, "hi")},
	}
	out, ok := Transform(p, config.GatewayConfig{})
	require.True(t, ok)
	assert.Contains(t, out.Paste, "first\nsecond")
}
