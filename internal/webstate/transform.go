// Package webstate serializes a canonical multi-message conversation down
// into the single human/assistant-labelled prompt string the Claude.ai web
// frontend's chat endpoint expects, for the Web-ingress path that talks to
// that frontend rather than the raw /v1/messages API.
package webstate

import (
	"encoding/json"
	"strings"

	"github.com/clewd-gateway/wiregate/internal/config"
	"github.com/clewd-gateway/wiregate/internal/wire"
)

// WebRequestBody is the flattened request the Claude.ai web frontend accepts:
// one paste of merged conversation text plus any attached images, instead of
// a structured messages array.
type WebRequestBody struct {
	Prompt        string             `json:"prompt"`
	Paste         string             `json:"paste"`
	Images        []wire.ImageSource `json:"images,omitempty"`
	MaxTokens     int                `json:"max_tokens_to_sample"`
	Model         string             `json:"model,omitempty"`
	RenderingMode string             `json:"rendering_mode"`
}

// roleLine is one already-role-labelled chunk of merged conversation text.
type roleLine struct {
	role wire.Role
	text string
}

// Transform merges a canonical request's system prompt and message history
// into a single prompt string plus an extracted image list, using the
// configured human/assistant labels. Returns ok=false when the message list
// is empty, matching merge_messages returning None for empty input.
func Transform(p wire.CreateMessageParams, cfg config.GatewayConfig) (WebRequestBody, bool) {
	system := mergeSystem(p.System)
	merged, ok := mergeMessages(p.Messages, system, cfg)
	if !ok {
		return WebRequestBody{}, false
	}

	renderingMode := "raw"
	if p.Stream != nil && *p.Stream {
		renderingMode = "messages"
	}

	return WebRequestBody{
		Prompt:        cfg.CustomPrompt,
		Paste:         merged.paste,
		Images:        merged.images,
		MaxTokens:     p.MaxTokens,
		RenderingMode: renderingMode,
	}, true
}

type merged struct {
	paste  string
	images []wire.ImageSource
}

func mergeMessages(msgs []wire.Message, system string, cfg config.GatewayConfig) (merged, bool) {
	if len(msgs) == 0 {
		return merged{}, false
	}

	h := cfg.CustomH
	if h == "" {
		h = "Human"
	}
	a := cfg.CustomA
	if a == "" {
		a = "Assistant"
	}
	lineBreaks := "\n\n"
	if cfg.UseRealRoles {
		lineBreaks = "\n\n\x08"
	}
	system = strings.TrimSpace(system)

	var images []wire.ImageSource
	var lines []roleLine
	for _, m := range msgs {
		text, msgImages := flattenMessageContent(m)
		images = append(images, msgImages...)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if n := len(lines); n > 0 && lines[n-1].role == m.Role {
			lines[n-1].text += "\n" + text
			continue
		}
		lines = append(lines, roleLine{role: m.Role, text: text})
	}

	var w strings.Builder
	start := 0
	if system != "" {
		w.WriteString(system)
	} else {
		if len(lines) == 0 {
			return merged{}, false
		}
		w.WriteString(lines[0].text)
		start = 1
	}

	for _, l := range lines[start:] {
		var prefix string
		switch l.role {
		case wire.RoleSystem:
			continue
		case wire.RoleUser:
			prefix = h + ": "
		case wire.RoleAssistant:
			prefix = a + ": "
		}
		w.WriteString(lineBreaks)
		w.WriteString(prefix)
		w.WriteString(l.text)
	}

	return merged{paste: w.String(), images: images}, true
}

// flattenMessageContent joins one message's text-bearing blocks with
// newlines and pulls any images out into a side list, the way the source's
// ContentBlock match arm does per block type.
func flattenMessageContent(m wire.Message) (string, []wire.ImageSource) {
	if !m.Content.IsBlocks {
		return strings.TrimSpace(m.Content.Text), nil
	}

	var parts []string
	var images []wire.ImageSource
	for _, b := range m.Content.Blocks {
		switch b.Type {
		case wire.BlockText:
			if t := strings.TrimSpace(b.Text); t != "" {
				parts = append(parts, t)
			}
		case wire.BlockImage:
			if b.ImageSource != nil {
				images = append(images, *b.ImageSource)
			}
		case wire.BlockImageURL:
			if b.ImageURL != nil {
				if src, ok := wire.ExtractImageFromDataURI(b.ImageURL.URL); ok {
					images = append(images, src)
				} else if strings.HasPrefix(b.ImageURL.URL, "http://") || strings.HasPrefix(b.ImageURL.URL, "https://") {
					images = append(images, wire.ImageSource{
						Type:      "url",
						MediaType: wire.InferMediaTypeFromURL(b.ImageURL.URL),
						Data:      b.ImageURL.URL,
					})
				}
			}
		case wire.BlockDocument:
			if b.DocumentSource != nil {
				if src, ok := wire.DocumentToImageSource(*b.DocumentSource); ok {
					images = append(images, src)
				}
			}
		case wire.BlockThinking:
			if t := strings.TrimSpace(b.Thinking); t != "" {
				parts = append(parts, "<thinking>"+t+"</thinking>")
			}
		}
	}
	return strings.Join(parts, "\n"), images
}

// mergeSystem flattens a system prompt carried as either a bare JSON string
// or an array of {"text": ...} blocks into one joined string.
func mergeSystem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}
