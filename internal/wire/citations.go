package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Citation is a normalized {url,title,snippet} triple extracted from a
// web-search tool result.
type Citation struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// ExtractCitationsFromToolResult walks a web_search_tool_result's data
// object: entries in data.content[] with type=="web_search_result" and,
// additionally, entries in data.results[] (both are checked).
func ExtractCitationsFromToolResult(data json.RawMessage) []Citation {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}

	var out []Citation

	if content, ok := obj["content"].([]any); ok {
		for _, item := range content {
			m, ok := item.(map[string]any)
			if !ok || stringField(m, "type") != "web_search_result" {
				continue
			}
			out = append(out, citationFromResultMap(m))
		}
	}

	if results, ok := obj["results"].([]any); ok {
		for _, item := range results {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, citationFromResultMap(m))
		}
	}

	return out
}

func citationFromResultMap(m map[string]any) Citation {
	snippet := stringField(m, "snippet")
	if snippet == "" {
		snippet = stringField(m, "encrypted_content")
	}
	return Citation{
		URL:     stringField(m, "url"),
		Title:   stringField(m, "title"),
		Snippet: snippet,
	}
}

// ExtractCitationsFromSearchResult reads data.source.{url,title} and joins
// data.content[*].text with newlines for the snippet.
func ExtractCitationsFromSearchResult(data json.RawMessage) []Citation {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}

	src, _ := obj["source"].(map[string]any)

	var lines []string
	if content, ok := obj["content"].([]any); ok {
		for _, item := range content {
			if m, ok := item.(map[string]any); ok {
				if t := stringField(m, "text"); t != "" {
					lines = append(lines, t)
				}
			}
		}
	}

	return []Citation{{
		URL:     stringField(src, "url"),
		Title:   stringField(src, "title"),
		Snippet: strings.Join(lines, "\n"),
	}}
}

// UrlCitationAnnotation is the OpenAI-dialect annotation shape.
type UrlCitationAnnotation struct {
	Type        string `json:"type"`
	URLCitation struct {
		URL        string `json:"url"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		StartIndex int    `json:"start_index"`
		EndIndex   int    `json:"end_index"`
	} `json:"url_citation"`
}

// CitationsToAnnotations converts canonical citations to OpenAI
// url_citation annotations.
func CitationsToAnnotations(cites []Citation) []UrlCitationAnnotation {
	out := make([]UrlCitationAnnotation, 0, len(cites))
	for _, c := range cites {
		var a UrlCitationAnnotation
		a.Type = "url_citation"
		a.URLCitation.URL = c.URL
		a.URLCitation.Title = c.Title
		a.URLCitation.Content = c.Snippet
		a.URLCitation.StartIndex = 0
		a.URLCitation.EndIndex = 0
		out = append(out, a)
	}
	return out
}

// AnnotationsToWebSearchContent converts OpenAI url_citation annotations
// back into canonical web_search_result objects.
func AnnotationsToWebSearchContent(anns []UrlCitationAnnotation) []map[string]any {
	out := make([]map[string]any, 0, len(anns))
	for _, a := range anns {
		out = append(out, map[string]any{
			"type":    "web_search_result",
			"url":     a.URLCitation.URL,
			"title":   a.URLCitation.Title,
			"snippet": a.URLCitation.Content,
		})
	}
	return out
}

const citationSnippetMaxLen = 200

func truncateSnippet(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) > citationSnippetMaxLen {
		r = r[:citationSnippetMaxLen]
	}
	return string(r)
}

// FormatCitationsAsMarkdown renders citations as the trailing Markdown
// section appended to OpenAI-dialect responses. Returns "" when cites is
// empty.
func FormatCitationsAsMarkdown(query string, cites []Citation) string {
	if len(cites) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n---\n**🔍 已为您搜索：** ")
	sb.WriteString(query)
	sb.WriteString("\n\n**📚 来源：**\n")
	for i, c := range cites {
		fmt.Fprintf(&sb, "%d. [%s](%s)\n   > %s\n", i+1, c.Title, c.URL, truncateSnippet(c.Snippet))
	}
	return sb.String()
}

// MergeCitationsIntoText appends the Markdown citation section to text.
// When cites is empty, text is returned unchanged.
func MergeCitationsIntoText(text, query string, cites []Citation) string {
	section := FormatCitationsAsMarkdown(query, cites)
	if section == "" {
		return text
	}
	return text + section
}
