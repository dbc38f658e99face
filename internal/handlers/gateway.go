package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/clewd-gateway/wiregate/internal/config"
	"github.com/clewd-gateway/wiregate/internal/upstream"
	"github.com/clewd-gateway/wiregate/internal/webstate"
	"github.com/clewd-gateway/wiregate/internal/wire"
)

// GatewayHandler fronts both dialect endpoints: it normalizes the inbound
// request into the canonical dialect, forwards it to the single configured
// upstream, and translates the response back into whichever dialect the
// client spoke.
type GatewayHandler struct {
	config *config.Manager
	logger *slog.Logger
}

func NewGatewayHandler(config *config.Manager, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{config: config, logger: logger}
}

// isFromClaudeCode reports whether the request carries a Claude Code CLI
// user agent, the boundary this gateway uses to pick the Code ingress
// variant over the Web one.
func isFromClaudeCode(r *http.Request) bool {
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	return strings.Contains(ua, "claude-code") || strings.Contains(ua, "claude-cli")
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.httpError(w, http.StatusInternalServerError, "failed to read request body: %v", err)
		return
	}

	normalizer := wire.NewNormalizer(h.logger, cfg.Gateway.DebugLogDir, cfg.Gateway.CustomSystem)

	var (
		params wire.CreateMessageParams
		ctx    wire.Context
	)
	if isFromClaudeCode(r) {
		params, ctx, err = normalizer.NormalizeCodeRequest(r.URL.Path, body)
	} else {
		params, ctx, err = normalizer.NormalizeWebRequest(r.URL.Path, body)
	}

	if err != nil {
		h.handleNormalizeError(w, ctx, err)
		return
	}

	if cfg.Gateway.WebSearch {
		attachWebSearchTool(&params)
	}

	client := upstream.New(upstream.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		APIKey:    cfg.Upstream.APIKey,
		AuthStyle: upstream.AuthStyle(cfg.Upstream.AuthStyle),
	})

	outBody, err := h.buildUpstreamBody(params, cfg)
	if err != nil {
		h.httpError(w, http.StatusInternalServerError, "failed to marshal upstream request: %v", err)
		return
	}

	resp, err := client.Forward(r.Context(), outBody)
	if err != nil {
		h.httpError(w, http.StatusBadGateway, "upstream request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	bodyReader, err := upstream.DecompressReader(resp)
	if err != nil {
		h.httpError(w, http.StatusBadGateway, "decompression error: %v", err)
		return
	}
	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	if resp.StatusCode != http.StatusOK {
		h.forwardUpstreamError(w, resp, bodyReader)
		return
	}

	if ctx.Stream {
		h.handleStream(w, bodyReader, ctx, params.Model)
	} else {
		h.handleNonStream(w, bodyReader, ctx, params.Model)
	}
}

func (h *GatewayHandler) handleNormalizeError(w http.ResponseWriter, ctx wire.Context, err error) {
	switch {
	case errors.Is(err, wire.ErrTestMessage):
		h.writeTestMessageResponse(w, ctx)
	case errors.Is(err, wire.ErrDeserialize):
		h.httpError(w, http.StatusBadRequest, "request body did not match either dialect: %v", err)
	case errors.Is(err, wire.ErrBadRequest):
		h.httpError(w, http.StatusBadRequest, "%v", err)
	default:
		h.httpError(w, http.StatusInternalServerError, "%v", err)
	}
}

// writeTestMessageResponse returns the canned 200 the "Hi" probe expects.
func (h *GatewayHandler) writeTestMessageResponse(w http.ResponseWriter, ctx wire.Context) {
	resp := wire.CreateMessageResponse{
		ID:      "msg_" + uuid.NewString(),
		Model:   "test",
		Role:    "assistant",
		Type:    "message",
		Content: []wire.ContentBlock{wire.TextBlock("Hello! This is a test response.")},
	}
	stop := wire.StopEndTurn
	resp.StopReason = &stop

	var out any = resp
	if ctx.ApiFormat == wire.FormatOpenAI {
		out = wire.ClaudeToOaiResponse(resp)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// buildUpstreamBody marshals the outbound request in whatever shape the
// configured upstream transport expects: the structured canonical body for
// a normal chat-completions-style upstream, or a single flattened prompt
// for an upstream whose Transport is "web".
func (h *GatewayHandler) buildUpstreamBody(params wire.CreateMessageParams, cfg *config.Config) ([]byte, error) {
	if cfg.Upstream.Transport != config.TransportWeb {
		return json.Marshal(params)
	}

	body, ok := webstate.Transform(params, cfg.Gateway)
	if !ok {
		return json.Marshal(params)
	}
	body.Model = params.Model
	return json.Marshal(body)
}

func attachWebSearchTool(p *wire.CreateMessageParams) {
	for _, t := range p.Tools {
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(t, &head) == nil && head.Type == "web_search_20250305" {
			return
		}
	}
	tool, _ := json.Marshal(map[string]any{"type": "web_search_20250305", "name": "web_search"})
	p.Tools = append(p.Tools, tool)
}

func (h *GatewayHandler) forwardUpstreamError(w http.ResponseWriter, resp *http.Response, bodyReader io.Reader) {
	data, _ := io.ReadAll(bodyReader)
	for k, vs := range resp.Header {
		if k == "Content-Encoding" || k == "Content-Length" {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(data)
}

func (h *GatewayHandler) handleNonStream(w http.ResponseWriter, bodyReader io.Reader, ctx wire.Context, model string) {
	data, err := io.ReadAll(bodyReader)
	if err != nil {
		h.httpError(w, http.StatusBadGateway, "failed to read upstream response: %v", err)
		return
	}

	var resp wire.CreateMessageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		h.httpError(w, http.StatusBadGateway, "failed to parse upstream response: %v", err)
		return
	}

	var out any = resp
	if ctx.ApiFormat == wire.FormatOpenAI {
		out = wire.ClaudeToOaiResponse(resp)
	} else {
		for i := range resp.Content {
			b := &resp.Content[i]
			if b.Type == wire.BlockToolUse && b.Input != nil {
				b.Input = wire.RemapFunctionCallArgs(b.Name, b.Input)
			}
			if b.HasValidSignature() || (b.Type == wire.BlockToolUse && b.Signature != "") {
				wire.StoreSignature(b.Signature)
			}
		}
		out = resp
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// handleStream drives the SSE scan loop: bufio.Scanner over "data: " lines,
// one Flush per emitted line.
func (h *GatewayHandler) handleStream(w http.ResponseWriter, bodyReader io.Reader, ctx wire.Context, model string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	responseID := "msg_" + uuid.NewString()
	transducer := wire.NewStreamTransducer(responseID, model)

	sawDone := false
	scanner := bufio.NewScanner(bodyReader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ": ") {
			continue
		}

		if line == "data: [DONE]" {
			sawDone = true
			fmt.Fprint(w, "data: [DONE]\n\n")
			if flusher != nil {
				flusher.Flush()
			}
			break
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := []byte(strings.TrimPrefix(line, "data: "))

		if ctx.ApiFormat == wire.FormatClaude {
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if flusher != nil {
				flusher.Flush()
			}
			continue
		}

		ev, err := wire.ParseStreamEvent(payload)
		if err != nil {
			h.logger.Warn("stream transducer: malformed event, dropping frame", "error", err)
			continue
		}

		for _, chunk := range transducer.HandleEvent(ev) {
			h.writeChunk(w, chunk)
		}

		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error("stream scanning error", "error", err)
	}

	if ctx.ApiFormat == wire.FormatOpenAI && !sawDone {
		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *GatewayHandler) writeChunk(w http.ResponseWriter, chunk wire.OaiStreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (h *GatewayHandler) httpError(w http.ResponseWriter, status int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	h.logger.Error("gateway error", "status", status, "message", msg)
	http.Error(w, msg, status)
}
