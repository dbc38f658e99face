package tests

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clewd-gateway/wiregate/internal/config"
	"github.com/clewd-gateway/wiregate/internal/handlers"
)

func newTestGateway(t *testing.T, upstreamURL string) http.Handler {
	return newTestGatewayWithConfig(t, func(cfg *config.Config) {
		cfg.Upstream.BaseURL = upstreamURL
	})
}

func newTestGatewayWithConfig(t *testing.T, customize func(*config.Config)) http.Handler {
	t.Helper()

	cfg := &config.Config{
		Host:   "127.0.0.1",
		Port:   8080,
		APIKey: "test-key",
		Upstream: config.UpstreamConfig{
			APIKey:    "upstream-test-key",
			AuthStyle: "x-api-key",
		},
	}
	customize(cfg)

	tmpDir := t.TempDir()
	cfgMgr := config.NewManager(tmpDir)
	require.NoError(t, cfgMgr.Save(cfg))
	_, err := cfgMgr.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return handlers.NewGatewayHandler(cfgMgr, logger)
}

// TestGateway_ChatCompletionsRoundTrip exercises the full OpenAI-dialect path:
// the gateway must convert the OpenAI-shaped request into the canonical
// Claude one before forwarding, and convert the Claude-shaped upstream
// response back into an OpenAI chat.completion before returning it.
func TestGateway_ChatCompletionsRoundTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "upstream-test-key", r.Header.Get("x-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_abc123",
			"type":  "message",
			"role":  "assistant",
			"model": "test-model",
			"content": []map[string]any{
				{"type": "text", "text": "Hello there!"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 5, "output_tokens": 3},
		})
	}))
	defer upstream.Close()

	handler := newTestGateway(t, upstream.URL)

	reqBody := map[string]any{
		"model": "test-model",
		"messages": []map[string]any{
			{"role": "user", "content": "Hello, world!"},
		},
	}
	jsonBody, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp["object"])

	choices, ok := resp["choices"].([]any)
	require.True(t, ok)
	require.Len(t, choices, 1)
	choice := choices[0].(map[string]any)
	assert.Equal(t, "stop", choice["finish_reason"])
	message := choice["message"].(map[string]any)
	assert.Equal(t, "Hello there!", message["content"])
}

// TestGateway_MessagesPassThrough exercises the Claude-dialect path, which
// should forward the canonical request and response essentially unchanged.
func TestGateway_MessagesPassThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_def456",
			"type":        "message",
			"role":        "assistant",
			"model":       "test-model",
			"content":     []map[string]any{{"type": "text", "text": "hi"}},
			"stop_reason": "end_turn",
		})
	}))
	defer upstream.Close()

	handler := newTestGateway(t, upstream.URL)

	reqBody := map[string]any{
		"model":      "test-model",
		"max_tokens": 100,
		"messages": []map[string]any{
			{"role": "user", "content": "Hello, world!"},
		},
	}
	jsonBody, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "message", resp["type"])
	assert.Equal(t, "msg_def456", resp["id"])
}

// TestGateway_TestProbeShortCircuits confirms the "Hi" test message never
// reaches the upstream at all.
func TestGateway_TestProbeShortCircuits(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be contacted for a test probe message")
	}))
	defer upstream.Close()

	handler := newTestGateway(t, upstream.URL)

	reqBody := map[string]any{
		"model":      "test-model",
		"max_tokens": 10,
		"messages": []map[string]any{
			{"role": "user", "content": "Hi"},
		},
	}
	jsonBody, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "message", resp["type"])
}

// TestGateway_WebTransportFlattensMessagesIntoSinglePrompt confirms that
// Upstream.Transport: "web" routes the outbound request through
// webstate.Transform instead of marshaling the canonical body directly.
func TestGateway_WebTransportFlattensMessagesIntoSinglePrompt(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_web1",
			"type":        "message",
			"role":        "assistant",
			"model":       "test-model",
			"content":     []map[string]any{{"type": "text", "text": "ack"}},
			"stop_reason": "end_turn",
		})
	}))
	defer upstream.Close()

	handler := newTestGatewayWithConfig(t, func(cfg *config.Config) {
		cfg.Upstream.BaseURL = upstream.URL
		cfg.Upstream.Transport = config.TransportWeb
	})

	reqBody := map[string]any{
		"model":      "test-model",
		"max_tokens": 100,
		"system":     "be helpful",
		"messages": []map[string]any{
			{"role": "user", "content": "Hello, world!"},
		},
	}
	jsonBody, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(jsonBody))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotNil(t, gotBody)
	_, hasMessages := gotBody["messages"]
	assert.False(t, hasMessages)
	paste, ok := gotBody["paste"].(string)
	require.True(t, ok)
	assert.Contains(t, paste, "be helpful")
	assert.Contains(t, paste, "Hello, world!")
}

// TestGateway_StreamingToolCallEmitsOneRemappedChunk drives a full SSE
// upstream response with a tool_use block split across several
// input_json_delta events through the OpenAI-dialect streaming path, and
// confirms the client sees exactly one tool_calls chunk per block, carrying
// the remapped argument names and a zero-based index.
func TestGateway_StreamingToolCallEmitsOneRemappedChunk(t *testing.T) {
	const sseBody = `data: {"type":"message_start","message":{"id":"msg_1","model":"test-model","role":"assistant"}}

data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"Read","input":{}}}

data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}

data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"/f.txt\"}"}}

data: {"type":"content_block_stop","index":0}

data: {"type":"message_delta","delta":{"stop_reason":"tool_use"}}

data: {"type":"message_stop"}

data: [DONE]

`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sseBody))
	}))
	defer upstream.Close()

	handler := newTestGateway(t, upstream.URL)

	reqBody := map[string]any{
		"model":    "test-model",
		"stream":   true,
		"messages": []map[string]any{{"role": "user", "content": "read a file"}},
	}
	jsonBody, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var toolCallChunks []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(rr.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
			continue
		}
		var chunk map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk))

		choices, ok := chunk["choices"].([]any)
		if !ok || len(choices) == 0 {
			continue
		}
		delta, ok := choices[0].(map[string]any)["delta"].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := delta["tool_calls"]; ok {
			toolCallChunks = append(toolCallChunks, chunk)
		}
	}

	require.Len(t, toolCallChunks, 1, "exactly one tool_calls chunk must be emitted per tool_use block")

	delta := toolCallChunks[0]["choices"].([]any)[0].(map[string]any)["delta"].(map[string]any)
	toolCalls := delta["tool_calls"].([]any)
	require.Len(t, toolCalls, 1)
	tc := toolCalls[0].(map[string]any)
	assert.Equal(t, float64(0), tc["index"])
	assert.Equal(t, "toolu_1", tc["id"])

	fn := tc["function"].(map[string]any)
	assert.Equal(t, "Read", fn["name"])

	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(fn["arguments"].(string)), &args))
	assert.Equal(t, "/f.txt", args["file_path"])
	_, hasPath := args["path"]
	assert.False(t, hasPath, "path should have been remapped to file_path")
}

// TestGateway_MalformedBodyReturnsBadRequest confirms the sentinel-error to
// HTTP-status mapping for an undecodable body.
func TestGateway_MalformedBodyReturnsBadRequest(t *testing.T) {
	handler := newTestGateway(t, "http://unused.invalid")

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
