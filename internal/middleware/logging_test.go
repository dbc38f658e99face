package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIngressDialect_ClaudeCodeUserAgent(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/messages", nil)
	r.Header.Set("User-Agent", "claude-cli/1.0")
	assert.Equal(t, "claude", ingressDialect(r))
}

func TestIngressDialect_ChatCompletionsPathIsOpenAI(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	r.Header.Set("User-Agent", "python-requests/2.31")
	assert.Equal(t, "openai", ingressDialect(r))
}

func TestIngressDialect_UnrecognizedFallsBackToUnknown(t *testing.T) {
	r := httptest.NewRequest("GET", "/health", nil)
	assert.Equal(t, "unknown", ingressDialect(r))
}
