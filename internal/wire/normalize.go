package wire

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clewd-gateway/wiregate/internal/tokencount"
)

// ApiFormat identifies which dialect a request arrived in and therefore
// which dialect its response must be translated back into.
type ApiFormat string

const (
	FormatClaude ApiFormat = "claude"
	FormatOpenAI ApiFormat = "openai"
)

// Ingress identifies which named entry point produced a Context, since the
// Code variant carries additional fields the Web variant never sets.
type Ingress string

const (
	IngressWeb  Ingress = "web"
	IngressCode Ingress = "code"
)

// Context is the side-channel record a normalized request carries alongside
// its canonical CreateMessageParams.
type Context struct {
	Stream           bool
	ApiFormat        ApiFormat
	Ingress          Ingress
	EstimatedInput   int
	SystemPromptHash uint64
}

// Normalizer parses and conditions inbound requests into the canonical
// dialect. DebugLogDir, when non-empty, receives a copy of any request body
// that failed to parse as either dialect, for offline inspection.
type Normalizer struct {
	Logger      *slog.Logger
	DebugLogDir string
	Prelude     string
}

const defaultPreludeText = "You are an agent for Claude Code, Anthropic's official CLI for " +
	"Claude. Given the user's message, you should use the tools available " +
	"to complete the task. Do what has been asked; nothing more, nothing " +
	"less. When you complete the task simply respond with a detailed writeup."

// NewNormalizer builds a Normalizer, using the default Claude Code prelude
// text unless customSystem overrides it.
func NewNormalizer(logger *slog.Logger, debugLogDir, customSystem string) *Normalizer {
	prelude := defaultPreludeText
	if strings.TrimSpace(customSystem) != "" {
		prelude = customSystem
	}
	return &Normalizer{Logger: logger, DebugLogDir: debugLogDir, Prelude: prelude}
}

// DetectApiFormat dispatches on the request path.
func DetectApiFormat(path string) ApiFormat {
	if strings.Contains(path, "chat/completions") {
		return FormatOpenAI
	}
	return FormatClaude
}

func (n *Normalizer) dumpDebugBody(body []byte) {
	if n.DebugLogDir == "" {
		return
	}
	path := filepath.Join(n.DebugLogDir, "debug_raw_request.json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		n.Logger.Warn("failed to persist raw request body for debugging", "error", err, "path", path)
	}
}

func (n *Normalizer) parseBody(path string, body []byte) (CreateMessageParams, ApiFormat, error) {
	format := DetectApiFormat(path)

	if format == FormatOpenAI {
		var oai OaiCreateMessageParams
		if err := json.Unmarshal(body, &oai); err != nil {
			n.dumpDebugBody(body)
			return CreateMessageParams{}, format, fmt.Errorf("%w: %v", ErrDeserialize, err)
		}
		return OaiToCanonicalParams(oai), format, nil
	}

	var params CreateMessageParams
	if err := json.Unmarshal(body, &params); err != nil {
		n.dumpDebugBody(body)
		return CreateMessageParams{}, format, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return params, format, nil
}

// sanitizeMessages trims every text block and drops assistant messages that
// became empty.
func sanitizeMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Content.IsBlocks {
			m.Content.Text = strings.TrimSpace(m.Content.Text)
		} else {
			for i := range m.Content.Blocks {
				if m.Content.Blocks[i].Type == BlockText {
					m.Content.Blocks[i].Text = strings.TrimSpace(m.Content.Blocks[i].Text)
				}
			}
		}

		if m.Role == RoleAssistant && messageIsEmpty(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func messageIsEmpty(m Message) bool {
	if !m.Content.IsBlocks {
		return m.Content.Text == ""
	}
	for _, b := range m.Content.Blocks {
		if b.Type == BlockText && b.Text == "" {
			continue
		}
		return false
	}
	return true
}

func applyImageProcessing(msgs []Message) {
	for i := range msgs {
		if msgs[i].Content.IsBlocks {
			msgs[i].Content.Blocks = ProcessImageBlocks(msgs[i].Content.Blocks)
		}
	}
}

// applyThinkingRules applies the thinking-mode adjustment rules in order:
// suffix-triggered enable, history-triggered disable, invalid-block
// stripping, then a best-effort recovery warning.
func applyThinkingRules(p *CreateMessageParams, logger *slog.Logger) {
	if strings.HasSuffix(p.Model, "-thinking") {
		p.Model = strings.TrimSuffix(p.Model, "-thinking")
		if p.Thinking == nil {
			p.Thinking = NewThinking(4096)
		}
	}

	if p.Thinking != nil && ShouldDisableThinkingDueToHistory(p.Messages) {
		p.Thinking = nil
	}

	StripInvalidThinkingBlocks(p.Messages)

	if p.Thinking != nil && NeedsThinkingRecovery(p.Messages) && !HasValidSignatureForFunctionCalls(p.Messages) {
		logger.Warn("thinking enabled but no valid signature is available for recovery")
	}
}

// testProbeText is the canonical one-element probe message text that
// triggers the TestMessage shortcut.
const testProbeText = "Hi"

func isTestProbe(stream *bool, msgs []Message) bool {
	if stream != nil && *stream {
		return false
	}
	if len(msgs) != 1 {
		return false
	}
	m := msgs[0]
	if m.Role != RoleUser {
		return false
	}
	if m.Content.IsBlocks {
		return len(m.Content.Blocks) == 1 && m.Content.Blocks[0].Type == BlockText &&
			strings.TrimSpace(m.Content.Blocks[0].Text) == testProbeText
	}
	return strings.TrimSpace(m.Content.Text) == testProbeText
}

// normalizeCommon runs the shared preamble (steps 4-8) over an
// already-dialect-converted CreateMessageParams.
func (n *Normalizer) normalizeCommon(p CreateMessageParams, format ApiFormat, ingress Ingress) (CreateMessageParams, Context, error) {
	p.Messages = sanitizeMessages(p.Messages)
	applyImageProcessing(p.Messages)
	CleanCacheControlFromMessages(p.Messages)
	applyThinkingRules(&p, n.Logger)

	if isTestProbe(p.Stream, p.Messages) {
		return p, Context{ApiFormat: format, Ingress: ingress}, ErrTestMessage
	}

	ctx := Context{
		Stream:         p.Stream != nil && *p.Stream,
		ApiFormat:      format,
		Ingress:        ingress,
		EstimatedInput: estimateInputTokens(p),
	}
	return p, ctx, nil
}

// NormalizeWebRequest parses and conditions a Web-ingress request body.
func (n *Normalizer) NormalizeWebRequest(path string, body []byte) (CreateMessageParams, Context, error) {
	p, format, err := n.parseBody(path, body)
	if err != nil {
		return CreateMessageParams{}, Context{}, err
	}
	return n.normalizeCommon(p, format, IngressWeb)
}

// topPClearModels lists model-name substrings for which upstream rejects
// setting both temperature and top_p.
var topPClearModels = []string{"opus-4-1", "sonnet-4-5", "opus-4-5"}

func modelNeedsTopPClear(model string) bool {
	for _, substr := range topPClearModels {
		if strings.Contains(model, substr) {
			return true
		}
	}
	return false
}

func parseSystemBlocks(raw json.RawMessage) ([]systemTextBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []systemTextBlock{{Type: BlockText, Text: asString}}, nil
	}
	var blocks []systemTextBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("%w: system prompt is neither a string nor an array", ErrBadRequest)
	}
	return blocks, nil
}

func systemContainsClaudeCode(blocks []systemTextBlock) bool {
	for _, b := range blocks {
		if strings.Contains(b.Text, "Claude Code") {
			return true
		}
	}
	return false
}

// systemPromptHash computes a deterministic 64-bit hash over the subset of
// system blocks carrying cache_control, for the upstream cache-lookup
// collaborator to key on.
func systemPromptHash(blocks []systemTextBlock) uint64 {
	h := fnv.New64a()
	for _, b := range blocks {
		if b.CacheControl == nil {
			continue
		}
		_, _ = h.Write([]byte(b.Text))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// NormalizeCodeRequest parses and conditions a Code-ingress request body,
// applying the shared preamble plus the three Code-only additions.
func (n *Normalizer) NormalizeCodeRequest(path string, body []byte) (CreateMessageParams, Context, error) {
	p, format, err := n.parseBody(path, body)
	if err != nil {
		return CreateMessageParams{}, Context{}, err
	}

	if p.Temperature != nil && modelNeedsTopPClear(p.Model) {
		p.TopP = nil
	}

	blocks, err := parseSystemBlocks(p.System)
	if err != nil {
		return CreateMessageParams{}, Context{}, err
	}

	hash := systemPromptHash(blocks)

	if !systemContainsClaudeCode(blocks) {
		blocks = append([]systemTextBlock{{Type: BlockText, Text: n.Prelude}}, blocks...)
	}
	p.System, _ = json.Marshal(blocks)

	out, ctx, err := n.normalizeCommon(p, format, IngressCode)
	if err != nil {
		return out, ctx, err
	}
	ctx.SystemPromptHash = hash
	return out, ctx, nil
}

// estimateInputTokens is a token-count estimate used only for the Context's
// usage estimate, not for billing; a real count comes from the upstream
// response's usage block.
func estimateInputTokens(p CreateMessageParams) int {
	total := 0
	for _, m := range p.Messages {
		if m.Content.IsBlocks {
			for _, b := range m.Content.Blocks {
				total += tokencount.Estimate(b.Text)
			}
		} else {
			total += tokencount.Estimate(m.Content.Text)
		}
	}
	return total
}
