package wire

// ConversationState summarizes the tail of a conversation for the purpose
// of deciding whether extended thinking may safely stay enabled.
type ConversationState struct {
	InTurnLoop          bool
	InterruptedTool     bool
	TurnHasThinking     bool
	ToolResultCount     int
	LastAssistantHasTools bool
}

func messageHasToolUse(m Message) bool {
	if !m.Content.IsBlocks {
		return false
	}
	for _, b := range m.Content.Blocks {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

func messageHasToolResult(m Message) bool {
	if !m.Content.IsBlocks {
		return false
	}
	for _, b := range m.Content.Blocks {
		if b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

func countToolResults(m Message) int {
	n := 0
	if !m.Content.IsBlocks {
		return 0
	}
	for _, b := range m.Content.Blocks {
		if b.Type == BlockToolResult {
			n++
		}
	}
	return n
}

func messageHasValidThinking(m Message) bool {
	if !m.Content.IsBlocks {
		return false
	}
	for _, b := range m.Content.Blocks {
		if b.HasValidSignature() {
			return true
		}
	}
	return false
}

func lastAssistantIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// AnalyzeConversationState computes ConversationState over a message list.
func AnalyzeConversationState(msgs []Message) ConversationState {
	idx := lastAssistantIndex(msgs)
	if idx < 0 {
		return ConversationState{}
	}

	last := msgs[idx]
	lastHasTools := messageHasToolUse(last)
	hasThinking := messageHasValidThinking(last)

	toolResultCount := 0
	for i := idx + 1; i < len(msgs); i++ {
		if msgs[i].Role == RoleUser {
			toolResultCount += countToolResults(msgs[i])
		}
	}

	inToolLoop := lastHasTools && toolResultCount > 0
	interrupted := lastHasTools && toolResultCount == 0

	return ConversationState{
		InTurnLoop:            inToolLoop,
		InterruptedTool:       interrupted,
		TurnHasThinking:       hasThinking,
		ToolResultCount:       toolResultCount,
		LastAssistantHasTools: lastHasTools,
	}
}

// ShouldDisableThinkingDueToHistory reports true iff the most recent
// assistant message has tool_use but no valid thinking block — turning on
// thinking over such history is rejected upstream.
func ShouldDisableThinkingDueToHistory(msgs []Message) bool {
	idx := lastAssistantIndex(msgs)
	if idx < 0 {
		return false
	}
	last := msgs[idx]
	return messageHasToolUse(last) && !messageHasValidThinking(last)
}

// NeedsThinkingRecovery reports true iff the conversation is mid-tool-loop
// (or was interrupted mid-tool-use) and the current turn lacks thinking.
func NeedsThinkingRecovery(msgs []Message) bool {
	state := AnalyzeConversationState(msgs)
	return (state.InTurnLoop || state.InterruptedTool) && !state.TurnHasThinking
}

// HasValidSignatureForFunctionCalls reports true iff the global signature
// slot holds a valid value, or some assistant message in msgs carries a
// valid thinking signature.
func HasValidSignatureForFunctionCalls(msgs []Message) bool {
	if HasValidSignature() {
		return true
	}
	for _, m := range msgs {
		if m.Role == RoleAssistant && messageHasValidThinking(m) {
			return true
		}
	}
	return false
}

// StripInvalidThinkingBlocks removes, from every assistant message, any
// thinking block whose signature is absent or shorter than
// MinSignatureLength, leaving all other blocks untouched.
func StripInvalidThinkingBlocks(msgs []Message) {
	for i := range msgs {
		m := &msgs[i]
		if m.Role != RoleAssistant || !m.Content.IsBlocks {
			continue
		}
		kept := m.Content.Blocks[:0:0]
		for _, b := range m.Content.Blocks {
			if b.Type == BlockThinking && !b.HasValidSignature() {
				continue
			}
			kept = append(kept, b)
		}
		m.Content.Blocks = kept
	}
}

// SignatureHit is one valid thinking signature found in a conversation,
// with the index of the message it was found in.
type SignatureHit struct {
	Signature string
	Index     int
}

// ExtractSignatures returns every valid thinking signature among assistant
// messages, in encounter order.
func ExtractSignatures(msgs []Message) []SignatureHit {
	var hits []SignatureHit
	for i, m := range msgs {
		if m.Role != RoleAssistant || !m.Content.IsBlocks {
			continue
		}
		for _, b := range m.Content.Blocks {
			if b.HasValidSignature() {
				hits = append(hits, SignatureHit{Signature: b.Signature, Index: i})
			}
		}
	}
	return hits
}
