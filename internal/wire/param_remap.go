package wire

import "encoding/json"

// paramRename is one source-key -> destination-key rename for a tool.
type paramRename struct {
	from, to string
}

// toolParamTable is the per-tool key-rename table applied in the
// client->upstream direction.
var toolParamTable = map[string][]paramRename{
	"Grep":    {{"query", "pattern"}},
	"Glob":    {{"query", "pattern"}},
	"Read":    {{"path", "file_path"}},
	"Write":   {{"path", "file_path"}},
	"Edit":    {{"path", "file_path"}},
	"ListDir": {{"path", "directory"}},
	"LS":      {{"path", "directory"}},

	"web_search": {{"q", "query"}},
}

func applyRenames(args map[string]any, renames []paramRename) {
	for _, r := range renames {
		src, ok := args[r.from]
		if !ok {
			continue
		}
		if _, exists := args[r.to]; !exists {
			args[r.to] = src
		}
		delete(args, r.from)
	}
}

// RemapFunctionCallArgs renames argument keys for toolName per §4.3. If
// input is not a JSON object, or toolName is unknown, it is returned
// unchanged. Applying this twice is equivalent to applying it once, since
// the source key is removed on first application.
func RemapFunctionCallArgs(toolName string, input json.RawMessage) json.RawMessage {
	renames, ok := toolParamTable[toolName]
	if !ok || len(input) == 0 {
		return input
	}

	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return input
	}

	applyRenames(args, renames)

	out, err := json.Marshal(args)
	if err != nil {
		return input
	}
	return out
}

// RemapOaiToClaudeArgs is the reverse-direction remap applied while
// reconstructing tool_use blocks from OpenAI tool_calls. It applies the same
// table as RemapFunctionCallArgs, which already includes web_search's
// q->query rename.
func RemapOaiToClaudeArgs(toolName string, input json.RawMessage) json.RawMessage {
	return RemapFunctionCallArgs(toolName, input)
}

// RemapToolResultArgs is a no-op placeholder: tool_result content is never
// key-remapped.
func RemapToolResultArgs(content json.RawMessage) json.RawMessage {
	return content
}
