package aicore

import (
	"encoding/json"
	"strings"
)

// toolCallEnvelope is the JSON shape models use to request tool calls when
// the transport has no native tool-call channel.
type toolCallEnvelope struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ParseToolCalls extracts tool-call directives embedded in model output. The
// directives may be the entire payload or inside a ```json fenced block. A
// malformed or absent directive is not an error: the caller treats the text
// as a plain answer, so this returns (nil, false) instead of failing.
func ParseToolCalls(text string) ([]ToolCall, bool) {
	candidate := strings.TrimSpace(text)
	if fenced, ok := extractFencedJSON(candidate); ok {
		candidate = fenced
	}
	if !strings.HasPrefix(candidate, "{") {
		return nil, false
	}

	var envelope toolCallEnvelope
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		return nil, false
	}
	if len(envelope.ToolCalls) == 0 {
		return nil, false
	}
	for _, call := range envelope.ToolCalls {
		if call.Name == "" {
			return nil, false
		}
	}
	return envelope.ToolCalls, true
}

// extractFencedJSON pulls the body out of a ```json ... ``` or ``` ... ```
// fence if the text contains exactly one.
func extractFencedJSON(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if strings.HasPrefix(rest, "json") {
		rest = rest[4:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
