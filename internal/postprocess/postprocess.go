// Package postprocess turns raw chat-completion content into code.
//
// Models are asked to answer with a JSON object carrying the generated code
// in a named field. Content that does not follow that shape is returned as
// trimmed text, so a malformed answer degrades to "whatever the model said"
// instead of an error.
package postprocess

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/valpere/pas2cs/internal/markdown"
)

// ExtractField returns the string value of field from a JSON object held in
// raw. A JSON null field yields "".
//
// Lookup order: the untouched content, the content with complete reasoning
// blocks removed, then each fenced block. When no object carries the field,
// a reply that is exactly one fenced block is unwrapped; anything else is
// returned as the trimmed raw text, unmodified.
func ExtractField(raw, field string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if v, ok := lookupField(trimmed, field); ok {
		return v
	}
	if stripped := removeReasoningBlocks(trimmed); stripped != trimmed {
		if v, ok := lookupField(stripped, field); ok {
			return v
		}
	}

	blocks := markdown.FencedBlocks(trimmed)
	for _, block := range blocks {
		if v, ok := lookupField(block.Body, field); ok {
			return v
		}
	}

	if len(blocks) == 1 && isSingleFence(trimmed) {
		return strings.TrimSpace(blocks[0].Body)
	}
	return trimmed
}

func isSingleFence(text string) bool {
	return (strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```")) ||
		(strings.HasPrefix(text, "~~~") && strings.HasSuffix(text, "~~~"))
}

func lookupField(text, field string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return "", false
	}
	rawVal, ok := obj[field]
	if !ok {
		return "", false
	}
	if string(rawVal) == "null" {
		return "", true
	}
	var s string
	if err := json.Unmarshal(rawVal, &s); err != nil {
		return "", false
	}
	return s, true
}

// reasoningBlockRe matches complete <think>…</think> style blocks only.
// RE2 has no backreferences, so each tag pair is spelled out.
var reasoningBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// removeReasoningBlocks drops complete reasoning blocks. An unclosed tag is
// left alone; it may be a literal inside code.
func removeReasoningBlocks(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	return strings.TrimSpace(reasoningBlockRe.ReplaceAllString(text, ""))
}
