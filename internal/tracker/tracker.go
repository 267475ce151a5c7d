// Package tracker remembers whether the current input has already been
// converted, so a repeated request can be presented as a refresh.
package tracker

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"
)

// Action is what a conversion request for a given source amounts to.
type Action string

const (
	ActionNone    Action = ""
	ActionConvert Action = "convert"
	ActionRefresh Action = "refresh"
)

// Hash returns the base64 SHA-256 digest of the exact source text.
func Hash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	lastHash string
}

// Action reports ActionNone for blank input, ActionRefresh when source is
// byte-identical to the last converted input, and ActionConvert otherwise.
func (t *Tracker) Action(source string) Action {
	if strings.TrimSpace(source) == "" {
		return ActionNone
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastHash != "" && t.lastHash == Hash(source) {
		return ActionRefresh
	}
	return ActionConvert
}

// NeedsConversion is true when source is non-blank and differs from the last
// converted input.
func (t *Tracker) NeedsConversion(source string) bool {
	return t.Action(source) == ActionConvert
}

// MarkConverted records source as the last converted input.
func (t *Tracker) MarkConverted(source string) {
	h := Hash(source)
	t.mu.Lock()
	t.lastHash = h
	t.mu.Unlock()
}

// Reset forgets the last converted input, e.g. after a new file is loaded.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.lastHash = ""
	t.mu.Unlock()
}
