// Package transcript accumulates the utterances of one conversation in arrival order.
package transcript

import (
	"strings"
	"sync"
)

// Role identifies the speaker of an utterance
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance
type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Accumulator is an append-only, in-memory message log for a single conversation.
// Safe for use from the provider read loop and the controller concurrently.
type Accumulator struct {
	mu      sync.Mutex
	entries []Entry
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds an utterance at the end of the log
func (a *Accumulator) Append(role Role, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, Entry{Role: role, Text: text})
}

// Entries returns a copy of the log without clearing it
func (a *Accumulator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Drain returns the log in conversational order and clears it
func (a *Accumulator) Drain() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.entries
	a.entries = nil
	if out == nil {
		return []Entry{}
	}
	return out
}

// Reset clears the log. Called at the start of every session.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
}

// Len returns the number of entries
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Render serializes entries into the stored transcript text:
// "A: ..." for the assistant, "You: ..." for the user, separated by a blank line.
func Render(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		speaker := "You"
		if entry.Role == RoleAssistant {
			speaker = "A"
		}
		parts = append(parts, speaker+": "+entry.Text)
	}
	return strings.Join(parts, "\n\n")
}

// ParseRole maps the loose role names used by relaying clients onto a Role
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "you":
		return RoleUser, true
	case "assistant", "ai", "agent", "a":
		return RoleAssistant, true
	default:
		return "", false
	}
}
