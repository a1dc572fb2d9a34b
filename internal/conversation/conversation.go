// Package conversation normalizes caller-supplied chat history into
// canonical turns and renders the transcript consumed by prompt assembly.
//
// The core enforces no length limit. Gemini 2.5 Flash accepts roughly one
// million input tokens, so in practice the ceiling is cost and latency;
// callers bound history with Tail.
package conversation

import (
	"fmt"
	"strings"
)

// Role is the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NormalizeRole maps anything other than "user" to assistant.
func NormalizeRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleUser)) {
		return RoleUser
	}
	return RoleAssistant
}

// Normalize converts loosely shaped history (decoded JSON objects) into
// turns. Missing content becomes the empty string; non-string content is
// rendered with fmt.
func Normalize(raw []map[string]any) []Turn {
	turns := make([]Turn, 0, len(raw))
	for _, m := range raw {
		role, _ := m["role"].(string)
		turns = append(turns, Turn{
			Role:    NormalizeRole(role),
			Content: stringify(m["content"]),
		})
	}
	return turns
}

// FromTurns re-normalizes already typed turns, coercing unknown roles.
func FromTurns(in []Turn) []Turn {
	turns := make([]Turn, len(in))
	for i, t := range in {
		turns[i] = Turn{Role: NormalizeRole(string(t.Role)), Content: t.Content}
	}
	return turns
}

// Tail returns the last n turns. n <= 0 means no limit.
func Tail(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// Transcript renders turns as "User: ..." / "Assistant: ..." lines in order.
func Transcript(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role.Label())
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Label is the transcript prefix for the role.
func (r Role) Label() string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}

func stringify(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
