package models

import "fmt"

// Role is the closed set of speakers a message can belong to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single chat message. Messages are immutable once stored;
// edits produce new messages via branching, never in-place mutation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Optional reasoning text emitted alongside the content by some models
	Reasoning string `json:"reasoning,omitempty"`
}

// Validate checks the message for a known role. Content may be empty: an
// upstream stream that yields zero tokens still commits an empty assistant
// message.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role: %q", m.Role)
	}
	return nil
}
