// Package domain contains core domain types for the Infoundr assistant.
package domain

import (
	"time"
)

// Persona describes one named expert advisor. Personas are loaded once at
// startup and are immutable; only their owned session history grows.
type Persona struct {
	Name           string   `yaml:"name" json:"name"`
	Role           string   `yaml:"role" json:"role"`
	Expertise      string   `yaml:"expertise" json:"expertise"`
	Personality    string   `yaml:"personality" json:"personality"`
	Context        string   `yaml:"context,omitempty" json:"-"`
	ExamplePrompts []string `yaml:"example_prompts,omitempty" json:"example_prompts,omitempty"`
}

// Speaker identifies who produced a session turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is a single entry in a persona's conversation session.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRecord is one persisted question/answer exchange, kept as an
// append-only audit log separate from the in-memory session replay.
type MessageRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Persona   string    `json:"persona"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
