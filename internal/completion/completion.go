// Package completion provides the chat-completion upstream client.
package completion

import (
	"context"

	"github.com/infoundr/infoundr/internal/domain"
)

// Completer is the chat-completion collaborator. Given a persona's system
// prompt and its full ordered history plus the new user text, it returns the
// assistant reply.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []domain.Turn, userText string) (string, error)
}
