// Package persona implements the expert persona registry and the per-persona
// conversation sessions.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/infoundr/infoundr/internal/completion"
	"github.com/infoundr/infoundr/internal/domain"
	"gopkg.in/yaml.v3"
)

// defaultMaxTurns caps a persona's in-memory history when no explicit cap is
// configured. Oldest turn pairs are dropped past the cap; the system prompt
// is rebuilt per call and never truncated.
const defaultMaxTurns = 200

// Registry is the fixed table of personas, each owning one running session.
// The table is populated once at construction and never mutated afterwards;
// only sessions grow.
type Registry struct {
	completer completion.Completer
	names     []string // declaration order
	personas  map[string]*domain.Persona
	sessions  map[string]*session
	maxTurns  int
	logger    *slog.Logger
}

// session is one persona's conversation history. Guarded by its own mutex so
// two threads addressing the same persona serialize their appends.
type session struct {
	mu    sync.Mutex
	turns []domain.Turn
}

type rosterFile struct {
	Personas []domain.Persona `yaml:"personas"`
}

// LoadRoster reads the persona roster from a YAML file, preserving
// declaration order.
func LoadRoster(path string) ([]domain.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona roster: %w", err)
	}

	var roster rosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse persona roster: %w", err)
	}
	if len(roster.Personas) == 0 {
		return nil, fmt.Errorf("persona roster %s contains no personas", path)
	}
	return roster.Personas, nil
}

// NewRegistry builds the registry from an ordered roster.
func NewRegistry(roster []domain.Persona, completer completion.Completer, maxTurns int, logger *slog.Logger) (*Registry, error) {
	if completer == nil {
		return nil, fmt.Errorf("persona: completer is required")
	}
	if maxTurns <= 1 {
		maxTurns = defaultMaxTurns
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		completer: completer,
		personas:  make(map[string]*domain.Persona, len(roster)),
		sessions:  make(map[string]*session, len(roster)),
		maxTurns:  maxTurns,
		logger:    logger,
	}
	for i := range roster {
		p := roster[i]
		if p.Name == "" {
			return nil, fmt.Errorf("persona at index %d has no name", i)
		}
		if _, dup := r.personas[p.Name]; dup {
			return nil, fmt.Errorf("duplicate persona name %q", p.Name)
		}
		r.names = append(r.names, p.Name)
		r.personas[p.Name] = &p
		r.sessions[p.Name] = &session{}
	}
	return r, nil
}

// Names returns persona names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Get returns the persona for an exact, case-sensitive name.
func (r *Registry) Get(name string) (*domain.Persona, error) {
	p, ok := r.personas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, name)
	}
	return p, nil
}

// Resolve matches a name case-insensitively and returns the canonical
// persona name, in declaration order. Used by the parser, which accepts
// any casing.
func (r *Registry) Resolve(name string) (string, bool) {
	for _, n := range r.names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// History returns a copy of a persona's session turns.
func (r *Registry) History(name string) ([]domain.Turn, error) {
	s, ok := r.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// Respond appends userText to the persona's session, replays the full
// history to the completion upstream, appends the reply, and returns it.
//
// On upstream failure the user turn is retained (so a retry carries context)
// and no assistant turn is appended.
func (r *Registry) Respond(ctx context.Context, name, userText string) (string, error) {
	p, ok := r.personas[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, name)
	}
	s := r.sessions[name]

	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot history before appending: the new user text goes to the
	// upstream as the fresh input, not as part of the replayed history.
	history := make([]domain.Turn, len(s.turns))
	copy(history, s.turns)

	s.turns = append(s.turns, domain.Turn{
		Speaker:   domain.SpeakerUser,
		Text:      userText,
		CreatedAt: time.Now(),
	})

	reply, err := r.completer.Complete(ctx, SystemPrompt(p), history, userText)
	if err != nil {
		r.logger.Warn("persona completion failed", "persona", name, "error", err)
		return "", err
	}

	s.turns = append(s.turns, domain.Turn{
		Speaker:   domain.SpeakerAssistant,
		Text:      reply,
		CreatedAt: time.Now(),
	})
	s.trim(r.maxTurns)

	return reply, nil
}

// trim drops the oldest turn pairs once the session exceeds the cap.
// Dropping two at a time keeps the user/assistant alternation intact.
// Caller holds s.mu.
func (s *session) trim(maxTurns int) {
	for len(s.turns) > maxTurns {
		drop := 2
		if drop > len(s.turns) {
			drop = len(s.turns)
		}
		s.turns = s.turns[drop:]
	}
}

// SystemPrompt builds a persona's fixed system instructions from its
// role, expertise, personality, and biographical context.
func SystemPrompt(p *domain.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s. Your expertise is in %s. Personality: %s",
		p.Name, p.Role, p.Expertise, p.Personality)

	if p.Context != "" {
		b.WriteString("\n\nExperience and Knowledge:\n")
		b.WriteString(p.Context)
	}

	fmt.Fprintf(&b, `

When responding:
1. Always speak in first person as if you are actually %s, not an AI assistant
2. Refer to specific personal experiences mentioned in your background
3. Use casual, conversational language rather than formal explanations
4. Include specific challenges you faced and how you overcame them
5. Avoid comprehensive, exhaustive lists that sound AI-generated
6. Occasionally mention specific mistakes you made and what you learned
7. Use a more opinionated tone based on your personality
8. Be concise - successful entrepreneurs respect others' time

Remember, you're not providing generic advice - you're sharing what worked specifically for YOU in YOUR journey.`, p.Name)

	return b.String()
}
