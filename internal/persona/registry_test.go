package persona

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/infoundr/infoundr/internal/domain"
)

// scriptedCompleter answers with a canned reply and records what it saw.
type scriptedCompleter struct {
	reply       string
	err         error
	lastSystem  string
	lastHistory []domain.Turn
	lastInput   string
}

func (c *scriptedCompleter) Complete(_ context.Context, systemPrompt string, history []domain.Turn, userText string) (string, error) {
	c.lastSystem = systemPrompt
	c.lastHistory = append([]domain.Turn(nil), history...)
	c.lastInput = userText
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRoster() []domain.Persona {
	return []domain.Persona{
		{Name: "Benny", Role: "Fintech Expert", Expertise: "payments", Personality: "direct", Context: "Built a payments startup."},
		{Name: "Dean", Role: "Engineering Expert", Expertise: "architecture", Personality: "calm"},
	}
}

func newTestRegistry(t *testing.T, c *scriptedCompleter, maxTurns int) *Registry {
	t.Helper()
	r, err := NewRegistry(testRoster(), c, maxTurns, discardLogger())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	data := `personas:
  - name: Benny
    role: Fintech Expert
    expertise: payments
    personality: direct
    context: Built a payments startup.
    example_prompts:
      - "ask Benny: What's a good burn rate?"
  - name: Dean
    role: Engineering Expert
    expertise: architecture
    personality: calm
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	roster, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if len(roster) != 2 || roster[0].Name != "Benny" || roster[1].Name != "Dean" {
		t.Errorf("roster = %+v, want declaration order preserved", roster)
	}
	if len(roster[0].ExamplePrompts) != 1 {
		t.Errorf("example prompts = %v", roster[0].ExamplePrompts)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	dup := []domain.Persona{{Name: "Benny"}, {Name: "Benny"}}
	if _, err := NewRegistry(dup, &scriptedCompleter{}, 10, discardLogger()); err == nil {
		t.Error("duplicate names accepted")
	}

	unnamed := []domain.Persona{{Role: "Expert"}}
	if _, err := NewRegistry(unnamed, &scriptedCompleter{}, 10, discardLogger()); err == nil {
		t.Error("unnamed persona accepted")
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := newTestRegistry(t, &scriptedCompleter{}, 10)

	if name, ok := r.Resolve("benny"); !ok || name != "Benny" {
		t.Errorf("Resolve(benny) = %q, %v", name, ok)
	}
	if _, ok := r.Resolve("nobody"); ok {
		t.Error("Resolve(nobody) succeeded")
	}

	if _, err := r.Get("benny"); !errors.Is(err, domain.ErrPersonaNotFound) {
		t.Error("Get must be case-sensitive; Resolve handles casing")
	}
}

func TestRespondReplaysHistoryPerPersona(t *testing.T) {
	c := &scriptedCompleter{reply: "answer one"}
	r := newTestRegistry(t, c, 10)
	ctx := context.Background()

	if _, err := r.Respond(ctx, "Benny", "first question"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(c.lastHistory) != 0 {
		t.Errorf("first call replayed %d turns, want 0", len(c.lastHistory))
	}
	if c.lastInput != "first question" {
		t.Errorf("input = %q", c.lastInput)
	}
	if !strings.Contains(c.lastSystem, "You are Benny, Fintech Expert") {
		t.Errorf("system prompt = %q", c.lastSystem)
	}

	c.reply = "answer two"
	if _, err := r.Respond(ctx, "Benny", "second question"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(c.lastHistory) != 2 {
		t.Fatalf("second call replayed %d turns, want 2", len(c.lastHistory))
	}
	if c.lastHistory[0].Speaker != domain.SpeakerUser || c.lastHistory[1].Speaker != domain.SpeakerAssistant {
		t.Errorf("history = %+v", c.lastHistory)
	}

	// Dean's session is independent of Benny's.
	if _, err := r.Respond(ctx, "Dean", "which stack?"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(c.lastHistory) != 0 {
		t.Errorf("Dean's first call replayed %d turns, want 0", len(c.lastHistory))
	}
}

func TestRespondFailureKeepsUserTurn(t *testing.T) {
	c := &scriptedCompleter{err: domain.ErrUpstream}
	r := newTestRegistry(t, c, 10)

	if _, err := r.Respond(context.Background(), "Benny", "hello?"); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v", err)
	}

	turns, err := r.History("Benny")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 1 || turns[0].Speaker != domain.SpeakerUser {
		t.Errorf("turns = %+v, want the user turn retained for retry context", turns)
	}
}

func TestSessionTrimDropsOldestPairs(t *testing.T) {
	c := &scriptedCompleter{reply: "ok"}
	r := newTestRegistry(t, c, 4)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := r.Respond(ctx, "Benny", fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("Respond: %v", err)
		}
	}

	turns, _ := r.History("Benny")
	if len(turns) != 4 {
		t.Fatalf("session holds %d turns, want cap of 4", len(turns))
	}
	if turns[0].Text != "question 3" {
		t.Errorf("oldest retained turn = %q, want question 3", turns[0].Text)
	}
	if turns[0].Speaker != domain.SpeakerUser {
		t.Error("trim broke the user/assistant alternation")
	}
}
