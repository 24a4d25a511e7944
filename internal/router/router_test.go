package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/infoundr/infoundr/internal/command"
	"github.com/infoundr/infoundr/internal/domain"
)

type staticRoster []string

func (r staticRoster) Names() []string { return r }

// fakeDispatcher records executed requests and answers with a canned reply.
type fakeDispatcher struct {
	mu       sync.Mutex
	executed []command.Request
	inflight int
	overlap  bool
	delay    time.Duration
	reply    string
	fail     error
}

func (d *fakeDispatcher) Execute(_ context.Context, _ domain.InboundMessage, req command.Request, _ *domain.ThreadState) domain.Envelope {
	d.mu.Lock()
	d.executed = append(d.executed, req)
	d.inflight++
	if d.inflight > 1 {
		d.overlap = true
	}
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	d.inflight--
	d.mu.Unlock()

	if d.fail != nil {
		return domain.Envelope{ID: "x", Text: d.fail.Error(), Status: domain.StatusError}
	}
	return domain.Envelope{ID: "x", Text: d.reply, Status: domain.StatusOK}
}

func (d *fakeDispatcher) Failure(err error) domain.Envelope {
	return domain.Envelope{ID: "x", Text: err.Error(), Status: domain.StatusError}
}

func (d *fakeDispatcher) requests() []command.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]command.Request, len(d.executed))
	copy(out, d.executed)
	return out
}

// memThreadRepo is an in-memory Repository covering only the thread-state
// methods the router touches.
type memThreadRepo struct {
	memRepo
	mu      sync.Mutex
	threads map[string]*domain.ThreadState
}

func newMemThreadRepo() *memThreadRepo {
	return &memThreadRepo{threads: make(map[string]*domain.ThreadState)}
}

func (r *memThreadRepo) GetThreadState(_ context.Context, key string) (*domain.ThreadState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.threads[key]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *memThreadRepo) UpsertThreadState(_ context.Context, state *domain.ThreadState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *state
	r.threads[state.ThreadKey] = &cp
	return nil
}

// memRepo stubs the rest of the Repository interface.
type memRepo struct{}

func (memRepo) GetUser(context.Context, string) (*domain.User, error)      { return nil, nil }
func (memRepo) UpsertUser(context.Context, *domain.User) error             { return nil }
func (memRepo) UpdateLastSeen(context.Context, string, time.Time) error    { return nil }
func (memRepo) GetAsanaConnection(context.Context, string) (*domain.AsanaConnection, error) {
	return nil, nil
}
func (memRepo) UpsertAsanaConnection(context.Context, *domain.AsanaConnection) error { return nil }
func (memRepo) UpdateAsanaActiveProject(context.Context, string, string) error       { return nil }
func (memRepo) GetGitHubConnection(context.Context, string) (*domain.GitHubConnection, error) {
	return nil, nil
}
func (memRepo) UpsertGitHubConnection(context.Context, *domain.GitHubConnection) error { return nil }
func (memRepo) UpdateGitHubSelectedRepo(context.Context, string, string) error         { return nil }
func (memRepo) AppendMessage(context.Context, *domain.MessageRecord) error             { return nil }
func (memRepo) RecentMessages(context.Context, string, int) ([]*domain.MessageRecord, error) {
	return nil, nil
}
func (memRepo) Ping(context.Context) error { return nil }
func (memRepo) Close() error               { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(d Dispatcher, repo *memThreadRepo) *Router {
	parser := command.NewParser(staticRoster{"Benny", "Dean"})
	return New(parser, d, repo, time.Second, discardLogger())
}

func msg(text string) domain.InboundMessage {
	return domain.InboundMessage{
		UserID:    "U1",
		ChannelID: "C1",
		ThreadTS:  "171.001",
		Text:      text,
		Source:    "api",
	}
}

func TestRouteContinuationFollowsActivePersona(t *testing.T) {
	d := &fakeDispatcher{reply: "answer"}
	repo := newMemThreadRepo()
	r := newTestRouter(d, repo)
	ctx := context.Background()

	env := r.Route(ctx, msg("ask Benny: what's a good burn rate?"))
	if !env.OK() {
		t.Fatalf("first route failed: %s", env.Text)
	}

	env = r.Route(ctx, msg("and for a seed-stage team?"))
	if !env.OK() {
		t.Fatalf("continuation failed: %s", env.Text)
	}

	reqs := d.requests()
	if len(reqs) != 2 {
		t.Fatalf("executed %d requests, want 2", len(reqs))
	}
	if reqs[1].Kind != command.KindContinuation || reqs[1].Persona != "Benny" {
		t.Errorf("second request = %+v, want continuation to Benny", reqs[1])
	}

	st, _ := repo.GetThreadState(ctx, domain.ThreadKey("C1", "171.001"))
	if st == nil || st.ActivePersona != "Benny" {
		t.Fatalf("thread state = %+v, want active persona Benny", st)
	}
	if len(st.Recent) != 2 {
		t.Errorf("recorded %d exchanges, want 2", len(st.Recent))
	}
}

func TestRoutePersonaSwitchAndEnd(t *testing.T) {
	d := &fakeDispatcher{reply: "ok"}
	repo := newMemThreadRepo()
	r := newTestRouter(d, repo)
	ctx := context.Background()
	key := domain.ThreadKey("C1", "171.001")

	r.Route(ctx, msg("ask Benny: runway?"))
	r.Route(ctx, msg("@Dean which database?"))

	st, _ := repo.GetThreadState(ctx, key)
	if st.ActivePersona != "Dean" {
		t.Fatalf("active persona = %q, want Dean after switch", st.ActivePersona)
	}

	r.Route(ctx, msg("end chat"))
	st, _ = repo.GetThreadState(ctx, key)
	if st.ActivePersona != "" {
		t.Errorf("active persona = %q after end, want idle", st.ActivePersona)
	}
}

func TestRouteFailedPersonaCallStillSwitches(t *testing.T) {
	d := &fakeDispatcher{fail: errors.New("upstream down")}
	repo := newMemThreadRepo()
	r := newTestRouter(d, repo)
	ctx := context.Background()

	env := r.Route(ctx, msg("ask Benny: hello?"))
	if env.OK() {
		t.Fatal("expected error envelope")
	}

	st, _ := repo.GetThreadState(ctx, domain.ThreadKey("C1", "171.001"))
	if st.ActivePersona != "Benny" {
		t.Errorf("active persona = %q, want Benny so the user can retry", st.ActivePersona)
	}
	if len(st.Recent) != 0 {
		t.Errorf("recorded %d exchanges for a failed call, want 0", len(st.Recent))
	}
}

func TestRouteSerializesSameThread(t *testing.T) {
	d := &fakeDispatcher{reply: "ok", delay: 50 * time.Millisecond}
	repo := newMemThreadRepo()
	r := newTestRouter(d, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Route(ctx, msg("ask Benny: concurrent?"))
		}()
	}
	wg.Wait()

	if d.overlap {
		t.Error("two messages on the same thread were dispatched concurrently")
	}
	if got := len(d.requests()); got != 4 {
		t.Errorf("executed %d requests, want 4", got)
	}
}

func TestRouteLockTimeoutFailsClosed(t *testing.T) {
	d := &fakeDispatcher{reply: "ok", delay: 300 * time.Millisecond}
	repo := newMemThreadRepo()
	parser := command.NewParser(staticRoster{"Benny"})
	r := New(parser, d, repo, 20*time.Millisecond, discardLogger())
	ctx := context.Background()

	started := make(chan struct{})
	go func() {
		close(started)
		r.Route(ctx, msg("ask Benny: slow one"))
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	env := r.Route(ctx, msg("ask Benny: second"))
	if !env.Dropped() {
		t.Fatalf("envelope = %+v, want the dropped sentinel while the thread is locked", env)
	}
	if env.Text != "" {
		t.Errorf("text = %q, a timed-out request must not produce a reply", env.Text)
	}

	// Only the first message reaches the dispatcher.
	if got := len(d.requests()); got != 1 {
		t.Errorf("executed %d requests, want 1", got)
	}
}
