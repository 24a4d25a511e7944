package credential

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/infoundr/infoundr/internal/connector/asana"
	"github.com/infoundr/infoundr/internal/connector/githubc"
	"github.com/infoundr/infoundr/internal/domain"
)

type fakeAsana struct {
	workspaces []asana.Workspace
	projects   []asana.Project
	err        error
}

func (f *fakeAsana) ListWorkspaces(context.Context, string) ([]asana.Workspace, error) {
	return f.workspaces, f.err
}

func (f *fakeAsana) ListProjects(context.Context, string, string) ([]asana.Project, error) {
	return f.projects, f.err
}

type fakeGitHub struct {
	login string
	repo  *githubc.Repository
	err   error
}

func (f *fakeGitHub) TestConnection(context.Context, string) (string, error) {
	return f.login, f.err
}

func (f *fakeGitHub) CheckRepository(context.Context, string, string, string) (*githubc.Repository, error) {
	return f.repo, f.err
}

// connRepo is an in-memory Repository covering the credential methods.
type connRepo struct {
	mu     sync.Mutex
	asana  map[string]*domain.AsanaConnection
	github map[string]*domain.GitHubConnection
}

func newConnRepo() *connRepo {
	return &connRepo{
		asana:  make(map[string]*domain.AsanaConnection),
		github: make(map[string]*domain.GitHubConnection),
	}
}

func (r *connRepo) GetAsanaConnection(_ context.Context, userID string) (*domain.AsanaConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asana[userID], nil
}

func (r *connRepo) UpsertAsanaConnection(_ context.Context, conn *domain.AsanaConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asana[conn.UserID] = conn
	return nil
}

func (r *connRepo) UpdateAsanaActiveProject(_ context.Context, userID, projectName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.asana[userID]; c != nil {
		c.ActiveProject = projectName
	}
	return nil
}

func (r *connRepo) GetGitHubConnection(_ context.Context, userID string) (*domain.GitHubConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.github[userID], nil
}

func (r *connRepo) UpsertGitHubConnection(_ context.Context, conn *domain.GitHubConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.github[conn.UserID] = conn
	return nil
}

func (r *connRepo) UpdateGitHubSelectedRepo(_ context.Context, userID, repo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.github[userID]; c != nil {
		c.SelectedRepo = repo
	}
	return nil
}

// Unused Repository methods.
func (r *connRepo) GetUser(context.Context, string) (*domain.User, error)   { return nil, nil }
func (r *connRepo) UpsertUser(context.Context, *domain.User) error          { return nil }
func (r *connRepo) UpdateLastSeen(context.Context, string, time.Time) error { return nil }
func (r *connRepo) GetThreadState(context.Context, string) (*domain.ThreadState, error) {
	return nil, nil
}
func (r *connRepo) UpsertThreadState(context.Context, *domain.ThreadState) error { return nil }
func (r *connRepo) AppendMessage(context.Context, *domain.MessageRecord) error   { return nil }
func (r *connRepo) RecentMessages(context.Context, string, int) ([]*domain.MessageRecord, error) {
	return nil, nil
}
func (r *connRepo) Ping(context.Context) error { return nil }
func (r *connRepo) Close() error               { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnectAsanaAdoptsFirstWorkspaceAndProject(t *testing.T) {
	repo := newConnRepo()
	svc := NewService(repo, &fakeAsana{
		workspaces: []asana.Workspace{{GID: "W1", Name: "Infoundr HQ"}, {GID: "W2", Name: "Side"}},
		projects:   []asana.Project{{GID: "P1", Name: "Launch"}, {GID: "P2", Name: "Ops"}},
	}, &fakeGitHub{}, discardLogger())

	conn, err := svc.ConnectAsana(context.Background(), "U1", "tok")
	if err != nil {
		t.Fatalf("ConnectAsana: %v", err)
	}
	if conn.WorkspaceGID != "W1" || conn.WorkspaceName != "Infoundr HQ" {
		t.Errorf("workspace = %s/%s, want first workspace", conn.WorkspaceGID, conn.WorkspaceName)
	}
	if conn.ActiveProject != "Launch" {
		t.Errorf("active project = %q, want Launch", conn.ActiveProject)
	}
	if len(conn.ProjectGIDs) != 2 || conn.ProjectGIDs["Ops"] != "P2" {
		t.Errorf("project gids = %v", conn.ProjectGIDs)
	}

	stored, _ := repo.GetAsanaConnection(context.Background(), "U1")
	if stored == nil || stored.Token != "tok" {
		t.Fatal("connection was not persisted")
	}
}

func TestConnectAsanaFailureWritesNothing(t *testing.T) {
	repo := newConnRepo()
	svc := NewService(repo, &fakeAsana{
		err: &domain.ServiceError{Service: domain.ServiceAsana, Status: 401, Message: "Not Authorized"},
	}, &fakeGitHub{}, discardLogger())

	_, err := svc.ConnectAsana(context.Background(), "U1", "bad")
	if !errors.Is(err, domain.ErrConnectionFailed) {
		t.Fatalf("err = %v, want ErrConnectionFailed", err)
	}
	if stored, _ := repo.GetAsanaConnection(context.Background(), "U1"); stored != nil {
		t.Error("failed connect must not persist a record")
	}
}

func TestConnectAsanaEmptyWorkspaceWritesNothing(t *testing.T) {
	repo := newConnRepo()
	svc := NewService(repo, &fakeAsana{
		workspaces: []asana.Workspace{{GID: "W1", Name: "Empty Co"}},
	}, &fakeGitHub{}, discardLogger())

	_, err := svc.ConnectAsana(context.Background(), "U1", "tok")
	if !errors.Is(err, domain.ErrConnectionFailed) {
		t.Fatalf("err = %v, want ErrConnectionFailed for workspace with no projects", err)
	}
	if stored, _ := repo.GetAsanaConnection(context.Background(), "U1"); stored != nil {
		t.Error("connect against an empty workspace must not persist a record")
	}
}

func TestConnectGitHubStoresTokenWithoutRepo(t *testing.T) {
	repo := newConnRepo()
	svc := NewService(repo, &fakeAsana{}, &fakeGitHub{login: "founder-dev"}, discardLogger())

	login, err := svc.ConnectGitHub(context.Background(), "U1", "ghp_x")
	if err != nil {
		t.Fatalf("ConnectGitHub: %v", err)
	}
	if login != "founder-dev" {
		t.Errorf("login = %q", login)
	}

	stored, _ := repo.GetGitHubConnection(context.Background(), "U1")
	if stored == nil || stored.Token != "ghp_x" {
		t.Fatal("connection was not persisted")
	}
	if stored.SelectedRepo != "" {
		t.Errorf("selected repo = %q, want none until the user picks", stored.SelectedRepo)
	}
}

func TestSelectAsanaProject(t *testing.T) {
	repo := newConnRepo()
	repo.asana["U1"] = &domain.AsanaConnection{
		UserID:      "U1",
		Token:       "tok",
		ProjectGIDs: map[string]string{"Launch": "P1", "Ops": "P2"},
	}
	svc := NewService(repo, &fakeAsana{}, &fakeGitHub{}, discardLogger())

	name, err := svc.SelectAsanaProject(context.Background(), "U1", "ops")
	if err != nil {
		t.Fatalf("SelectAsanaProject: %v", err)
	}
	if name != "Ops" {
		t.Errorf("selected = %q, want case-insensitive match Ops", name)
	}

	if _, err := svc.SelectAsanaProject(context.Background(), "U1", "Nope"); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("err = %v, want ErrResourceNotFound", err)
	}

	if _, err := svc.SelectAsanaProject(context.Background(), "U2", "Launch"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected for unknown user", err)
	}
}

func TestSelectGitHubRepo(t *testing.T) {
	repo := newConnRepo()
	repo.github["U1"] = &domain.GitHubConnection{UserID: "U1", Token: "ghp_x"}
	svc := NewService(repo, &fakeAsana{}, &fakeGitHub{
		repo: &githubc.Repository{FullName: "octocat/hello-world"},
	}, discardLogger())

	r, err := svc.SelectGitHubRepo(context.Background(), "U1", "octocat/hello-world")
	if err != nil {
		t.Fatalf("SelectGitHubRepo: %v", err)
	}
	if r.FullName != "octocat/hello-world" {
		t.Errorf("repo = %+v", r)
	}

	stored, _ := repo.GetGitHubConnection(context.Background(), "U1")
	if stored.SelectedRepo != "octocat/hello-world" {
		t.Errorf("selected repo = %q", stored.SelectedRepo)
	}

	var malformed *domain.MalformedArgumentsError
	if _, err := svc.SelectGitHubRepo(context.Background(), "U1", "not-a-repo"); !errors.As(err, &malformed) {
		t.Errorf("err = %v, want MalformedArgumentsError", err)
	}
}
