// Package dispatch executes parsed requests and converts every outcome
// into a user-facing envelope. Nothing below the dispatcher leaks raw
// errors to a transport, and no handler retries on its own.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/infoundr/infoundr/internal/command"
	"github.com/infoundr/infoundr/internal/connector/asana"
	"github.com/infoundr/infoundr/internal/connector/githubc"
	"github.com/infoundr/infoundr/internal/credential"
	"github.com/infoundr/infoundr/internal/domain"
	"github.com/infoundr/infoundr/internal/store"
)

// PersonaRegistry is the persona surface the dispatcher drives.
type PersonaRegistry interface {
	Names() []string
	Get(name string) (*domain.Persona, error)
	Respond(ctx context.Context, name, userText string) (string, error)
}

// Credentials manages per-user service connections.
type Credentials interface {
	ConnectAsana(ctx context.Context, userID, token string) (*domain.AsanaConnection, error)
	ConnectGitHub(ctx context.Context, userID, token string) (string, error)
	Asana(ctx context.Context, userID string) (*domain.AsanaConnection, error)
	GitHub(ctx context.Context, userID string) (*domain.GitHubConnection, error)
	SelectAsanaProject(ctx context.Context, userID, projectName string) (string, error)
	SelectGitHubRepo(ctx context.Context, userID, fullName string) (*githubc.Repository, error)
}

// AsanaTasks is the task surface of the Asana client.
type AsanaTasks interface {
	CreateTask(ctx context.Context, token, projectGID, name, notes string) (*asana.Task, error)
	ListTasks(ctx context.Context, token, projectGID string) ([]asana.Task, error)
}

// GitHubRepos is the repository surface of the GitHub client.
type GitHubRepos interface {
	ListRepositories(ctx context.Context, token string) ([]githubc.Repository, error)
	CheckRepository(ctx context.Context, token, owner, repo string) (*githubc.Repository, error)
	ListIssues(ctx context.Context, token, owner, repo, state string) ([]githubc.Issue, error)
	CreateIssue(ctx context.Context, token, owner, repo, title, body string) (*githubc.Issue, error)
	ListPullRequests(ctx context.Context, token, owner, repo, state string) ([]githubc.PullRequest, error)
}

// Dispatcher routes parsed requests to personas, the credential service,
// and the project-management connectors.
type Dispatcher struct {
	registry PersonaRegistry
	creds    Credentials
	asana    AsanaTasks
	github   GitHubRepos
	repo     store.Repository
	logger   *slog.Logger
}

// New creates a dispatcher.
func New(registry PersonaRegistry, creds Credentials, asanaTasks AsanaTasks, githubRepos GitHubRepos, repo store.Repository, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		creds:    creds,
		asana:    asanaTasks,
		github:   githubRepos,
		repo:     repo,
		logger:   logger,
	}
}

// Execute handles one parsed request. The returned envelope always carries
// user-presentable text, success or not.
func (d *Dispatcher) Execute(ctx context.Context, msg domain.InboundMessage, req command.Request, _ *domain.ThreadState) domain.Envelope {
	d.touchUser(ctx, msg)

	switch req.Kind {
	case command.KindPersona, command.KindContinuation:
		return d.handlePersona(ctx, msg, req)
	case command.KindService:
		return d.handleService(ctx, msg, req)
	case command.KindEnd:
		return d.ok("router", "Conversation ended. Address any expert to start a new one.", nil)
	case command.KindHelp:
		return d.ok("help", d.helpText(), nil)
	}
	return d.Failure(domain.ErrUnknownCommand)
}

// Failure converts an error into an error envelope using the shared
// taxonomy. Used for failures that happen before a handler runs.
func (d *Dispatcher) Failure(err error) domain.Envelope {
	return d.fail("router", d.userMessage(err))
}

func (d *Dispatcher) handlePersona(ctx context.Context, msg domain.InboundMessage, req command.Request) domain.Envelope {
	reply, err := d.registry.Respond(ctx, req.Persona, req.Text)
	if err != nil {
		d.logger.Error("persona reply failed",
			"persona", req.Persona, "user_id", msg.UserID, "error", err)
		return d.fail(req.Persona, d.userMessage(err))
	}

	if err := d.repo.AppendMessage(ctx, &domain.MessageRecord{
		UserID:    msg.UserID,
		Persona:   req.Persona,
		Question:  req.Text,
		Answer:    reply,
		CreatedAt: time.Now(),
	}); err != nil {
		// The reply already exists; only the audit log is degraded.
		d.logger.Error("appending message history", "user_id", msg.UserID, "error", err)
	}

	return d.ok(req.Persona, reply, map[string]string{"persona": req.Persona})
}

func (d *Dispatcher) handleService(ctx context.Context, msg domain.InboundMessage, req command.Request) domain.Envelope {
	var env domain.Envelope
	if req.Service == domain.ServiceAsana {
		env = d.handleAsana(ctx, msg, req)
	} else {
		env = d.handleGitHub(ctx, msg, req)
	}
	return env
}

func (d *Dispatcher) handleAsana(ctx context.Context, msg domain.InboundMessage, req command.Request) domain.Envelope {
	const src = domain.ServiceAsana

	switch req.Action {
	case "connect":
		conn, err := d.creds.ConnectAsana(ctx, msg.UserID, req.Args.Token)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, formatAsanaConnected(conn), nil)

	case "list":
		conn, err := d.creds.Asana(ctx, msg.UserID)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		name, gid, ok := conn.ActiveProjectGID()
		if !ok {
			return d.fail(src, "Your workspace has no projects yet. Create one in Asana first.")
		}
		tasks, err := d.asana.ListTasks(ctx, conn.Token, gid)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, formatTasks(name, tasks), nil)

	case "create":
		conn, err := d.creds.Asana(ctx, msg.UserID)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		_, gid, ok := conn.ActiveProjectGID()
		if !ok {
			return d.fail(src, "Your workspace has no projects yet. Create one in Asana first.")
		}
		task, err := d.asana.CreateTask(ctx, conn.Token, gid, req.Args.Title, req.Args.Body)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, formatTaskCreated(task), nil)

	case "select":
		name, err := d.creds.SelectAsanaProject(ctx, msg.UserID, req.Args.Resource)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, fmt.Sprintf("Now working in project *%s*.", name), nil)
	}

	return d.fail(src, d.userMessage(domain.ErrUnknownCommand))
}

func (d *Dispatcher) handleGitHub(ctx context.Context, msg domain.InboundMessage, req command.Request) domain.Envelope {
	const src = domain.ServiceGitHub

	switch req.Action {
	case "connect":
		login, err := d.creds.ConnectGitHub(ctx, msg.UserID, req.Args.Token)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, fmt.Sprintf(
			"GitHub connected as *%s*. Pick a working repository with: github select owner/repo", login), nil)

	case "list":
		conn, err := d.creds.GitHub(ctx, msg.UserID)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		repos, err := d.github.ListRepositories(ctx, conn.Token)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, formatRepositories(repos), nil)

	case "select":
		r, err := d.creds.SelectGitHubRepo(ctx, msg.UserID, req.Args.Resource)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, fmt.Sprintf("Now working in *%s*.", r.FullName), nil)

	case "check_repo":
		conn, env, ok := d.githubRepoContext(ctx, msg.UserID)
		if !ok {
			return env
		}
		owner, repo, err := githubc.ParseFullName(conn.SelectedRepo)
		if err != nil {
			return d.fail(src, d.userMessage(err))
		}
		r, err := d.github.CheckRepository(ctx, conn.Token, owner, repo)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, formatRepository(r), nil)

	case "create":
		conn, env, ok := d.githubRepoContext(ctx, msg.UserID)
		if !ok {
			return env
		}
		owner, repo, err := githubc.ParseFullName(conn.SelectedRepo)
		if err != nil {
			return d.fail(src, d.userMessage(err))
		}
		issue, err := d.github.CreateIssue(ctx, conn.Token, owner, repo, req.Args.Title, req.Args.Body)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, fmt.Sprintf("Created issue *#%d %s*\n%s", issue.Number, issue.Title, issue.URL), nil)

	case "list_issues":
		conn, env, ok := d.githubRepoContext(ctx, msg.UserID)
		if !ok {
			return env
		}
		owner, repo, err := githubc.ParseFullName(conn.SelectedRepo)
		if err != nil {
			return d.fail(src, d.userMessage(err))
		}
		issues, err := d.github.ListIssues(ctx, conn.Token, owner, repo, req.Args.State)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, formatIssues(conn.SelectedRepo, req.Args.State, issues), nil)

	case "list_prs":
		conn, env, ok := d.githubRepoContext(ctx, msg.UserID)
		if !ok {
			return env
		}
		owner, repo, err := githubc.ParseFullName(conn.SelectedRepo)
		if err != nil {
			return d.fail(src, d.userMessage(err))
		}
		prs, err := d.github.ListPullRequests(ctx, conn.Token, owner, repo, req.Args.State)
		if err != nil {
			return d.fail(src, d.serviceMessage(src, err))
		}
		return d.ok(src, formatPullRequests(conn.SelectedRepo, req.Args.State, prs), nil)
	}

	return d.fail(src, d.userMessage(domain.ErrUnknownCommand))
}

// githubRepoContext loads the GitHub connection and requires a selected
// repository. ok is false when the returned envelope should be replied as-is.
func (d *Dispatcher) githubRepoContext(ctx context.Context, userID string) (*domain.GitHubConnection, domain.Envelope, bool) {
	conn, err := d.creds.GitHub(ctx, userID)
	if err != nil {
		return nil, d.fail(domain.ServiceGitHub, d.serviceMessage(domain.ServiceGitHub, err)), false
	}
	if conn.SelectedRepo == "" {
		return nil, d.fail(domain.ServiceGitHub,
			"No repository selected. Use `github list` to see yours, then `github select owner/repo`."), false
	}
	return conn, domain.Envelope{}, true
}

// touchUser upserts the sender so the audit log always references a known
// user. Failures are logged and ignored.
func (d *Dispatcher) touchUser(ctx context.Context, msg domain.InboundMessage) {
	now := time.Now()
	err := d.repo.UpsertUser(ctx, &domain.User{
		UserID:     msg.UserID,
		Username:   msg.Username,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		d.logger.Warn("upserting user", "user_id", msg.UserID, "error", err)
	}
}

// serviceMessage renders service-flavored errors, falling back to the
// generic taxonomy. Missing credentials get the connect guidance for the
// service in question.
func (d *Dispatcher) serviceMessage(service string, err error) string {
	if errors.Is(err, domain.ErrNotConnected) {
		if service == domain.ServiceAsana {
			return credential.AsanaGuidance
		}
		return credential.GitHubGuidance
	}
	if errors.Is(err, domain.ErrConnectionFailed) {
		return fmt.Sprintf("That %s token was rejected. Check it and run the connect command again.", service)
	}
	return d.userMessage(err)
}

// userMessage maps taxonomy errors onto reply text. Unknown errors get a
// generic message; details stay in the logs.
func (d *Dispatcher) userMessage(err error) string {
	var malformed *domain.MalformedArgumentsError
	switch {
	case errors.As(err, &malformed):
		return malformed.Usage
	case errors.Is(err, domain.ErrPersonaNotFound):
		return "I don't know that expert. Send any message to see who is available."
	case errors.Is(err, domain.ErrResourceNotFound):
		return "I couldn't find that. Use the list command to see what's available."
	case errors.Is(err, domain.ErrUnknownCommand):
		return "I didn't recognize that command. Send any message to see what I can do."
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "That took too long to answer. Please try again."
	case errors.Is(err, domain.ErrConnectionFailed):
		return "The service rejected the stored credentials. Reconnect and try again."
	case errors.Is(err, domain.ErrUpstream):
		return "The upstream service had a problem. Please try again shortly."
	default:
		d.logger.Error("unclassified dispatch error", "error", err)
		return "Something went wrong handling that. Please try again."
	}
}

func (d *Dispatcher) ok(source, text string, meta map[string]string) domain.Envelope {
	return domain.Envelope{
		ID:       uuid.NewString(),
		Text:     text,
		Source:   source,
		Status:   domain.StatusOK,
		Metadata: meta,
	}
}

func (d *Dispatcher) fail(source, text string) domain.Envelope {
	return domain.Envelope{
		ID:     uuid.NewString(),
		Text:   text,
		Source: source,
		Status: domain.StatusError,
	}
}
