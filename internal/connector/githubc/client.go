// Package githubc wraps the GitHub API client behind the small surface the
// command handlers need: token validation, repository listing, issues, and
// pull requests.
package githubc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/infoundr/infoundr/internal/domain"
)

// Repository is the slice of repository metadata shown to users.
type Repository struct {
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	OpenIssues  int    `json:"open_issues"`
}

// Issue is one issue, excluding pull requests.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// PullRequest is one pull request.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// Client calls the GitHub API with per-user tokens.
type Client struct {
	logger  *slog.Logger
	baseURL string
}

// NewClient creates a GitHub client wrapper.
func NewClient(logger *slog.Logger) *Client {
	return &Client{logger: logger}
}

// NewClientWithBaseURL is used by tests to point the client at a fake server.
// baseURL must end with a trailing slash.
func NewClientWithBaseURL(baseURL string, logger *slog.Logger) *Client {
	return &Client{logger: logger, baseURL: baseURL}
}

func (c *Client) api(token string) *github.Client {
	gh := github.NewClient(nil).WithAuthToken(token)
	if c.baseURL != "" {
		if u, err := url.Parse(c.baseURL); err == nil {
			gh.BaseURL = u
		}
	}
	return gh
}

// ParseFullName splits "owner/repo" into its parts.
func ParseFullName(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &domain.MalformedArgumentsError{
			Usage: "Repository must be given as owner/repo, for example octocat/hello-world",
		}
	}
	return parts[0], parts[1], nil
}

// TestConnection validates a token by fetching the authenticated user and
// returns the login.
func (c *Client) TestConnection(ctx context.Context, token string) (string, error) {
	user, _, err := c.api(token).Users.Get(ctx, "")
	if err != nil {
		return "", c.mapError("fetching authenticated user", err)
	}
	return user.GetLogin(), nil
}

// ListRepositories returns the authenticated user's repositories, most
// recently updated first.
func (c *Client) ListRepositories(ctx context.Context, token string) ([]Repository, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 30},
	}
	repos, _, err := c.api(token).Repositories.ListByAuthenticatedUser(ctx, opts)
	if err != nil {
		return nil, c.mapError("listing repositories", err)
	}

	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, Repository{
			FullName:    r.GetFullName(),
			Description: r.GetDescription(),
			Private:     r.GetPrivate(),
			OpenIssues:  r.GetOpenIssuesCount(),
		})
	}
	return out, nil
}

// CheckRepository verifies the token can see a repository.
func (c *Client) CheckRepository(ctx context.Context, token, owner, repo string) (*Repository, error) {
	r, _, err := c.api(token).Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, c.mapError("fetching repository", err)
	}
	return &Repository{
		FullName:    r.GetFullName(),
		Description: r.GetDescription(),
		Private:     r.GetPrivate(),
		OpenIssues:  r.GetOpenIssuesCount(),
	}, nil
}

// ListIssues returns issues in a repository, excluding pull requests, which
// the issues endpoint also reports.
func (c *Client) ListIssues(ctx context.Context, token, owner, repo, state string) ([]Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: 30},
	}
	issues, _, err := c.api(token).Issues.ListByRepo(ctx, owner, repo, opts)
	if err != nil {
		return nil, c.mapError("listing issues", err)
	}

	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		out = append(out, Issue{
			Number: is.GetNumber(),
			Title:  is.GetTitle(),
			State:  is.GetState(),
			URL:    is.GetHTMLURL(),
		})
	}
	return out, nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, token, owner, repo, title, body string) (*Issue, error) {
	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	is, _, err := c.api(token).Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, c.mapError("creating issue", err)
	}
	return &Issue{
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		State:  is.GetState(),
		URL:    is.GetHTMLURL(),
	}, nil
}

// ListPullRequests returns pull requests in a repository.
func (c *Client) ListPullRequests(ctx context.Context, token, owner, repo, state string) ([]PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: 30},
	}
	prs, _, err := c.api(token).PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, c.mapError("listing pull requests", err)
	}

	out := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, PullRequest{
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			State:  pr.GetState(),
			URL:    pr.GetHTMLURL(),
		})
	}
	return out, nil
}

// mapError converts go-github errors into the shared error taxonomy.
func (c *Client) mapError(op string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		c.logger.Warn("github request failed", "op", op, "status", ghErr.Response.StatusCode)
		return &domain.ServiceError{
			Service: domain.ServiceGitHub,
			Status:  ghErr.Response.StatusCode,
			Message: ghErr.Message,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("github %s: %w", op, domain.ErrUpstreamTimeout)
	}
	return fmt.Errorf("github %s: %w: %v", op, domain.ErrUpstream, err)
}
