// Package credential manages per-user service credentials: connecting
// Asana and GitHub accounts, validating tokens, and resource selection.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/infoundr/infoundr/internal/connector/asana"
	"github.com/infoundr/infoundr/internal/connector/githubc"
	"github.com/infoundr/infoundr/internal/domain"
	"github.com/infoundr/infoundr/internal/store"
)

// AsanaAPI is the slice of the Asana client used during connect.
type AsanaAPI interface {
	ListWorkspaces(ctx context.Context, token string) ([]asana.Workspace, error)
	ListProjects(ctx context.Context, token, workspaceGID string) ([]asana.Project, error)
}

// GitHubAPI is the slice of the GitHub client used during connect and
// repository selection.
type GitHubAPI interface {
	TestConnection(ctx context.Context, token string) (string, error)
	CheckRepository(ctx context.Context, token, owner, repo string) (*githubc.Repository, error)
}

// Service validates tokens against the external services and persists
// credential records. A record is only ever written after validation
// succeeds; a failed connect leaves any existing record untouched.
type Service struct {
	repo   store.Repository
	asana  AsanaAPI
	github GitHubAPI
	logger *slog.Logger
}

// NewService creates a credential service.
func NewService(repo store.Repository, asanaAPI AsanaAPI, githubAPI GitHubAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		asana:  asanaAPI,
		github: githubAPI,
		logger: logger,
	}
}

// ConnectAsana validates the token, adopts the first visible workspace,
// records every project in it, and selects the first project as active.
func (s *Service) ConnectAsana(ctx context.Context, userID, token string) (*domain.AsanaConnection, error) {
	workspaces, err := s.asana.ListWorkspaces(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("validating asana token: %w", err)
	}
	if len(workspaces) == 0 {
		return nil, fmt.Errorf("%w: token has no visible workspaces", domain.ErrConnectionFailed)
	}
	ws := workspaces[0]

	projects, err := s.asana.ListProjects(ctx, token, ws.GID)
	if err != nil {
		return nil, fmt.Errorf("listing asana projects: %w", err)
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("%w: workspace %q has no projects", domain.ErrConnectionFailed, ws.Name)
	}

	now := time.Now()
	conn := &domain.AsanaConnection{
		UserID:        userID,
		Token:         token,
		WorkspaceGID:  ws.GID,
		WorkspaceName: ws.Name,
		ProjectGIDs:   make(map[string]string, len(projects)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, p := range projects {
		conn.ProjectGIDs[p.Name] = p.GID
		if i == 0 {
			conn.ActiveProject = p.Name
		}
	}

	if err := s.repo.UpsertAsanaConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("saving asana connection: %w", err)
	}
	s.logger.Info("asana connected",
		"user_id", userID, "workspace", ws.Name, "projects", len(projects))
	return conn, nil
}

// ConnectGitHub validates the token and stores it. No repository is
// selected until the user picks one.
func (s *Service) ConnectGitHub(ctx context.Context, userID, token string) (string, error) {
	login, err := s.github.TestConnection(ctx, token)
	if err != nil {
		return "", fmt.Errorf("validating github token: %w", err)
	}

	now := time.Now()
	conn := &domain.GitHubConnection{
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertGitHubConnection(ctx, conn); err != nil {
		return "", fmt.Errorf("saving github connection: %w", err)
	}
	s.logger.Info("github connected", "user_id", userID, "login", login)
	return login, nil
}

// Asana returns the user's Asana connection, or ErrNotConnected.
func (s *Service) Asana(ctx context.Context, userID string) (*domain.AsanaConnection, error) {
	conn, err := s.repo.GetAsanaConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading asana connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("asana for %s: %w", userID, domain.ErrNotConnected)
	}
	return conn, nil
}

// GitHub returns the user's GitHub connection, or ErrNotConnected.
func (s *Service) GitHub(ctx context.Context, userID string) (*domain.GitHubConnection, error) {
	conn, err := s.repo.GetGitHubConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading github connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("github for %s: %w", userID, domain.ErrNotConnected)
	}
	return conn, nil
}

// SelectAsanaProject marks a known project as active. Matching is exact
// first, then case-insensitive.
func (s *Service) SelectAsanaProject(ctx context.Context, userID, projectName string) (string, error) {
	conn, err := s.Asana(ctx, userID)
	if err != nil {
		return "", err
	}

	name := projectName
	if _, ok := conn.ProjectGIDs[name]; !ok {
		name = ""
		for known := range conn.ProjectGIDs {
			if strings.EqualFold(known, projectName) {
				name = known
				break
			}
		}
	}
	if name == "" {
		return "", fmt.Errorf("project %q: %w", projectName, domain.ErrResourceNotFound)
	}

	if err := s.repo.UpdateAsanaActiveProject(ctx, userID, name); err != nil {
		return "", fmt.Errorf("saving project selection: %w", err)
	}
	return name, nil
}

// SelectGitHubRepo verifies the repository is visible to the stored token
// and records it as the working repository.
func (s *Service) SelectGitHubRepo(ctx context.Context, userID, fullName string) (*githubc.Repository, error) {
	conn, err := s.GitHub(ctx, userID)
	if err != nil {
		return nil, err
	}

	owner, repo, err := githubc.ParseFullName(fullName)
	if err != nil {
		return nil, err
	}

	r, err := s.github.CheckRepository(ctx, conn.Token, owner, repo)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateGitHubSelectedRepo(ctx, userID, r.FullName); err != nil {
		return nil, fmt.Errorf("saving repository selection: %w", err)
	}
	return r, nil
}
