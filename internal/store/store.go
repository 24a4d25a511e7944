// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/infoundr/infoundr/internal/domain"
)

// Repository defines the interface for persisting users, credentials,
// routing state, and the message audit log.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when the
	// user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetAsanaConnection retrieves a user's Asana credential record.
	// Returns (nil, nil) when the user has never connected.
	GetAsanaConnection(ctx context.Context, userID string) (*domain.AsanaConnection, error)

	// UpsertAsanaConnection creates or replaces a user's Asana credential
	// record. Last write wins.
	UpsertAsanaConnection(ctx context.Context, conn *domain.AsanaConnection) error

	// UpdateAsanaActiveProject updates only the active project selection.
	UpdateAsanaActiveProject(ctx context.Context, userID, projectName string) error

	// GetGitHubConnection retrieves a user's GitHub credential record.
	GetGitHubConnection(ctx context.Context, userID string) (*domain.GitHubConnection, error)

	// UpsertGitHubConnection creates or replaces a user's GitHub credential
	// record.
	UpsertGitHubConnection(ctx context.Context, conn *domain.GitHubConnection) error

	// UpdateGitHubSelectedRepo updates only the repository selection,
	// leaving the token untouched.
	UpdateGitHubSelectedRepo(ctx context.Context, userID, repo string) error

	// GetThreadState retrieves routing state for a thread key.
	// Returns (nil, nil) when the thread has no state yet.
	GetThreadState(ctx context.Context, threadKey string) (*domain.ThreadState, error)

	// UpsertThreadState creates or updates routing state for a thread.
	UpsertThreadState(ctx context.Context, state *domain.ThreadState) error

	// AppendMessage records one completed question/answer exchange.
	AppendMessage(ctx context.Context, rec *domain.MessageRecord) error

	// RecentMessages returns the most recent exchanges for a user, newest
	// first, capped at limit.
	RecentMessages(ctx context.Context, userID string, limit int) ([]*domain.MessageRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
