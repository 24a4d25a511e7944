// Package asana is a minimal REST client for the Asana API, covering the
// workspace, project, and task surface the command handlers need.
package asana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/infoundr/infoundr/internal/domain"
)

const defaultBaseURL = "https://app.asana.com/api/1.0"

// Workspace is an Asana workspace.
type Workspace struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Project is an Asana project inside a workspace.
type Project struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Task is an Asana task.
type Task struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	Notes        string `json:"notes,omitempty"`
	Completed    bool   `json:"completed"`
	DueOn        string `json:"due_on,omitempty"`
	PermalinkURL string `json:"permalink_url,omitempty"`
}

// Client calls the Asana REST API. Tokens are per user, so every method
// takes the token instead of the client holding one.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an Asana client with a default timeout.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a fake server.
func NewClientWithBaseURL(baseURL string, logger *slog.Logger) *Client {
	c := NewClient(logger)
	c.baseURL = baseURL
	return c
}

// ListWorkspaces returns the workspaces visible to the token.
func (c *Client) ListWorkspaces(ctx context.Context, token string) ([]Workspace, error) {
	var out struct {
		Data []Workspace `json:"data"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/workspaces", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListProjects returns the projects in a workspace.
func (c *Client) ListProjects(ctx context.Context, token, workspaceGID string) ([]Project, error) {
	var out struct {
		Data []Project `json:"data"`
	}
	path := fmt.Sprintf("/workspaces/%s/projects", workspaceGID)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateTask creates a task in a project.
func (c *Client) CreateTask(ctx context.Context, token, projectGID, name, notes string) (*Task, error) {
	body := map[string]any{
		"data": map[string]any{
			"name":     name,
			"notes":    notes,
			"projects": []string{projectGID},
		},
	}
	var out struct {
		Data Task `json:"data"`
	}
	if err := c.do(ctx, token, http.MethodPost, "/tasks", body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ListTasks returns the incomplete tasks of a project.
func (c *Client) ListTasks(ctx context.Context, token, projectGID string) ([]Task, error) {
	var out struct {
		Data []Task `json:"data"`
	}
	path := fmt.Sprintf("/projects/%s/tasks?opt_fields=name,notes,completed,due_on,permalink_url&completed_since=now", projectGID)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling asana request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building asana request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("asana %s %s: %w", method, path, domain.ErrUpstreamTimeout)
		}
		return fmt.Errorf("asana %s %s: %w: %v", method, path, domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("asana request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &domain.ServiceError{
			Service: domain.ServiceAsana,
			Status:  resp.StatusCode,
			Message: string(msg),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding asana response: %w", err)
		}
	}
	return nil
}
