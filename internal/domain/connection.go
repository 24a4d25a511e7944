package domain

import (
	"time"
)

// Service names for external project-management integrations.
const (
	ServiceAsana  = "asana"
	ServiceGitHub = "github"
)

// AsanaConnection holds one user's Asana credentials and resource selection.
// At most one row exists per user; a reconnect overwrites it.
type AsanaConnection struct {
	UserID        string            `json:"user_id"`
	Token         string            `json:"-"`
	WorkspaceGID  string            `json:"workspace_gid"`
	WorkspaceName string            `json:"workspace_name"`
	ProjectGIDs   map[string]string `json:"project_gids"` // project name -> gid
	ActiveProject string            `json:"active_project,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ActiveProjectGID resolves the currently selected project. When no
// selection exists, or the selected project is gone after a reconnect,
// the fallback is the first project by name so repeated calls agree.
func (c *AsanaConnection) ActiveProjectGID() (name, gid string, ok bool) {
	if c.ActiveProject != "" {
		if g, found := c.ProjectGIDs[c.ActiveProject]; found {
			return c.ActiveProject, g, true
		}
	}
	first := ""
	for n := range c.ProjectGIDs {
		if first == "" || n < first {
			first = n
		}
	}
	if first == "" {
		return "", "", false
	}
	return first, c.ProjectGIDs[first], true
}

// GitHubConnection holds one user's GitHub token and repository selection.
type GitHubConnection struct {
	UserID       string    `json:"user_id"`
	Token        string    `json:"-"`
	SelectedRepo string    `json:"selected_repo,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
