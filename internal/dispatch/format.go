package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/infoundr/infoundr/internal/connector/asana"
	"github.com/infoundr/infoundr/internal/connector/githubc"
	"github.com/infoundr/infoundr/internal/domain"
)

// helpText lists the available experts and the command surface. Shown for
// any message that is neither a persona address nor a command on an idle
// thread.
func (d *Dispatcher) helpText() string {
	var b strings.Builder
	b.WriteString("Hi! I'm Infoundr. Ask any of our experts a question:\n\n")

	for _, name := range d.registry.Names() {
		p, err := d.registry.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "• *%s* — %s\n", p.Name, p.Role)
	}

	b.WriteString("\nAddress an expert with `ask <name>: <question>`, `@<name> <question>`, or `<name>: <question>`.\n")
	b.WriteString("Once an expert answers in a thread, plain replies continue that conversation. Say `end chat` to finish.\n\n")
	b.WriteString("Project management:\n")
	b.WriteString("• `project connect <token>` / `project list` / `project select <name>` / `project create \"Task\" \"Notes\"`\n")
	b.WriteString("• `github connect <token>` / `github list` / `github select owner/repo` / " +
		"`github create \"Title\" \"Body\"` / `github list_issues` / `github list_prs` / `github check_repo`")
	return b.String()
}

func formatAsanaConnected(conn *domain.AsanaConnection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Asana connected to workspace *%s*.\n", conn.WorkspaceName)

	names := make([]string, 0, len(conn.ProjectGIDs))
	for name := range conn.ProjectGIDs {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("Projects:\n")
	for _, name := range names {
		marker := ""
		if name == conn.ActiveProject {
			marker = " (active)"
		}
		fmt.Fprintf(&b, "• %s%s\n", name, marker)
	}
	b.WriteString("\nSwitch with `project select <name>`.")
	return b.String()
}

func formatTasks(projectName string, tasks []asana.Task) string {
	if len(tasks) == 0 {
		return fmt.Sprintf("No open tasks in *%s*.", projectName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Open tasks in *%s*:\n", projectName)
	for _, t := range tasks {
		fmt.Fprintf(&b, "• %s", t.Name)
		if t.DueOn != "" {
			fmt.Fprintf(&b, " (due %s)", t.DueOn)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTaskCreated(task *asana.Task) string {
	if task.PermalinkURL != "" {
		return fmt.Sprintf("Created task *%s*\n%s", task.Name, task.PermalinkURL)
	}
	return fmt.Sprintf("Created task *%s*.", task.Name)
}

func formatRepositories(repos []githubc.Repository) string {
	if len(repos) == 0 {
		return "No repositories visible to this token."
	}

	var b strings.Builder
	b.WriteString("Your repositories:\n")
	for _, r := range repos {
		visibility := "public"
		if r.Private {
			visibility = "private"
		}
		fmt.Fprintf(&b, "• %s (%s)", r.FullName, visibility)
		if r.Description != "" {
			fmt.Fprintf(&b, " — %s", r.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nPick one with `github select owner/repo`.")
	return b.String()
}

func formatRepository(r *githubc.Repository) string {
	visibility := "public"
	if r.Private {
		visibility = "private"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%s), %d open issues", r.FullName, visibility, r.OpenIssues)
	if r.Description != "" {
		fmt.Fprintf(&b, "\n%s", r.Description)
	}
	return b.String()
}

func formatIssues(repo, state string, issues []githubc.Issue) string {
	if len(issues) == 0 {
		return fmt.Sprintf("No %s issues in *%s*.", state, repo)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s issues in *%s*:\n", capitalize(state), repo)
	for _, is := range issues {
		fmt.Fprintf(&b, "• #%d %s\n", is.Number, is.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPullRequests(repo, state string, prs []githubc.PullRequest) string {
	if len(prs) == 0 {
		return fmt.Sprintf("No %s pull requests in *%s*.", state, repo)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s pull requests in *%s*:\n", capitalize(state), repo)
	for _, pr := range prs {
		fmt.Fprintf(&b, "• #%d %s\n", pr.Number, pr.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
