// Package command converts raw inbound text into structured requests.
package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/infoundr/infoundr/internal/domain"
)

// Kind identifies the shape of a parsed request.
type Kind string

const (
	// KindPersona addresses a named persona with a question.
	KindPersona Kind = "persona"
	// KindContinuation carries free text to the thread's active persona.
	KindContinuation Kind = "continuation"
	// KindService is a project-management command (project/github).
	KindService Kind = "service"
	// KindHelp enumerates personas and example syntax.
	KindHelp Kind = "help"
	// KindEnd returns the thread to idle without clearing persona memory.
	KindEnd Kind = "end"
)

// Request is the structured form of one inbound message.
type Request struct {
	Kind    Kind
	Persona string // persona or continuation target
	Text    string // question or free text

	Service string // "project" | "github"
	Action  string // connect, list, select, create, list_issues, list_prs, check_repo
	Args    ServiceArgs
}

// ServiceArgs carries the arguments of a service command.
type ServiceArgs struct {
	Token    string
	Resource string // project name or owner/repo
	Title    string
	Body     string
	State    string // open | closed
}

// Usage strings surfaced with malformed-argument errors.
const (
	usageGitHubCreate  = `Usage: github create "Issue title" "Issue description"`
	usageProjectCreate = `Usage: project create "Task name" "Task notes"`
)

// Roster exposes the persona names the parser matches against, in
// declaration order.
type Roster interface {
	Names() []string
}

// Parser recognizes persona addresses and slash-style service commands.
type Parser struct {
	roster Roster
}

// NewParser creates a parser bound to a persona roster.
func NewParser(roster Roster) *Parser {
	return &Parser{roster: roster}
}

var (
	quotedSegmentRe = regexp.MustCompile(`"([^"]*)"`)
	endDirectiveRe  = regexp.MustCompile(`(?i)^\s*end\s+(chat|conversation)\s*$`)
)

// personaPatterns builds the address patterns for one persona name, in
// priority order: "ask <name>: q" / "ask <name> q", "@<name> q",
// "<name>: q". All case-insensitive.
func personaPatterns(name string) []*regexp.Regexp {
	quoted := regexp.QuoteMeta(name)
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)^ask\s+` + quoted + `:?\s*(.*)$`),
		regexp.MustCompile(`(?i)^@` + quoted + `:?\s*(.*)$`),
		regexp.MustCompile(`(?i)^` + quoted + `:\s*(.*)$`),
	}
}

// matchPersona finds the first matching persona address. Patterns are tried
// in priority order; within one pattern, persona names are tried in
// declaration order, so when names are substrings of each other the
// earliest-declared persona wins.
func (p *Parser) matchPersona(text string) (name, question string, ok bool) {
	names := p.roster.Names()
	for patternIdx := 0; patternIdx < 3; patternIdx++ {
		for _, n := range names {
			re := personaPatterns(n)[patternIdx]
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			q := strings.TrimSpace(m[1])
			if q == "" {
				continue
			}
			return n, q, true
		}
	}
	return "", "", false
}

// Parse converts raw text into a structured request. threadActive and
// activePersona describe the current thread state and decide whether
// unmatched text becomes a continuation or a help request.
func (p *Parser) Parse(rawText string, threadActive bool, activePersona string) (Request, error) {
	text := strings.TrimSpace(rawText)

	if endDirectiveRe.MatchString(text) {
		return Request{Kind: KindEnd}, nil
	}

	if name, question, ok := p.matchPersona(text); ok {
		return Request{Kind: KindPersona, Persona: name, Text: question}, nil
	}

	if req, matched, err := p.parseService(text); matched {
		return req, err
	}

	if threadActive && activePersona != "" {
		return Request{Kind: KindContinuation, Persona: activePersona, Text: text}, nil
	}

	return Request{Kind: KindHelp}, nil
}

// parseService recognizes `project` and `github` commands, with an optional
// leading slash. matched is false when the text is not a service command at
// all; a recognized keyword with bad arguments returns matched=true and an
// error.
func (p *Parser) parseService(text string) (Request, bool, error) {
	trimmed := strings.TrimPrefix(text, "/")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return Request{}, false, nil
	}

	keyword := strings.ToLower(fields[0])
	if keyword != "project" && keyword != "github" {
		return Request{}, false, nil
	}
	service := domain.ServiceAsana
	if keyword == "github" {
		service = domain.ServiceGitHub
	}

	if len(fields) < 2 {
		return Request{}, true, fmt.Errorf("%w: %s requires an action", domain.ErrUnknownCommand, keyword)
	}
	action := strings.ToLower(fields[1])
	tail := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(trimmed, fields[0]), " "))
	tail = strings.TrimSpace(strings.TrimPrefix(tail, fields[1]))

	req := Request{Kind: KindService, Service: service, Action: action}

	switch service {
	case domain.ServiceAsana:
		return p.parseProjectAction(req, action, tail)
	default:
		return p.parseGitHubAction(req, action, tail)
	}
}

func (p *Parser) parseProjectAction(req Request, action, tail string) (Request, bool, error) {
	switch action {
	case "connect":
		if tail == "" {
			return req, true, fmt.Errorf("%w: project connect requires a token", domain.ErrUnknownCommand)
		}
		req.Args.Token = tail
	case "create":
		title, body, err := parseQuotedPair(tail, usageProjectCreate)
		if err != nil {
			return req, true, err
		}
		req.Args.Title, req.Args.Body = title, body
	case "list":
		// no arguments
	case "select":
		if tail == "" {
			return req, true, fmt.Errorf("%w: project select requires a project name", domain.ErrUnknownCommand)
		}
		req.Args.Resource = tail
	default:
		return req, true, fmt.Errorf("%w: project %s", domain.ErrUnknownCommand, action)
	}
	return req, true, nil
}

func (p *Parser) parseGitHubAction(req Request, action, tail string) (Request, bool, error) {
	switch action {
	case "connect":
		if tail == "" {
			return req, true, fmt.Errorf("%w: github connect requires a token", domain.ErrUnknownCommand)
		}
		req.Args.Token = tail
	case "list":
		// no arguments
	case "select":
		if tail == "" {
			return req, true, fmt.Errorf("%w: github select requires owner/repo", domain.ErrUnknownCommand)
		}
		req.Args.Resource = tail
	case "create":
		title, body, err := parseQuotedPair(tail, usageGitHubCreate)
		if err != nil {
			return req, true, err
		}
		req.Args.Title, req.Args.Body = title, body
	case "list_issues", "list_prs":
		state := strings.ToLower(strings.TrimSpace(tail))
		if state == "" {
			state = "open"
		}
		if state != "open" && state != "closed" {
			return req, true, &domain.MalformedArgumentsError{
				Usage: fmt.Sprintf("Usage: github %s [open|closed]", action),
			}
		}
		req.Args.State = state
	case "check_repo":
		// no arguments
	default:
		return req, true, fmt.Errorf("%w: github %s", domain.ErrUnknownCommand, action)
	}
	return req, true, nil
}

// parseQuotedPair extracts exactly two double-quoted segments (title, body).
func parseQuotedPair(tail, usage string) (string, string, error) {
	matches := quotedSegmentRe.FindAllStringSubmatch(tail, -1)
	if len(matches) != 2 {
		return "", "", &domain.MalformedArgumentsError{Usage: usage}
	}
	title := strings.TrimSpace(matches[0][1])
	body := strings.TrimSpace(matches[1][1])
	if title == "" {
		return "", "", &domain.MalformedArgumentsError{Usage: usage}
	}
	return title, body, nil
}
