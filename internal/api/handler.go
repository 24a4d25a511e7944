// Package api provides the HTTP handlers for the Infoundr web API.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/infoundr/infoundr/internal/domain"
	"github.com/infoundr/infoundr/internal/identity"
	"github.com/infoundr/infoundr/internal/router"
	"github.com/infoundr/infoundr/internal/store"
)

// PersonaInfo is the read-only persona surface the API exposes.
type PersonaInfo interface {
	Names() []string
	Get(name string) (*domain.Persona, error)
}

// Handler provides the web API endpoints.
type Handler struct {
	repo     store.Repository
	router   *router.Router
	personas PersonaInfo
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, rt *router.Router, personas PersonaInfo, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		router:   rt,
		personas: personas,
		logger:   logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the API endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/bot_info", h.BotInfo)
	r.Get("/api/history", h.History)
	r.Post("/api/process_command", h.ProcessCommand)
	r.Post("/api/message", h.Message)
}

// Health reports database connectivity and the loaded personas.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		h.logger.Error("health check db ping failed", "error", err)
		Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"personas": h.personas.Names(),
	})
}

type botInfo struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Expertise string `json:"expertise"`
}

// BotInfo lists every persona with its role and expertise.
func (h *Handler) BotInfo(w http.ResponseWriter, r *http.Request) {
	infos := make([]botInfo, 0, len(h.personas.Names()))
	for _, name := range h.personas.Names() {
		p, err := h.personas.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, botInfo{Name: p.Name, Role: p.Role, Expertise: p.Expertise})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"bots": infos})
}

// History returns the caller's recent question/answer exchanges, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	records, err := h.repo.RecentMessages(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error("loading message history", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": records})
}

type processCommandRequest struct {
	Command string `json:"command"`
	Args    string `json:"args"`
}

// ProcessCommand accepts the underscore command wire shape, such as
// {"command":"ask_benny","args":"What's a good burn rate?"} or
// {"command":"github_list_issues"}, and routes the equivalent text.
func (h *Handler) ProcessCommand(w http.ResponseWriter, r *http.Request) {
	var req processCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		Error(w, http.StatusBadRequest, "command is required")
		return
	}

	text, err := commandToText(req.Command, req.Args)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	env := h.route(r, text)
	if env.Dropped() {
		Error(w, http.StatusServiceUnavailable, "thread busy, message not processed")
		return
	}
	JSON(w, http.StatusOK, env)
}

type messageRequest struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id"`
}

// Message routes free text through the full parse cycle. The browser UI
// uses this for everything: persona addresses, continuations, and commands.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	env := h.routeWithThread(r, req.Text, req.ThreadID)
	if env.Dropped() {
		Error(w, http.StatusServiceUnavailable, "thread busy, message not processed")
		return
	}
	JSON(w, http.StatusOK, env)
}

func (h *Handler) route(r *http.Request, text string) domain.Envelope {
	return h.routeWithThread(r, text, "")
}

func (h *Handler) routeWithThread(r *http.Request, text, threadID string) domain.Envelope {
	ctx := r.Context()
	if threadID == "" {
		threadID = identity.ThreadIDFromContext(ctx)
	}
	userID := identity.UserIDFromContext(ctx)

	return h.router.Route(ctx, domain.InboundMessage{
		UserID:    userID,
		Username:  identity.UsernameFromContext(ctx),
		ChannelID: "web:" + userID,
		ThreadTS:  threadID,
		Text:      text,
		Source:    "api",
	})
}

// actionAliases maps the long-form wire actions onto the parser grammar,
// so project_create_task lands on `project create` and so on.
var actionAliases = map[string]string{
	"create_task":  "create",
	"list_tasks":   "list",
	"list_repos":   "list",
	"select_repo":  "select",
	"create_issue": "create",
}

// commandToText translates an underscore-form command into the text the
// parser understands: ask_<name> becomes a persona address, everything
// else maps onto the project/github grammar.
func commandToText(cmd, args string) (string, error) {
	cmd = strings.ToLower(strings.TrimSpace(cmd))

	if name, ok := strings.CutPrefix(cmd, "ask_"); ok {
		if name == "" {
			return "", fmt.Errorf("ask command needs a persona name")
		}
		return fmt.Sprintf("ask %s: %s", name, args), nil
	}

	for _, prefix := range []string{"project_", "github_"} {
		if action, ok := strings.CutPrefix(cmd, prefix); ok {
			if alias, ok := actionAliases[action]; ok {
				action = alias
			}
			service := strings.TrimSuffix(prefix, "_")
			text := service + " " + action
			if strings.TrimSpace(args) != "" {
				text += " " + args
			}
			return text, nil
		}
	}

	return "", fmt.Errorf("unknown command %q", cmd)
}
