package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/infoundr/infoundr/internal/domain"
	"github.com/infoundr/infoundr/internal/identity"
)

// ChatSocket upgrades to a websocket and runs a chat loop: each inbound
// text frame is routed like a message, and the resulting envelope is
// written back as JSON. One connection serves one conversation thread.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	threadID := identity.ThreadIDFromContext(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("accepting chat websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("closing chat websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// The request context ends with the HTTP handler; the connection
	// lives until the client goes away.
	ctx := context.WithoutCancel(r.Context())

	for {
		kind, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("chat websocket closed by client", "user_id", userID)
			} else {
				h.logger.Warn("chat websocket read error", "error", err, "user_id", userID)
			}
			return
		}
		if kind != websocket.MessageText {
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}

		env := h.router.Route(ctx, domain.InboundMessage{
			UserID:    userID,
			Username:  identity.UsernameFromContext(r.Context()),
			ChannelID: "web:" + userID,
			ThreadTS:  threadID,
			Text:      text,
			Source:    "ws",
		})
		if env.Dropped() {
			continue
		}

		if err := writeJSON(ctx, ws, env); err != nil {
			h.logger.Warn("chat websocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
