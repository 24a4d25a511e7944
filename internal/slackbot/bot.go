// Package slackbot adapts Slack Socket Mode events onto the message
// router. It is an optional transport: the server runs without it when no
// Slack tokens are configured.
package slackbot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/infoundr/infoundr/internal/domain"
	"github.com/infoundr/infoundr/internal/router"
)

var mentionTokenRe = regexp.MustCompile(`<@[A-Z0-9]+>\s*`)

// Bot runs the Socket Mode event loop and replies in-thread.
type Bot struct {
	client    *slack.Client
	socket    *socketmode.Client
	router    *router.Router
	botUserID string
	logger    *slog.Logger
}

// New creates a Slack bot from bot and app-level tokens.
func New(botToken, appToken string, rt *router.Router, logger *slog.Logger) *Bot {
	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &Bot{
		client: client,
		socket: socketmode.New(client),
		router: rt,
		logger: logger,
	}
}

// Run connects to Slack and processes events until the context ends.
func (b *Bot) Run(ctx context.Context) error {
	auth, err := b.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	b.botUserID = auth.UserID
	b.logger.Info("slack connected", "bot_user_id", auth.UserID, "team", auth.Team)

	go b.eventLoop(ctx)
	return b.socket.RunContext(ctx)
}

func (b *Bot) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socket.Events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		b.socket.Ack(*evt.Request)
		b.handleEventsAPI(ctx, apiEvent)

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		b.handleSlashCommand(ctx, evt, cmd)

	case socketmode.EventTypeConnectionError:
		b.logger.Warn("slack connection error", "data", evt.Data)
	}
}

func (b *Bot) handleEventsAPI(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Drop our own messages and channel noise before parsing, or the
		// bot answers itself in a loop.
		if ev.BotID != "" || ev.User == b.botUserID || ev.SubType != "" {
			return
		}
		b.routeAndReply(ctx, ev.User, ev.Channel, threadTS(ev.ThreadTimeStamp, ev.TimeStamp), ev.Text)

	case *slackevents.AppMentionEvent:
		if ev.User == "" || ev.User == b.botUserID {
			return
		}
		text := mentionTokenRe.ReplaceAllString(ev.Text, "")
		b.routeAndReply(ctx, ev.User, ev.Channel, threadTS(ev.ThreadTimeStamp, ev.TimeStamp), text)
	}
}

// handleSlashCommand maps /experts, /project, and /github onto the same
// parser grammar and answers with an ephemeral message.
func (b *Bot) handleSlashCommand(ctx context.Context, evt socketmode.Event, cmd slack.SlashCommand) {
	text, known := slashText(cmd)

	// Slack expects the ack within three seconds, while routing can block
	// on a token-validation round trip. Ack now, answer out of band.
	b.socket.Ack(*evt.Request)
	if !known {
		return
	}

	go func() {
		reply, deliver := b.routeSlash(ctx, cmd, text)
		if !deliver {
			return
		}
		if _, err := b.client.PostEphemeralContext(ctx, cmd.ChannelID, cmd.UserID,
			slack.MsgOptionText(reply, false),
		); err != nil {
			b.logger.Error("posting slash reply", "command", cmd.Command, "error", err)
		}
	}()
}

// slashText translates a slash command into parser text. Empty text on an
// idle thread renders the expert list.
func slashText(cmd slack.SlashCommand) (string, bool) {
	switch cmd.Command {
	case "/experts":
		return "", true
	case "/project", "/github":
		return strings.TrimPrefix(cmd.Command, "/") + " " + cmd.Text, true
	}
	return "", false
}

// routeSlash routes the command and reports whether a reply should be
// delivered. Dropped envelopes produce no reply.
func (b *Bot) routeSlash(ctx context.Context, cmd slack.SlashCommand, text string) (string, bool) {
	env := b.router.Route(ctx, domain.InboundMessage{
		UserID:    cmd.UserID,
		Username:  cmd.UserName,
		ChannelID: cmd.ChannelID,
		ThreadTS:  cmd.TriggerID,
		Text:      text,
		Source:    "slack",
	})
	if env.Dropped() {
		return "", false
	}
	return renderReply(env), true
}

func (b *Bot) routeAndReply(ctx context.Context, userID, channel, ts, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	env := b.router.Route(ctx, domain.InboundMessage{
		UserID:    userID,
		ChannelID: channel,
		ThreadTS:  ts,
		Text:      text,
		Source:    "slack",
	})
	if env.Dropped() {
		return
	}

	_, _, err := b.client.PostMessageContext(ctx, channel,
		slack.MsgOptionText(renderReply(env), false),
		slack.MsgOptionTS(ts),
	)
	if err != nil {
		b.logger.Error("posting slack reply", "channel", channel, "error", err)
	}
}

// renderReply prefixes persona answers with the speaker so threads with
// several experts stay readable.
func renderReply(env domain.Envelope) string {
	if env.OK() {
		if persona, ok := env.Metadata["persona"]; ok {
			return fmt.Sprintf("*%s says:*\n%s", persona, env.Text)
		}
	}
	return env.Text
}

func threadTS(threadTimestamp, timestamp string) string {
	if threadTimestamp != "" {
		return threadTimestamp
	}
	return timestamp
}
