// Package router serializes per-thread message handling and owns the
// thread state machine: which persona is active in each conversation.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/infoundr/infoundr/internal/command"
	"github.com/infoundr/infoundr/internal/domain"
	"github.com/infoundr/infoundr/internal/store"
)

// Dispatcher executes a parsed request and converts every outcome,
// success or failure, into a user-facing envelope.
type Dispatcher interface {
	Execute(ctx context.Context, msg domain.InboundMessage, req command.Request, thread *domain.ThreadState) domain.Envelope
	Failure(err error) domain.Envelope
}

// Router routes inbound messages: it acquires the thread lock, loads
// routing state, parses the text, delegates execution, and persists the
// resulting state transition before replying.
type Router struct {
	parser      *command.Parser
	dispatcher  Dispatcher
	repo        store.Repository
	locks       *ThreadLockManager
	lockTimeout time.Duration
	logger      *slog.Logger
}

// New creates a router.
func New(parser *command.Parser, dispatcher Dispatcher, repo store.Repository, lockTimeout time.Duration, logger *slog.Logger) *Router {
	return &Router{
		parser:      parser,
		dispatcher:  dispatcher,
		repo:        repo,
		locks:       NewThreadLockManager(logger),
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// Route handles one inbound message end to end. Failures are converted
// into error envelopes, never raised to the transport, with one
// exception: when the thread lock cannot be acquired the returned
// envelope has Dropped() set and the transport must send nothing.
// Messages on the same thread are processed strictly one at a time.
func (r *Router) Route(ctx context.Context, msg domain.InboundMessage) domain.Envelope {
	key := domain.ThreadKey(msg.ChannelID, msg.ThreadTS)

	if err := r.locks.TryLockWithTimeout(ctx, key, r.lockTimeout); err != nil {
		// Failing to serialize the thread is the one fail-closed case:
		// replying here could interleave with the in-flight request, so
		// the message is dropped and only logged.
		r.logger.Error("thread lock not acquired, dropping message",
			"thread_key", key, "user_id", msg.UserID, "error", err)
		return domain.Envelope{}
	}
	defer r.locks.Unlock(key)

	state, err := r.repo.GetThreadState(ctx, key)
	if err != nil {
		r.logger.Error("loading thread state", "thread_key", key, "error", err)
		return r.dispatcher.Failure(err)
	}
	if state == nil {
		state = &domain.ThreadState{ThreadKey: key, CreatedAt: time.Now()}
	}

	req, err := r.parser.Parse(msg.Text, state.Active(), state.ActivePersona)
	if err != nil {
		return r.dispatcher.Failure(err)
	}

	env := r.dispatcher.Execute(ctx, msg, req, state)

	r.applyTransition(state, req, env)
	state.UpdatedAt = time.Now()
	if err := r.repo.UpsertThreadState(ctx, state); err != nil {
		// The reply already exists; losing the state write degrades the
		// next message to help-text routing, not this one.
		r.logger.Error("persisting thread state", "thread_key", key, "error", err)
	}

	return env
}

// applyTransition moves the thread state machine. Addressing a persona
// switches the thread to it even when the upstream call fails, so the
// user can retry without re-addressing. Service commands and help leave
// the active persona untouched.
func (r *Router) applyTransition(state *domain.ThreadState, req command.Request, env domain.Envelope) {
	switch req.Kind {
	case command.KindPersona:
		state.ActivePersona = req.Persona
		if env.OK() {
			state.RecordExchange(req.Text, env.Text)
		}
	case command.KindContinuation:
		if env.OK() {
			state.RecordExchange(req.Text, env.Text)
		}
	case command.KindEnd:
		state.ActivePersona = ""
	}
}
