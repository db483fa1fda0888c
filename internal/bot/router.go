package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/callback"
	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/metrics"
	"github.com/iconidentify/mediabot/internal/state"
)

const helpHint = "🤔 I didn't get that. Send /menu to see what I can do, or /help for the command list."

// Router dispatches updates to registered commands.
type Router struct {
	registry *Registry
	users    state.UserStore
	sender   *Sender
	isAdmin  func(userID int64) bool
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewRouter creates a router. isAdmin and m may be nil.
func NewRouter(
	registry *Registry,
	users state.UserStore,
	sender *Sender,
	isAdmin func(userID int64) bool,
	m *metrics.Collector,
	logger *slog.Logger,
) *Router {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Router{
		registry: registry,
		users:    users,
		sender:   sender,
		isAdmin:  isAdmin,
		metrics:  m,
		logger:   logger,
	}
}

// Dispatch handles one update. Handler panics are recovered.
func (r *Router) Dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.countUpdate("callback")
		r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.countUpdate("message")
		r.handleMessage(ctx, update.Message)
	default:
		r.countUpdate("other")
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	req := newMessageRequest(msg)
	req.IsAdmin = r.isAdmin(req.UserID)
	defer r.recoverPanic(req, "message")

	if msg.IsCommand() {
		r.runCommand(ctx, req, msg.Command())
		return
	}

	if st, ok := r.users.Get(req.UserID); ok {
		if h, ok := r.registry.Input(st.Operation); ok {
			r.fail(ctx, req, h.HandleInput(ctx, req, st))
			return
		}
		r.users.Delete(req.UserID)
	}

	for _, m := range r.registry.Matchers() {
		if m.Matches(req) {
			r.fail(ctx, req, m.HandleInput(ctx, req, state.UserState{}))
			return
		}
	}

	r.fail(ctx, req, r.sender.Reply(req.ChatID, helpHint, nil))
}

func (r *Router) runCommand(ctx context.Context, req *Request, name string) {
	cmd, ok := r.registry.Command(name)
	if !ok {
		r.countCommand("unknown")
		text := fmt.Sprintf("🤔 Unknown command /%s. Send /help for the command list.", html.EscapeString(name))
		r.fail(ctx, req, r.sender.Reply(req.ChatID, text, nil))
		return
	}
	r.countCommand(cmd.Name())

	if adminOnly(cmd) && !req.IsAdmin {
		r.fail(ctx, req, domain.ErrForbidden)
		return
	}

	r.logger.Debug("command", "command", cmd.Name(), "user_id", req.UserID)
	r.fail(ctx, req, cmd.HandleCommand(ctx, req))
}

func (r *Router) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	req := newCallbackRequest(q)
	req.IsAdmin = r.isAdmin(req.UserID)

	// Answer last so the spinner stops even when the handler fails or panics.
	defer func() {
		if err := r.sender.Answer(req.CallbackID, req.toast); err != nil {
			r.logger.Debug("answer callback failed", "error", err)
		}
	}()
	defer r.recoverPanic(req, "callback")

	data, err := callback.Parse(q.Data)
	if err != nil {
		r.logger.Warn("bad callback data", "data", q.Data, "user_id", req.UserID)
		req.Toast("This button is no longer valid.")
		return
	}
	r.countCallback(data.Feature)

	cmd, h, ok := r.registry.Callback(data.Feature)
	if !ok {
		req.Toast("This button is no longer valid.")
		return
	}
	if adminOnly(cmd) && !req.IsAdmin {
		req.Toast("❌ " + domain.ErrForbidden.Error())
		return
	}

	r.fail(ctx, req, h.HandleCallback(ctx, req, data))
}

// fail logs err and shows it to the chat.
func (r *Router) fail(ctx context.Context, req *Request, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		r.logger.Debug("handler canceled", "user_id", req.UserID, "error", err)
		return
	}

	r.logger.Warn("handler failed", "user_id", req.UserID, "chat_id", req.ChatID, "error", err)
	if sendErr := r.sender.Reply(req.ChatID, "❌ "+html.EscapeString(err.Error()), nil); sendErr != nil {
		r.logger.Error("failed to report error to chat", "chat_id", req.ChatID, "error", sendErr)
	}
}

func (r *Router) recoverPanic(req *Request, kind string) {
	rec := recover()
	if rec == nil {
		return
	}
	r.logger.Error("update handler panicked",
		"kind", kind,
		"user_id", req.UserID,
		"panic", rec,
		"stack", string(debug.Stack()),
	)
	if err := r.sender.Reply(req.ChatID, "❌ Something went wrong. Please try again.", nil); err != nil {
		r.logger.Error("failed to report panic to chat", "chat_id", req.ChatID, "error", err)
	}
}

func (r *Router) countUpdate(kind string) {
	if r.metrics != nil {
		r.metrics.Updates.WithLabelValues(kind).Inc()
	}
}

func (r *Router) countCommand(name string) {
	if r.metrics != nil {
		r.metrics.Commands.WithLabelValues(name).Inc()
	}
}

func (r *Router) countCallback(feature string) {
	if r.metrics != nil {
		r.metrics.Callbacks.WithLabelValues(feature).Inc()
	}
}
