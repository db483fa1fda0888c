package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/callback"
	"github.com/iconidentify/mediabot/internal/state"
)

// Command handles a /command. Its name doubles as the callback feature and
// the user-state operation it owns.
type Command interface {
	Name() string
	Description() string
	HandleCommand(ctx context.Context, req *Request) error
}

// CallbackHandler handles inline button presses for the command's feature.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, req *Request, data callback.Data) error
}

// InputHandler handles plain messages while the user is inside the
// command's wizard.
type InputHandler interface {
	HandleInput(ctx context.Context, req *Request, st state.UserState) error
}

// TextMatcher claims plain messages sent outside any wizard.
type TextMatcher interface {
	InputHandler
	Matches(req *Request) bool
}

// Aliased commands answer to extra names.
type Aliased interface {
	Aliases() []string
}

// Restricted commands are only available to admins.
type Restricted interface {
	AdminOnly() bool
}

func adminOnly(cmd Command) bool {
	r, ok := cmd.(Restricted)
	return ok && r.AdminOnly()
}

// Registry holds the bot's commands in registration order.
type Registry struct {
	commands []Command
	byName   map[string]Command
	matchers []TextMatcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Command)}
}

// Register adds commands. Duplicate names or aliases are rejected.
func (r *Registry) Register(cmds ...Command) error {
	for _, cmd := range cmds {
		names := []string{cmd.Name()}
		if a, ok := cmd.(Aliased); ok {
			names = append(names, a.Aliases()...)
		}
		for _, n := range names {
			key := strings.ToLower(n)
			if key == "" {
				return fmt.Errorf("register command: empty name")
			}
			if _, dup := r.byName[key]; dup {
				return fmt.Errorf("register command: duplicate name %q", n)
			}
		}
		for _, n := range names {
			r.byName[strings.ToLower(n)] = cmd
		}
		r.commands = append(r.commands, cmd)
		if m, ok := cmd.(TextMatcher); ok {
			r.matchers = append(r.matchers, m)
		}
	}
	return nil
}

// Command looks up a command by name or alias.
func (r *Registry) Command(name string) (Command, bool) {
	cmd, ok := r.byName[strings.ToLower(name)]
	return cmd, ok
}

// Callback returns the handler owning a callback feature.
func (r *Registry) Callback(feature string) (Command, CallbackHandler, bool) {
	cmd, ok := r.byName[strings.ToLower(feature)]
	if !ok {
		return nil, nil, false
	}
	h, ok := cmd.(CallbackHandler)
	return cmd, h, ok
}

// Input returns the handler owning a wizard operation.
func (r *Registry) Input(operation string) (InputHandler, bool) {
	cmd, ok := r.byName[strings.ToLower(operation)]
	if !ok {
		return nil, false
	}
	h, ok := cmd.(InputHandler)
	return h, ok
}

// Matchers returns text matchers in registration order.
func (r *Registry) Matchers() []TextMatcher {
	return r.matchers
}

// Commands returns all commands in registration order.
func (r *Registry) Commands() []Command {
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// BotCommands returns the public command list for setMyCommands.
func (r *Registry) BotCommands() []tgbotapi.BotCommand {
	out := make([]tgbotapi.BotCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		if adminOnly(cmd) {
			continue
		}
		out = append(out, tgbotapi.BotCommand{
			Command:     cmd.Name(),
			Description: cmd.Description(),
		})
	}
	return out
}
