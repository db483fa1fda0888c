package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Request is the part of an update a handler needs.
type Request struct {
	UserID   int64
	ChatID   int64
	Username string

	// MessageID is the message carrying the pressed button; zero for
	// plain messages.
	MessageID  int
	CallbackID string

	Text    string
	Args    string
	Message *tgbotapi.Message
	IsAdmin bool

	toast string
}

// Toast sets the text shown when the callback is answered.
func (r *Request) Toast(text string) {
	r.toast = text
}

func newMessageRequest(msg *tgbotapi.Message) *Request {
	req := &Request{
		ChatID:  msg.Chat.ID,
		Text:    strings.TrimSpace(msg.Text),
		Message: msg,
	}
	if req.Text == "" {
		req.Text = strings.TrimSpace(msg.Caption)
	}
	if msg.From != nil {
		req.UserID = msg.From.ID
		req.Username = msg.From.UserName
	}
	if msg.IsCommand() {
		req.Args = strings.TrimSpace(msg.CommandArguments())
	}
	return req
}

func newCallbackRequest(q *tgbotapi.CallbackQuery) *Request {
	req := &Request{
		CallbackID: q.ID,
		Text:       q.Data,
	}
	if q.From != nil {
		req.UserID = q.From.ID
		req.Username = q.From.UserName
	}
	if q.Message != nil {
		req.ChatID = q.Message.Chat.ID
		req.MessageID = q.Message.MessageID
		req.Message = q.Message
	} else {
		req.ChatID = req.UserID
	}
	return req
}
