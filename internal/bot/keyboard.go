package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/callback"
)

// Button builds an inline button carrying encoded callback data.
func Button(text, feature, action string, args ...string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, callback.MustEncode(feature, action, args...))
}

// LinkButton builds an inline button that opens a URL.
func LinkButton(text, url string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonURL(text, url)
}

// Keyboard assembles rows into a markup, skipping empty rows.
func Keyboard(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	kept := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			kept = append(kept, row)
		}
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kept...)
	return &markup
}

// Page clamps page to [0, pages) and returns the slice bounds for it.
func Page(page, size, n int) (start, end, clamped, pages int) {
	if size <= 0 {
		size = 5
	}
	pages = (n + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	start = page * size
	end = start + size
	if end > n {
		end = n
	}
	return start, end, page, pages
}

// Pager renders a prev/next row for action with the page number as argument.
func Pager(feature, action string, page, pages int) []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	if page > 0 {
		row = append(row, Button("◀️ Prev", feature, action, strconv.Itoa(page-1)))
	}
	if page < pages-1 {
		row = append(row, Button("Next ▶️", feature, action, strconv.Itoa(page+1)))
	}
	return row
}

// MenuRow is the "back to menu" row shown under wizard screens.
func MenuRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(Button("🏠 Menu", "start", "menu"))
}
