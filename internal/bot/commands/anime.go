package commands

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/anime"
	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
	"github.com/iconidentify/mediabot/internal/state"
)

const (
	animeAskQuery = "await_query"
	animeBrowse   = "browse"

	episodesPerPage = 20
	episodesPerRow  = 5
	maxStreams      = 10
)

// Anime is the search → details → episode wizard.
type Anime struct {
	sender   *bot.Sender
	users    state.UserStore
	finder   AnimeFinder
	pageSize int
}

// NewAnime creates the anime command.
func NewAnime(d Deps) *Anime {
	return &Anime{sender: d.Sender, users: d.Users, finder: d.Anime, pageSize: d.PageSize}
}

func (c *Anime) Name() string        { return "anime" }
func (c *Anime) Description() string { return "Search anime and get episode links" }

func (c *Anime) HandleCommand(ctx context.Context, req *bot.Request) error {
	if req.Args != "" {
		return c.search(ctx, req, req.Args)
	}
	return c.ask(req)
}

func (c *Anime) HandleInput(ctx context.Context, req *bot.Request, st state.UserState) error {
	if req.Text == "" {
		return c.sender.Reply(req.ChatID, "Please send the title as text.", bot.Keyboard(cancelRow()))
	}
	return c.search(ctx, req, req.Text)
}

func (c *Anime) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	switch data.Action {
	case "ask":
		return c.ask(req)
	case "page":
		page, err := data.IntArg(0)
		if err != nil {
			return err
		}
		return c.page(ctx, req, page)
	case "pick":
		idx, err := data.IntArg(0)
		if err != nil {
			return err
		}
		return c.pick(ctx, req, idx)
	case "eps":
		page, err := data.IntArg(0)
		if err != nil {
			return err
		}
		return c.episodes(ctx, req, page)
	case "ep":
		idx, err := data.IntArg(0)
		if err != nil {
			return err
		}
		return c.episode(ctx, req, idx)
	default:
		return fmt.Errorf("unknown anime action %q", data.Action)
	}
}

func (c *Anime) ask(req *bot.Request) error {
	c.users.Set(req.UserID, state.NewUserState(c.Name(), animeAskQuery))
	return show(c.sender, req, "🔎 Send me the name of the anime you're looking for.", bot.Keyboard(cancelRow()))
}

func (c *Anime) search(ctx context.Context, req *bot.Request, query string) error {
	query = strings.TrimSpace(query)
	c.sender.Action(req.ChatID, tgbotapi.ChatTyping)

	results, err := c.finder.Search(ctx, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		c.users.Set(req.UserID, state.NewUserState(c.Name(), animeAskQuery))
		text := fmt.Sprintf("😕 Nothing found for <b>%s</b>. Try another title.", html.EscapeString(query))
		return c.sender.Reply(req.ChatID, text, bot.Keyboard(cancelRow()))
	}

	c.users.Set(req.UserID, state.NewUserState(c.Name(), animeBrowse).With("query", query))
	text, markup := c.renderResults(query, results, 0)
	return c.sender.Reply(req.ChatID, text, markup)
}

// session returns the user's browse state.
func (c *Anime) session(req *bot.Request) (state.UserState, error) {
	st, ok := c.users.Get(req.UserID)
	if !ok || st.Operation != c.Name() || st.Param("query") == "" {
		return state.UserState{}, errSessionExpired
	}
	return st, nil
}

func (c *Anime) results(ctx context.Context, req *bot.Request) (state.UserState, []anime.Result, error) {
	st, err := c.session(req)
	if err != nil {
		return st, nil, err
	}
	results, err := c.finder.Search(ctx, st.Param("query"))
	if err != nil {
		return st, nil, err
	}
	return st, results, nil
}

func (c *Anime) page(ctx context.Context, req *bot.Request, page int) error {
	st, results, err := c.results(ctx, req)
	if err != nil {
		return err
	}
	text, markup := c.renderResults(st.Param("query"), results, page)
	return show(c.sender, req, text, markup)
}

func (c *Anime) renderResults(query string, results []anime.Result, page int) (string, *tgbotapi.InlineKeyboardMarkup) {
	start, end, page, pages := bot.Page(page, c.pageSize, len(results))

	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Results for <b>%s</b> (page %d/%d)\n\n", html.EscapeString(query), page+1, pages)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, end-start+2)
	for i := start; i < end; i++ {
		r := results[i]
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, html.EscapeString(r.Title), resultMeta(r))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			bot.Button(truncateRunes(fmt.Sprintf("%d. %s", i+1, r.Title), 60), c.Name(), "pick", strconv.Itoa(i)),
		))
	}
	rows = append(rows, bot.Pager(c.Name(), "page", page, pages), cancelRow())
	return b.String(), bot.Keyboard(rows...)
}

func resultMeta(r anime.Result) string {
	var parts []string
	if r.Year != "" {
		parts = append(parts, r.Year)
	}
	if r.Type != "" {
		parts = append(parts, r.Type)
	}
	if len(parts) == 0 {
		return ""
	}
	return " <i>(" + html.EscapeString(strings.Join(parts, ", ")) + ")</i>"
}

func (c *Anime) pick(ctx context.Context, req *bot.Request, idx int) error {
	st, results, err := c.results(ctx, req)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(results) {
		return errSessionExpired
	}

	c.sender.Action(req.ChatID, tgbotapi.ChatTyping)
	a, err := c.finder.Details(ctx, results[idx])
	if err != nil {
		return err
	}

	c.users.Set(req.UserID, st.With("pick", strconv.Itoa(idx)))
	text, markup := c.renderDetails(a, 0)
	return show(c.sender, req, text, markup)
}

// details reloads the picked title from the cache.
func (c *Anime) details(ctx context.Context, req *bot.Request) (*anime.Anime, error) {
	st, results, err := c.results(ctx, req)
	if err != nil {
		return nil, err
	}
	idx, err := strconv.Atoi(st.Param("pick"))
	if err != nil || idx < 0 || idx >= len(results) {
		return nil, errSessionExpired
	}
	return c.finder.Details(ctx, results[idx])
}

func (c *Anime) episodes(ctx context.Context, req *bot.Request, page int) error {
	a, err := c.details(ctx, req)
	if err != nil {
		return err
	}
	text, markup := c.renderDetails(a, page)
	return show(c.sender, req, text, markup)
}

func (c *Anime) renderDetails(a *anime.Anime, page int) (string, *tgbotapi.InlineKeyboardMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "🎌 <b>%s</b>%s\n", html.EscapeString(a.Title), resultMeta(a.Result))
	if a.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", html.EscapeString(a.Status))
	}
	if len(a.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", html.EscapeString(strings.Join(a.Genres, ", ")))
	}
	if a.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(truncateRunes(a.Description, 600)))
	}

	if len(a.Episodes) == 0 {
		b.WriteString("\nNo episodes available yet.")
		return b.String(), bot.Keyboard(
			tgbotapi.NewInlineKeyboardRow(bot.Button("◀️ Results", c.Name(), "page", "0")),
			cancelRow(),
		)
	}

	start, end, page, pages := bot.Page(page, episodesPerPage, len(a.Episodes))
	fmt.Fprintf(&b, "\n📺 %d episodes (page %d/%d). Pick one:", len(a.Episodes), page+1, pages)

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i := start; i < end; i++ {
		row = append(row, bot.Button(a.Episodes[i].Number, c.Name(), "ep", strconv.Itoa(i)))
		if len(row) == episodesPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows, row,
		bot.Pager(c.Name(), "eps", page, pages),
		tgbotapi.NewInlineKeyboardRow(bot.Button("◀️ Results", c.Name(), "page", "0")),
		cancelRow(),
	)
	return b.String(), bot.Keyboard(rows...)
}

func (c *Anime) episode(ctx context.Context, req *bot.Request, idx int) error {
	a, err := c.details(ctx, req)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(a.Episodes) {
		return errSessionExpired
	}
	ep := a.Episodes[idx]

	c.sender.Action(req.ChatID, tgbotapi.ChatTyping)
	streams, err := c.finder.Streams(ctx, a, ep)
	if err != nil {
		return err
	}

	back := bot.Button("◀️ Episodes", c.Name(), "eps", strconv.Itoa(idx/episodesPerPage))
	title := fmt.Sprintf("▶️ <b>%s</b> episode %s", html.EscapeString(a.Title), html.EscapeString(ep.Number))
	if len(streams) == 0 {
		return show(c.sender, req, title+"\n\nNo streams found for this episode.",
			bot.Keyboard(tgbotapi.NewInlineKeyboardRow(back)))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, s := range streams {
		if i == maxStreams {
			break
		}
		if !strings.HasPrefix(s.URL, "http") {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(bot.LinkButton(streamLabel(s), s.URL)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(back), cancelRow())
	return show(c.sender, req, title+"\n\nChoose a server:", bot.Keyboard(rows...))
}

func streamLabel(s anime.Stream) string {
	label := s.Server
	if label == "" {
		label = "Stream"
	}
	if s.Quality != "" {
		label += " · " + s.Quality
	}
	return "🔗 " + label
}
