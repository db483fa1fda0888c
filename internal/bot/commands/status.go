package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/domain"
)

func statusEmoji(s domain.JobStatus) string {
	switch s {
	case domain.JobStatusQueued:
		return "🕒"
	case domain.JobStatusProcessing:
		return "⚙️"
	case domain.JobStatusRetrying:
		return "🔁"
	case domain.JobStatusCompleted:
		return "✅"
	case domain.JobStatusFailed:
		return "❌"
	default:
		return "•"
	}
}

// jobLine is the one-line summary used in job lists.
func jobLine(job *domain.Job) string {
	return fmt.Sprintf("%s <code>%s</code> %s · %s · %s",
		statusEmoji(job.Status), job.ID, job.Kind, job.Status, humanize.Time(job.CreatedAt))
}

// jobDetails renders the full status of a job.
func jobDetails(job *domain.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Job <code>%s</code>\n\n", statusEmoji(job.Status), job.ID)
	fmt.Fprintf(&b, "Type: %s", job.Kind)
	switch job.Kind {
	case domain.JobKindTikTok:
		fmt.Fprintf(&b, " (%s)\nLink: %s\n", job.Mode, html.EscapeString(job.Source))
	case domain.JobKindWatermark:
		fmt.Fprintf(&b, " (%s)\n", html.EscapeString(job.Style))
	default:
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Status: <b>%s</b>\n", job.Status)
	if job.Attempts > 0 {
		fmt.Fprintf(&b, "Attempts: %d/%d\n", job.Attempts, job.MaxRetries)
	}
	if job.LastError != "" && job.Status != domain.JobStatusCompleted {
		fmt.Fprintf(&b, "Last error: %s\n", html.EscapeString(job.LastError))
	}
	if job.Result != "" {
		fmt.Fprintf(&b, "Result: %s\n", html.EscapeString(job.Result))
	}
	fmt.Fprintf(&b, "Queued %s", humanize.Time(job.CreatedAt))
	return b.String()
}

func statusKeyboard(feature string, id domain.JobID) *tgbotapi.InlineKeyboardMarkup {
	return bot.Keyboard(
		tgbotapi.NewInlineKeyboardRow(bot.Button("🔄 Refresh status", feature, "status", id.String())),
		bot.MenuRow(),
	)
}

// ownJob loads a job, hiding other users' jobs.
func ownJob(ctx context.Context, q DownloadQueue, userID int64, id string) (*domain.Job, error) {
	if id == "" {
		return nil, domain.ErrJobNotFound
	}
	job, err := q.Job(ctx, domain.JobID(id))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func showStatus(ctx context.Context, s *bot.Sender, q DownloadQueue, req *bot.Request, feature, id string) error {
	job, err := ownJob(ctx, q, req.UserID, id)
	if err != nil {
		return err
	}
	return show(s, req, jobDetails(job), statusKeyboard(feature, job.ID))
}

func queuedText(job *domain.Job) string {
	return fmt.Sprintf("⏳ Queued as job <code>%s</code>. I'll send the result here when it's ready.", job.ID)
}
