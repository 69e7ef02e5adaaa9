// Package telegram posts pipeline run reports to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
)

// Notifier sends run reports to a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishRunReport posts a short Markdown digest of the finished run.
func (n *Notifier) PublishRunReport(ctx context.Context, run domain.PipelineRun) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	return n.send(ctx, formatRunReport(run))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatRunReport(run domain.PipelineRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Pipeline run %d: %s*\n", run.ID, run.Status)
	fmt.Fprintf(&b, "stored %d, parsed %d, embedded %d, summarized %d\n",
		run.PapersStored, run.PapersParsed, run.PapersEmbedded, run.PapersSummarized)
	fmt.Fprintf(&b, "cost $%.4f, took %s",
		run.CostUSD, run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	if run.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", run.Error)
	}
	return b.String()
}
