// Package notify delivers the daily-flows summary to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/nsepulse/fiidii/models"
)

const telegramAPI = "https://api.telegram.org"

// Notifier sends formatted messages through the Telegram bot API.
type Notifier struct {
	client *resty.Client
	token  string
	chatID string
}

// New creates a Notifier for the given bot token and chat.
func New(token, chatID string) *Notifier {
	client := resty.New().
		SetBaseURL(telegramAPI).
		SetTimeout(10 * time.Second)
	return &Notifier{client: client, token: token, chatID: chatID}
}

// SetEndpoint overrides the API base URL. Used by tests.
func (n *Notifier) SetEndpoint(base string) {
	n.client.SetBaseURL(base)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers the flows summary, retrying transient failures with a
// short delay ladder. An API-level ok=false is a hard failure.
func (n *Notifier) Send(ctx context.Context, flows *models.DailyFlows) error {
	text := FormatFlows(flows)

	var lastErr error
	delays := []time.Duration{0, 1 * time.Second, 5 * time.Second}
	for attempt, delay := range delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := n.deliver(ctx, text)
		if err == nil {
			slog.Info("telegram notification delivered", "attempt", attempt+1)
			return nil
		}
		slog.Warn("telegram delivery failed", "attempt", attempt+1, "error", err)
		lastErr = err
	}
	return fmt.Errorf("notify: delivery exhausted retries: %w", lastErr)
}

func (n *Notifier) deliver(ctx context.Context, text string) error {
	var result apiResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  n.chatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.token))
	if err != nil {
		return fmt.Errorf("notify: send request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("notify: HTTP %d: %s", resp.StatusCode(), result.Description)
	}
	if !result.OK {
		return fmt.Errorf("notify: telegram error: %s", result.Description)
	}
	return nil
}

// FormatFlows renders the preformatted flows summary.
func FormatFlows(f *models.DailyFlows) string {
	lines := []string{
		fmt.Sprintf("FII/DII Equity Flows — %s", f.RunDate.Format("02-Jan-2006")),
		fmt.Sprintf("DII: Buy %s | Sell %s | Net %s",
			fmtDec(f.DIIBuy), fmtDec(f.DIISell), fmtDec(f.DIINet)),
		fmt.Sprintf("FII/FPI: Buy %s | Sell %s | Net %s",
			fmtDec(f.FIIBuy), fmtDec(f.FIISell), fmtDec(f.FIINet)),
	}
	return "<pre>" + strings.Join(lines, "\n") + "</pre>"
}

func fmtDec(d decimal.NullDecimal) string {
	if !d.Valid {
		return "—"
	}
	return d.Decimal.StringFixed(2)
}
