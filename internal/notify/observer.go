package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sink receives run-level events from Forward
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// Forward drains events into sink until the channel closes or ctx ends.
// Duplicate terminal events for a run are delivered once. Item events are
// passed through only when includeItems is set.
func Forward(ctx context.Context, events <-chan Event, sink Sink, includeItems bool, logger *slog.Logger) {
	var once Once
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Type.IsTerminal() && !includeItems {
				continue
			}
			if !once.First(ev) {
				continue
			}
			if err := sink.Notify(ctx, ev); err != nil && logger != nil {
				logger.Warn("notification failed", "run_id", ev.RunID, "type", ev.Type, "error", err)
			}
		}
	}
}

// LogSink writes every event to a structured logger
type LogSink struct {
	Logger *slog.Logger
}

// Notify logs ev
func (s LogSink) Notify(_ context.Context, ev Event) error {
	attrs := []any{"run_id", ev.RunID, "progress", ev.Progress, "total", ev.Total}
	switch {
	case ev.Type.IsTerminal():
		s.Logger.Info("run "+strings.TrimPrefix(string(ev.Type), "run_"),
			append(attrs, "completed", ev.Completed, "failed", ev.Failed)...)
	case ev.Type == EventProgress:
		s.Logger.Debug("item done", append(attrs, "index", ev.Index, "status", ev.Status)...)
	default:
		s.Logger.Debug("item started", append(attrs, "index", ev.Index)...)
	}
	return nil
}

// TelegramNotifier posts run summaries to a Telegram chat via the bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier registers bot token and chat identifier
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify sends a one-line summary for terminal events and ignores the rest
func (n *TelegramNotifier) Notify(ctx context.Context, ev Event) error {
	if !ev.Type.IsTerminal() {
		return nil
	}
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", SummaryLine(ev))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// SummaryLine renders the user-facing completion message for a run
func SummaryLine(ev Event) string {
	verb := "complete"
	if ev.Type == EventRunCancelled {
		verb = "cancelled"
	}
	return fmt.Sprintf("Batch %s %s: %d of %d items processed, %d completed, %d failed",
		ev.RunID, verb, ev.Progress, ev.Total, ev.Completed, ev.Failed)
}
