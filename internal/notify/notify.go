package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"krx-trader/internal/clock"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
)

// CharLimit is the Discord message content limit.
const CharLimit = 2000

var ErrNoWebhook = errors.New("discord webhook is not configured")

// Discord posts messages to a channel webhook.
type Discord struct {
	client  *resty.Client
	webhook string
}

var _ interfaces.Notifier = (*Discord)(nil)

func NewDiscord(webhook string) *Discord {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	return &Discord{client: client, webhook: webhook}
}

type discordMessage struct {
	Content string `json:"content"`
}

func (d *Discord) Send(ctx context.Context, msg string) error {
	if d.webhook == "" {
		return ErrNoWebhook
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(discordMessage{Content: msg}).
		Post(d.webhook)
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord send: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// SendAll joins lines into messages no longer than limit and sends each.
// Lines longer than limit are split.
func SendAll(ctx context.Context, n interfaces.Notifier, lines []string, limit int) error {
	if limit <= 0 {
		limit = CharLimit
	}
	for _, chunk := range Chunk(lines, limit) {
		if err := n.Send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Chunk packs lines, newline separated, into chunks of at most limit runes.
func Chunk(lines []string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		size   int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			size = 0
		}
	}
	for _, line := range lines {
		for _, piece := range splitRunes(line, limit) {
			n := utf8.RuneCountInString(piece)
			if size > 0 && size+1+n > limit {
				flush()
			}
			if size > 0 {
				cur.WriteByte('\n')
				size++
			}
			cur.WriteString(piece)
			size += n
		}
	}
	flush()
	return chunks
}

func splitRunes(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for len(runes) > limit {
		out = append(out, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// Nop drops every message.
type Nop struct{}

func (Nop) Send(ctx context.Context, msg string) error { return nil }

// Best sends msg and only logs a delivery failure. Notifications never
// block or fail trading.
func Best(ctx context.Context, n interfaces.Notifier, msg string) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, msg); err != nil {
		logger.Warn(ctx, "Notification not delivered", "error", err)
	}
}

// Crash formats a failure report with its KST time.
func Crash(name string, err error) string {
	return fmt.Sprintf("%s crashed at %s\n#### Error ####\n%v",
		name, clock.Now().Format("2006-01-02 15:04:05 MST"), err)
}
