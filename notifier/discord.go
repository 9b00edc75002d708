package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"gitlab.com/nunet/gpu-hyena/classifier"
)

const (
	// DefaultTimeout bounds one delivery attempt so a stalled endpoint cannot
	// hold up the next tick.
	DefaultTimeout = 10 * time.Second

	alertContent = "🚨 **GPU Available!** 🚨"
	alertTitle   = "Free GPUs Detected"
	alertColor   = 5763719 // green
)

// WebhookMessage is the JSON body accepted by Discord-compatible webhooks.
type WebhookMessage struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds"`
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// BuildMessage summarizes every free device in a single message.
func BuildMessage(reports []classifier.FreeDeviceReport, host string, now time.Time) WebhookMessage {
	var description strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&description, "**GPU %d**: %s\n", r.Index, r.Name)
		fmt.Fprintf(&description, "Memory: %.0fMB / %.0fMB\n", r.MemoryUsedMB, r.MemoryTotalMB)
		fmt.Fprintf(&description, "Utilization: %d%%\n\n", r.UtilizationPct)
	}

	embed := Embed{
		Title:       alertTitle,
		Description: description.String(),
		Color:       alertColor,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if host != "" {
		embed.Footer = &EmbedFooter{Text: host}
	}

	return WebhookMessage{
		Content: alertContent,
		Embeds:  []Embed{embed},
	}
}

// DiscordWebhook posts alerts to a webhook URL. The URL is treated as an
// opaque credential and never logged.
type DiscordWebhook struct {
	url    string
	host   string
	client *http.Client
}

func NewDiscordWebhook(url string, timeout time.Duration) *DiscordWebhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DiscordWebhook{
		url:    url,
		host:   HostName(),
		client: &http.Client{Timeout: timeout},
	}
}

// Dispatch performs exactly one POST. Any transport error or non-2xx status
// is reported as ErrDeliveryFailed.
func (d *DiscordWebhook) Dispatch(ctx context.Context, reports []classifier.FreeDeviceReport, now time.Time) error {
	if d.url == "" {
		return ErrConfigurationMissing
	}

	body, err := json.Marshal(BuildMessage(reports, d.host, now))
	if err != nil {
		return errors.Wrap(err, "unable to marshal webhook message")
	}

	ctx, cancel := context.WithTimeout(ctx, d.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(ErrConfigurationMissing, "invalid webhook url")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(ErrDeliveryFailed, redact(err.Error(), d.url))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(ErrDeliveryFailed, "webhook responded %s", resp.Status)
	}

	return nil
}

func redact(msg, secret string) string {
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, "<webhook>")
}
