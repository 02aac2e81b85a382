package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/target/mailrelay/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL   string
	Channel      string
	Username     string
	Timeout      time.Duration
	RetryLimit   int
	Client       *http.Client
	DashboardURL string
}

// Client delivers dispatch failure notifications to a Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	dashboardURL string
	client       *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     fallbackString(strings.TrimSpace(cfg.Username), "mailrelay"),
		retryLimit:   max(cfg.RetryLimit, 0),
		dashboardURL: strings.TrimSpace(cfg.DashboardURL),
		client:       hc,
	}, nil
}

// SendDispatchFailure posts a formatted message to Slack.
func (c *Client) SendDispatchFailure(ctx context.Context, payload notify.DispatchFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.Retry(ctx, c.retryLimit+1, 200*time.Millisecond, func() error {
		return c.post(ctx, body)
	})
}

func (c *Client) formatMessage(payload notify.DispatchFailurePayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	text := strings.Builder{}
	writeSlackHeader(&text, payload)
	appendSlackDetails(&text, payload, c.jobLink(payload.JobID))
	appendSlackMetadata(&text, payload.Metadata)
	appendSlackField(&text, "Timestamp", timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     strings.TrimRight(text.String(), "\n"),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func writeSlackHeader(text *strings.Builder, payload notify.DispatchFailurePayload) {
	switch payload.Reason {
	case notify.ReasonTransportConnect:
		text.WriteString("*Dispatch aborted*")
	default:
		text.WriteString("*Dispatch finished with failures*")
	}
	if payload.JobID != "" {
		text.WriteString(" `")
		text.WriteString(payload.JobID)
		text.WriteByte('`')
	}
	text.WriteByte('\n')
}

func appendSlackDetails(text *strings.Builder, payload notify.DispatchFailurePayload, link string) {
	fields := []struct {
		label string
		value string
	}{
		{"Severity", fallbackString(payload.Severity, notify.SeverityCritical)},
		{"Sender", escapeSlackText(payload.SenderLabel)},
		{"Progress", formatProgress(payload)},
		{"Error class", payload.ErrorClass},
		{"Error", escapeSlackText(payload.Error)},
		{"Logs", link},
	}
	for _, field := range fields {
		appendSlackField(text, field.label, field.value)
	}
}

func formatProgress(payload notify.DispatchFailurePayload) string {
	if payload.Total == 0 && payload.Sent == 0 && payload.Failed == 0 {
		return ""
	}
	return "sent " + strconv.Itoa(payload.Sent) +
		", failed " + strconv.Itoa(payload.Failed) +
		" of " + strconv.Itoa(payload.Total)
}

func (c *Client) jobLink(jobID string) string {
	if c.dashboardURL == "" || jobID == "" {
		return ""
	}
	u, err := url.Parse(c.dashboardURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	q := u.Query()
	q.Set("job", jobID)
	u.RawQuery = q.Encode()
	return fmt.Sprintf("<%s|%s>", u.String(), jobID)
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("read slack error response: %w", readErr)
		}
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendSlackMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(metadata[k])
		text.WriteByte('\n')
	}
}
