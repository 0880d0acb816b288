package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	// Colors for Discord embeds
	colorRed   = 15158332 // 0xE74C3C - for failures
	colorGreen = 5763719  // 0x57F287 - for success

	// Default timeout for webhook requests
	defaultWebhookTimeout = 10 * time.Second

	// Max retries for rate limiting
	maxRetries = 3

	// Embed field values are capped by Discord at 1024 characters
	maxFieldValue = 1024
	maxReasons    = 5
)

// WebhookPayload represents a Discord webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed represents a Discord embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// IngestSummary is what the ingestion report shows
type IngestSummary struct {
	RunID         string
	Players       int
	Stored        int
	Skipped       int
	FetchFailures int
	StoreFailures int
	Duration      time.Duration
}

// NewInsertFailedPayload creates a payload for rows rejected by the warehouse
func NewInsertFailedPayload(runID, table string, rejected, total int, reasons []string) WebhookPayload {
	return WebhookPayload{
		Content: "@here Warehouse insert rejected rows",
		Embeds: []Embed{
			{
				Title: "❌ Staging Load Incomplete",
				Color: colorRed,
				Fields: []EmbedField{
					{
						Name:   "Table",
						Value:  table,
						Inline: true,
					},
					{
						Name:   "Rejected",
						Value:  formatNumber(rejected) + " / " + formatNumber(total),
						Inline: true,
					},
					{
						Name:  "Reasons",
						Value: formatReasons(reasons),
					},
				},
				Footer: &EmbedFooter{
					Text: "Run " + runID + " - completion event not published",
				},
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}

// NewIngestSummaryPayload creates a payload summarizing one ingestion run
func NewIngestSummaryPayload(s IngestSummary) WebhookPayload {
	color := colorGreen
	if s.FetchFailures > 0 || s.StoreFailures > 0 {
		color = colorRed
	}
	return WebhookPayload{
		Embeds: []Embed{
			{
				Title: "📥 Match Ingestion Finished",
				Color: color,
				Fields: []EmbedField{
					{
						Name:   "Players",
						Value:  formatNumber(s.Players),
						Inline: true,
					},
					{
						Name:   "Stored",
						Value:  formatNumber(s.Stored),
						Inline: true,
					},
					{
						Name:   "Already Stored",
						Value:  formatNumber(s.Skipped),
						Inline: true,
					},
					{
						Name:   "Failures",
						Value:  fmt.Sprintf("%d fetch, %d store", s.FetchFailures, s.StoreFailures),
						Inline: true,
					},
					{
						Name:   "Runtime",
						Value:  formatDuration(s.Duration),
						Inline: true,
					},
				},
				Footer: &EmbedFooter{
					Text: "Run " + s.RunID,
				},
			},
		},
	}
}

// WebhookClient sends notifications to Discord webhooks
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

// SendInsertFailure alerts that the warehouse rejected rows
func (c *WebhookClient) SendInsertFailure(ctx context.Context, runID, table string, rejected, total int, reasons []string) error {
	return c.sendPayload(ctx, NewInsertFailedPayload(runID, table, rejected, total, reasons))
}

// SendIngestSummary reports the outcome of an ingestion run
func (c *WebhookClient) SendIngestSummary(ctx context.Context, s IngestSummary) error {
	return c.sendPayload(ctx, NewIngestSummaryPayload(s))
}

// sendPayload sends a webhook payload with retry on rate limiting
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Success - Discord returns 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		// Rate limited - wait and retry
		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := time.Second
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				waitDuration = time.Duration(seconds) * time.Second
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}

// formatNumber formats a number with commas (e.g., 47832 -> "47,832")
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return strconv.Itoa(n)
	}

	s := strconv.Itoa(n)
	var result bytes.Buffer
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

// formatDuration formats a duration as "Xh Ym Zs"
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// formatReasons lists the first few rejection reasons as a code block
func formatReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "n/a"
	}

	shown := reasons
	if len(shown) > maxReasons {
		shown = shown[:maxReasons]
	}
	body := strings.Join(shown, "\n")
	if extra := len(reasons) - len(shown); extra > 0 {
		body += fmt.Sprintf("\n... and %d more", extra)
	}

	// Room for the fences
	if limit := maxFieldValue - 8; len(body) > limit {
		body = body[:limit-3] + "..."
	}
	return "```\n" + body + "\n```"
}
