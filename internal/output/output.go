package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hookline/hookline/internal/core/store"
	"github.com/hookline/hookline/internal/rest"
	"github.com/hookline/hookline/internal/webhook"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// BucketRow is one rate limit bucket as shown to the operator. Live buckets
// carry queue information; stored buckets carry the last 429 time.
type BucketRow struct {
	Route      string     `json:"route"`
	Limit      int        `json:"limit"`
	Remaining  int        `json:"remaining"`
	ResetAt    time.Time  `json:"reset_at"`
	Queued     int        `json:"queued,omitempty"`
	Processing bool       `json:"processing,omitempty"`
	Last429At  *time.Time `json:"last_429_at,omitempty"`
}

// WebhookInfo is the displayable part of a webhook.
type WebhookInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	ChannelID     string `json:"channel_id,omitempty"`
	GuildID       string `json:"guild_id,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
}

// Formatter renders dispatcher and webhook data.
type Formatter interface {
	FormatBuckets(rows []BucketRow) (string, error)
	FormatMessage(msg *webhook.Message) (string, error)
	FormatWebhook(info WebhookInfo) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// RowsFromSnapshots converts live dispatcher buckets.
func RowsFromSnapshots(snapshots []rest.BucketSnapshot) []BucketRow {
	rows := make([]BucketRow, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, BucketRow{
			Route:      s.Route,
			Limit:      s.Limit,
			Remaining:  s.Remaining,
			ResetAt:    s.Reset,
			Queued:     s.Queued,
			Processing: s.Processing,
		})
	}
	sortRows(rows)
	return rows
}

// RowsFromEntries converts persisted buckets.
func RowsFromEntries(entries []store.BucketEntry) []BucketRow {
	rows := make([]BucketRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, BucketRow{
			Route:     e.Route,
			Limit:     e.State.Limit,
			Remaining: e.State.Remaining,
			ResetAt:   e.State.ResetAt,
			Last429At: e.State.Last429At,
		})
	}
	sortRows(rows)
	return rows
}

// InfoOf reads the display fields of a webhook.
func InfoOf(w *webhook.Webhook) WebhookInfo {
	if w == nil {
		return WebhookInfo{}
	}
	return WebhookInfo{
		ID:            w.ID(),
		Name:          w.Name(),
		Avatar:        w.Avatar(),
		ChannelID:     w.ChannelID(),
		GuildID:       w.GuildID(),
		ApplicationID: w.ApplicationID(),
	}
}

func sortRows(rows []BucketRow) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Route < rows[j].Route })
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func bucketStatus(row BucketRow, now time.Time) string {
	switch {
	case row.Processing:
		return "in flight"
	case row.Remaining > 0 || !row.ResetAt.After(now):
		return "open"
	default:
		return "exhausted"
	}
}

func truncate(value string, max int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

// messageFields lists the summary rows shared by the table and markdown
// renderings.
func messageFields(msg *webhook.Message) [][2]string {
	fields := [][2]string{
		{"ID", msg.ID},
		{"Channel", msg.ChannelID},
		{"Author", msg.Author.Tag()},
		{"Timestamp", msg.Timestamp},
	}
	if msg.EditedTimestamp != "" {
		fields = append(fields, [2]string{"Edited", msg.EditedTimestamp})
	}
	if msg.Content != "" {
		fields = append(fields, [2]string{"Content", truncate(msg.Content, 80)})
	}
	if len(msg.Embeds) > 0 {
		fields = append(fields, [2]string{"Embeds", fmt.Sprintf("%d", len(msg.Embeds))})
	}
	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			names = append(names, a.Filename)
		}
		fields = append(fields, [2]string{"Attachments", strings.Join(names, ", ")})
	}
	if msg.InThread {
		fields = append(fields, [2]string{"Thread", "yes"})
	}
	return fields
}

func webhookFields(info WebhookInfo) [][2]string {
	fields := [][2]string{{"ID", info.ID}}
	optional := [][2]string{
		{"Name", info.Name},
		{"Channel", info.ChannelID},
		{"Guild", info.GuildID},
		{"Application", info.ApplicationID},
		{"Avatar", info.Avatar},
	}
	for _, f := range optional {
		if f[1] != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
