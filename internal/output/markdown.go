package output

import (
	"strings"
	"time"

	"github.com/hookline/hookline/internal/webhook"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct {
	Now func() time.Time
}

// FormatBuckets renders buckets as Markdown.
func (f *MarkdownFormatter) FormatBuckets(rows []BucketRow) (string, error) {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	var sb strings.Builder
	sb.WriteString("## Rate limit buckets\n\n")
	sb.WriteString(bucketWriter(rows, now).RenderMarkdown())
	sb.WriteString("\n")
	return sb.String(), nil
}

// FormatMessage renders a message summary as Markdown.
func (f *MarkdownFormatter) FormatMessage(msg *webhook.Message) (string, error) {
	if msg == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Message " + escapeMarkdownCell(msg.ID) + "\n\n")
	sb.WriteString(fieldWriter(messageFields(msg)).RenderMarkdown())
	sb.WriteString("\n")
	return sb.String(), nil
}

// FormatWebhook renders webhook details as Markdown.
func (f *MarkdownFormatter) FormatWebhook(info WebhookInfo) (string, error) {
	var sb strings.Builder
	title := info.Name
	if title == "" {
		title = info.ID
	}
	sb.WriteString("## Webhook " + escapeMarkdownCell(title) + "\n\n")
	sb.WriteString(fieldWriter(webhookFields(info)).RenderMarkdown())
	sb.WriteString("\n")
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
