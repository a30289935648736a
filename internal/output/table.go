package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hookline/hookline/internal/webhook"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct {
	// Now overrides the clock used to label buckets.
	Now func() time.Time
}

// FormatBuckets renders buckets as a table.
func (f *TableFormatter) FormatBuckets(rows []BucketRow) (string, error) {
	t := bucketWriter(rows, f.now())
	t.SetStyle(table.StyleRounded)
	return t.Render(), nil
}

// FormatMessage renders a message summary as a table.
func (f *TableFormatter) FormatMessage(msg *webhook.Message) (string, error) {
	if msg == nil {
		return "", nil
	}
	t := fieldWriter(messageFields(msg))
	t.SetStyle(table.StyleRounded)
	return t.Render(), nil
}

// FormatWebhook renders webhook details as a table.
func (f *TableFormatter) FormatWebhook(info WebhookInfo) (string, error) {
	t := fieldWriter(webhookFields(info))
	t.SetStyle(table.StyleRounded)
	return t.Render(), nil
}

func (f *TableFormatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func bucketWriter(rows []BucketRow, now time.Time) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Route", "Limit", "Remaining", "Reset", "Queued", "Status", "Last 429"})

	exhausted := 0
	for _, row := range rows {
		status := bucketStatus(row, now)
		if status == "exhausted" {
			exhausted++
		}
		t.AppendRow(table.Row{
			row.Route,
			row.Limit,
			row.Remaining,
			formatTime(row.ResetAt),
			row.Queued,
			status,
			formatOptionalTime(row.Last429At),
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d buckets", len(rows)),
		"",
		"",
		"",
		"",
		fmt.Sprintf("%d exhausted", exhausted),
		"",
	})
	return t
}

func fieldWriter(fields [][2]string) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, f := range fields {
		t.AppendRow(table.Row{f[0], f[1]})
	}
	return t
}
