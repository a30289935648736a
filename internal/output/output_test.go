package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hookline/hookline/internal/core"
	"github.com/hookline/hookline/internal/core/store"
	"github.com/hookline/hookline/internal/rest"
	"github.com/hookline/hookline/internal/webhook"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestRowsFromSnapshotsSorted(t *testing.T) {
	rows := RowsFromSnapshots([]rest.BucketSnapshot{
		{Route: "/webhooks/1/tok", Limit: 5, Remaining: 4, Queued: 2, Processing: true},
		{Route: "/channels/9/messages", Limit: 5, Remaining: 0, Reset: fixedNow.Add(time.Second)},
	})

	require.Len(t, rows, 2)
	require.Equal(t, "/channels/9/messages", rows[0].Route)
	require.Equal(t, 2, rows[1].Queued)
	require.True(t, rows[1].Processing)
}

func TestRowsFromEntries(t *testing.T) {
	hit := fixedNow.Add(-time.Minute)
	rows := RowsFromEntries([]store.BucketEntry{
		{Route: "/b", State: core.BucketState{Limit: 5, Remaining: 3, ResetAt: fixedNow, Last429At: &hit}},
		{Route: "/a", State: core.BucketState{Limit: 1, Remaining: 1}},
	})

	require.Equal(t, "/a", rows[0].Route)
	require.NotNil(t, rows[1].Last429At)
	require.Equal(t, hit, *rows[1].Last429At)
}

func TestTableFormatterBuckets(t *testing.T) {
	f := &TableFormatter{Now: func() time.Time { return fixedNow }}
	rendered, err := f.FormatBuckets([]BucketRow{
		{Route: "/channels/9/messages", Limit: 5, Remaining: 0, ResetAt: fixedNow.Add(time.Second)},
		{Route: "/webhooks/1/tok", Limit: 5, Remaining: 5},
	})
	require.NoError(t, err)
	require.Contains(t, rendered, "/channels/9/messages")
	require.Contains(t, rendered, "exhausted")
	require.Contains(t, rendered, "open")
	// footers are upper-cased by the rounded style
	lower := strings.ToLower(rendered)
	require.Contains(t, lower, "2 buckets")
	require.Contains(t, lower, "1 exhausted")
}

func TestBucketStatus(t *testing.T) {
	require.Equal(t, "in flight", bucketStatus(BucketRow{Processing: true}, fixedNow))
	require.Equal(t, "open", bucketStatus(BucketRow{Remaining: 1}, fixedNow))
	require.Equal(t, "open", bucketStatus(BucketRow{ResetAt: fixedNow.Add(-time.Second)}, fixedNow))
	require.Equal(t, "exhausted", bucketStatus(BucketRow{ResetAt: fixedNow.Add(time.Second)}, fixedNow))
}

func TestFormatters(t *testing.T) {
	msg := &webhook.Message{
		ID:        "112233445566778899",
		ChannelID: "998877665544332211",
		Author:    webhook.User{ID: "1", Username: "relay", Discriminator: "0000"},
		Content:   "deploy finished | ok",
		Timestamp: "2026-03-01T12:00:00+00:00",
		Attachments: []webhook.Attachment{
			{ID: "5", Filename: "report.txt"},
		},
	}

	formatters := map[Format]Formatter{
		FormatTable:    NewFormatter(FormatTable),
		FormatMarkdown: NewFormatter(FormatMarkdown),
		FormatJSON:     NewFormatter(FormatJSON),
	}

	for format, formatter := range formatters {
		t.Run(string(format), func(t *testing.T) {
			rendered, err := formatter.FormatMessage(msg)
			require.NoError(t, err)
			require.Contains(t, rendered, "112233445566778899")
			require.Contains(t, rendered, "report.txt")
		})
	}

	rendered, err := NewFormatter(FormatMarkdown).FormatMessage(msg)
	require.NoError(t, err)
	require.Contains(t, rendered, "## Message 112233445566778899")
	require.Contains(t, rendered, "deploy finished \\| ok")
}

func TestJSONFormatterBuckets(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatBuckets(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", rendered)

	rendered, err = NewFormatter(FormatJSON).FormatBuckets([]BucketRow{{Route: "/a", Limit: 2, Remaining: 1, ResetAt: fixedNow}})
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "/a", decoded[0]["route"])
	require.NotContains(t, decoded[0], "last_429_at")
}

func TestFormatWebhook(t *testing.T) {
	info := WebhookInfo{ID: "123456789012345678", Name: "alerts", ChannelID: "42"}

	rendered, err := NewFormatter(FormatTable).FormatWebhook(info)
	require.NoError(t, err)
	require.Contains(t, rendered, "alerts")
	require.NotContains(t, rendered, "Guild")

	rendered, err = NewFormatter(FormatMarkdown).FormatWebhook(info)
	require.NoError(t, err)
	require.Contains(t, rendered, "## Webhook alerts")
}

func TestInfoOfNil(t *testing.T) {
	require.Equal(t, WebhookInfo{}, InfoOf(nil))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 10))
	require.Equal(t, "abcd...", truncate("abcdefghij", 7))
	require.Equal(t, "a b", truncate("a\nb", 10))
}
