package output

import (
	"encoding/json"

	"github.com/hookline/hookline/internal/webhook"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatBuckets renders buckets as a JSON array.
func (f *JSONFormatter) FormatBuckets(rows []BucketRow) (string, error) {
	if rows == nil {
		rows = []BucketRow{}
	}
	return f.marshal(rows)
}

// FormatMessage renders the full message object as JSON.
func (f *JSONFormatter) FormatMessage(msg *webhook.Message) (string, error) {
	if msg == nil {
		return "", nil
	}
	return f.marshal(msg)
}

// FormatWebhook renders webhook details as JSON.
func (f *JSONFormatter) FormatWebhook(info WebhookInfo) (string, error) {
	return f.marshal(info)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
