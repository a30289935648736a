package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hookline/hookline/internal/rest"
	"github.com/hookline/hookline/internal/webhook"
)

// addWebhookFlags registers --id and --token, the alternative to passing a
// webhook URL. They are required when --base-url points somewhere other
// than the public API.
func addWebhookFlags(cmd *cobra.Command) {
	cmd.Flags().String("id", "", "Webhook ID (instead of a webhook URL)")
	cmd.Flags().String("token", "", "Webhook token (instead of a webhook URL)")
}

// resolveWebhook builds the webhook from a URL argument or from --id and
// --token.
func resolveWebhook(cmd *cobra.Command, rawURL string, d *rest.Dispatcher) (*webhook.Webhook, error) {
	id, _ := cmd.Flags().GetString("id")
	token, _ := cmd.Flags().GetString("token")
	id, token = strings.TrimSpace(id), strings.TrimSpace(token)

	switch {
	case rawURL != "" && (id != "" || token != ""):
		return nil, fmt.Errorf("pass either a webhook URL or --id/--token, not both")
	case rawURL != "":
		return webhook.FromURL(rawURL, webhook.Options{Dispatcher: d})
	default:
		return webhook.New(webhook.Options{ID: id, Token: token, Dispatcher: d})
	}
}

// loadPayload reads a YAML or JSON payload file; "-" reads stdin. YAML is
// normalised through JSON so field names match the wire format.
func loadPayload(path string) (webhook.Payload, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return webhook.Payload{}, fmt.Errorf("read payload: %w", err)
	}
	return parsePayload(raw)
}

func parsePayload(raw []byte) (webhook.Payload, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return webhook.Payload{}, fmt.Errorf("parse payload: %w", err)
	}
	if doc == nil {
		return webhook.Payload{}, nil
	}
	if _, ok := doc.(map[string]any); !ok {
		return webhook.Payload{}, fmt.Errorf("parse payload: expected a mapping at the top level")
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return webhook.Payload{}, fmt.Errorf("parse payload: %w", err)
	}
	return webhook.DecodePayload(strings.NewReader(string(normalized)))
}

// readFiles loads attachments named on the command line.
func readFiles(paths []string) ([]rest.File, error) {
	files := make([]rest.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		files = append(files, rest.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}
