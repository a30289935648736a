package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/output"
	"github.com/hookline/hookline/internal/webhook"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Inspect and manage a webhook",
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info [webhook-url]",
	Short: "Fetch webhook details",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWebhook(cmd, optionalArg(args), func(wh *webhook.Webhook) error {
			if err := wh.Fetch(cmd.Context()); err != nil {
				return err
			}
			return emitWebhook(cmd, wh)
		})
	},
}

var webhookEditCmd = &cobra.Command{
	Use:   "edit [webhook-url]",
	Short: "Change the webhook name or avatar",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		avatarPath, _ := cmd.Flags().GetString("avatar")

		opts := webhook.EditOptions{Name: strings.TrimSpace(name)}
		if strings.TrimSpace(avatarPath) != "" {
			uri, err := avatarDataURI(strings.TrimSpace(avatarPath))
			if err != nil {
				return err
			}
			opts.Avatar = uri
		}

		return withWebhook(cmd, optionalArg(args), func(wh *webhook.Webhook) error {
			if err := wh.Edit(cmd.Context(), opts); err != nil {
				return err
			}
			return emitWebhook(cmd, wh)
		})
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete [webhook-url]",
	Short: "Delete the webhook",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("deleting a webhook cannot be undone; pass --yes to confirm")
		}
		return withWebhook(cmd, optionalArg(args), func(wh *webhook.Webhook) error {
			id := wh.ID()
			if err := wh.Delete(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted webhook %s\n", id)
			return err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{webhookInfoCmd, webhookEditCmd, webhookDeleteCmd} {
		addWebhookFlags(c)
		webhookCmd.AddCommand(c)
	}
	addOutputFlags(webhookInfoCmd)
	addOutputFlags(webhookEditCmd)

	webhookEditCmd.Flags().String("name", "", "New default username")
	webhookEditCmd.Flags().String("avatar", "", "Image file to use as the default avatar")
	webhookDeleteCmd.Flags().Bool("yes", false, "Confirm deletion")

	rootCmd.AddCommand(webhookCmd)
}

// withWebhook runs fn against a webhook bound to a fresh dispatch session.
func withWebhook(cmd *cobra.Command, rawURL string, fn func(*webhook.Webhook) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session := newDispatchSession(cmd.Context(), cfg)
	defer session.Close()

	wh, err := resolveWebhook(cmd, rawURL, session.Dispatcher)
	if err != nil {
		return err
	}
	return fn(wh)
}

func emitWebhook(cmd *cobra.Command, wh *webhook.Webhook) error {
	info := output.InfoOf(wh)
	return emit(cmd, "webhook-"+info.ID, func(f output.Formatter) (string, error) {
		return f.FormatWebhook(info)
	})
}

// avatarDataURI encodes an image file the way the API expects avatars.
func avatarDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	mime := http.DetectContentType(data)
	switch mime {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
	default:
		return "", fmt.Errorf("avatar must be a png, jpeg, gif or webp image, got %s", mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
