package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/output"
	"github.com/hookline/hookline/internal/webhook"
)

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Fetch, edit or delete a message sent by a webhook",
}

var messageFetchCmd = &cobra.Command{
	Use:   "fetch [webhook-url] <message-id>",
	Short: "Fetch a message",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, messageID := messageArgs(args)
		threadID, _ := cmd.Flags().GetString("thread-id")
		return withWebhook(cmd, rawURL, func(wh *webhook.Webhook) error {
			msg, err := wh.FetchMessage(cmd.Context(), messageID, strings.TrimSpace(threadID))
			if err != nil {
				return err
			}
			return emitMessage(cmd, msg)
		})
	},
}

var messageEditCmd = &cobra.Command{
	Use:   "edit [webhook-url] <message-id>",
	Short: "Edit a message",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, messageID := messageArgs(args)
		opts, err := buildEditOptions(cmd)
		if err != nil {
			return err
		}
		return withWebhook(cmd, rawURL, func(wh *webhook.Webhook) error {
			msg, err := wh.EditMessage(cmd.Context(), messageID, opts)
			if err != nil {
				return err
			}
			return emitMessage(cmd, msg)
		})
	},
}

var messageDeleteCmd = &cobra.Command{
	Use:   "delete [webhook-url] <message-id>",
	Short: "Delete a message",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, messageID := messageArgs(args)
		threadID, _ := cmd.Flags().GetString("thread-id")
		return withWebhook(cmd, rawURL, func(wh *webhook.Webhook) error {
			if err := wh.DeleteMessage(cmd.Context(), messageID, strings.TrimSpace(threadID)); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted message %s\n", messageID)
			return err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{messageFetchCmd, messageEditCmd, messageDeleteCmd} {
		addWebhookFlags(c)
		c.Flags().String("thread-id", "", "Thread the message lives in")
		messageCmd.AddCommand(c)
	}
	addOutputFlags(messageFetchCmd)
	addOutputFlags(messageEditCmd)

	messageEditCmd.Flags().String("content", "", "Replacement content")
	messageEditCmd.Flags().String("payload", "", "YAML or JSON file with content, embeds or components")
	messageEditCmd.Flags().StringArray("file", nil, "Attach a file (repeatable)")

	rootCmd.AddCommand(messageCmd)
}

func messageArgs(args []string) (rawURL, messageID string) {
	if len(args) == 2 {
		return strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	}
	return "", strings.TrimSpace(args[0])
}

func emitMessage(cmd *cobra.Command, msg *webhook.Message) error {
	return emit(cmd, "message-"+msg.ID, func(f output.Formatter) (string, error) {
		return f.FormatMessage(msg)
	})
}

func buildEditOptions(cmd *cobra.Command) (webhook.EditMessageOptions, error) {
	var payload webhook.Payload
	if path, _ := cmd.Flags().GetString("payload"); strings.TrimSpace(path) != "" {
		loaded, err := loadPayload(strings.TrimSpace(path))
		if err != nil {
			return webhook.EditMessageOptions{}, err
		}
		payload = loaded
	}
	if cmd.Flags().Changed("content") {
		payload.Content, _ = cmd.Flags().GetString("content")
	}
	threadID, _ := cmd.Flags().GetString("thread-id")
	paths, _ := cmd.Flags().GetStringArray("file")
	files, err := readFiles(paths)
	if err != nil {
		return webhook.EditMessageOptions{}, err
	}

	return webhook.EditMessageOptions{
		Content:         payload.Content,
		Embeds:          payload.Embeds,
		AllowedMentions: payload.AllowedMentions,
		Components:      payload.Components,
		Files:           files,
		Flags:           payload.Flags,
		ThreadID:        strings.TrimSpace(threadID),
	}, nil
}
