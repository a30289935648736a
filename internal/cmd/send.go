package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/observability"
	"github.com/hookline/hookline/internal/output"
	"github.com/hookline/hookline/internal/webhook"
)

var sendCmd = &cobra.Command{
	Use:   "send [webhook-url]",
	Short: "Execute a webhook",
	Long: `Execute a webhook and print the created message.

Flags override fields read from --payload, a YAML or JSON file shaped like
the execute-webhook body.

Examples:
  hookline send https://discord.com/api/webhooks/<id>/<token> --content "deploy done"
  hookline send --id <id> --token <token> --payload release.yaml --file notes.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	addWebhookFlags(sendCmd)
	addOutputFlags(sendCmd)
	addMessageFlags(sendCmd)
}

func addMessageFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("payload", "", "YAML or JSON payload file (- for stdin)")
	flags.String("content", "", "Message content")
	flags.String("username", "", "Override the webhook username")
	flags.String("avatar-url", "", "Override the webhook avatar")
	flags.String("thread-id", "", "Post into an existing thread")
	flags.String("thread-name", "", "Create a forum post with this name")
	flags.StringArray("file", nil, "Attach a file (repeatable)")
	flags.Bool("tts", false, "Send as text-to-speech")
	flags.Bool("suppress-embeds", false, "Suppress link embeds")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	msgOpts, err := buildMessageOptions(cmd)
	if err != nil {
		return err
	}

	session := newDispatchSession(cmd.Context(), cfg)
	defer session.Close()

	wh, err := resolveWebhook(cmd, optionalArg(args), session.Dispatcher)
	if err != nil {
		return err
	}

	msg, err := wh.SendMessage(cmd.Context(), msgOpts)
	if err != nil {
		return err
	}
	observability.CLILogger.Debug("Message sent",
		zap.String("message_id", msg.ID),
		zap.String("channel_id", msg.ChannelID))

	return emit(cmd, "message-"+msg.ID, func(f output.Formatter) (string, error) {
		return f.FormatMessage(msg)
	})
}

// buildMessageOptions merges --payload with the individual flags. Flags
// that were set win.
func buildMessageOptions(cmd *cobra.Command) (webhook.MessageOptions, error) {
	var payload webhook.Payload
	if path, _ := cmd.Flags().GetString("payload"); strings.TrimSpace(path) != "" {
		loaded, err := loadPayload(strings.TrimSpace(path))
		if err != nil {
			return webhook.MessageOptions{}, err
		}
		payload = loaded
	}

	flags := cmd.Flags()
	stringFlags := map[string]*string{
		"content":     &payload.Content,
		"username":    &payload.Username,
		"avatar-url":  &payload.AvatarURL,
		"thread-id":   &payload.ThreadID,
		"thread-name": &payload.ThreadName,
	}
	for name, field := range stringFlags {
		if flags.Changed(name) {
			*field, _ = flags.GetString(name)
		}
	}
	if flags.Changed("tts") {
		payload.TTS, _ = flags.GetBool("tts")
	}
	if flags.Changed("suppress-embeds") {
		payload.SuppressEmbeds, _ = flags.GetBool("suppress-embeds")
	}

	opts := payload.Options()
	paths, _ := flags.GetStringArray("file")
	files, err := readFiles(paths)
	if err != nil {
		return webhook.MessageOptions{}, err
	}
	opts.Files = files
	return opts, nil
}
