package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline/hookline/internal/webhook"
)

func newSendFlagsCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "send"}
	addMessageFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestBuildMessageOptionsFlagsOverridePayload(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "payload.yaml")
	require.NoError(t, os.WriteFile(payloadPath, []byte("content: from payload\nusername: payload-user\ntts: true\n"), 0o600))
	attachment := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(attachment, []byte("log"), 0o600))

	cmd := newSendFlagsCmd(t,
		"--payload", payloadPath,
		"--content", "from flag",
		"--tts=false",
		"--file", attachment,
	)

	opts, err := buildMessageOptions(cmd)
	require.NoError(t, err)

	assert.Equal(t, "from flag", opts.Content)
	assert.Equal(t, "payload-user", opts.Username)
	assert.False(t, opts.TTS)
	require.Len(t, opts.Files, 1)
	assert.Equal(t, "log.txt", opts.Files[0].Name)
}

func TestBuildMessageOptionsWithoutPayload(t *testing.T) {
	cmd := newSendFlagsCmd(t, "--content", "hi", "--thread-name", "release", "--suppress-embeds")

	opts, err := buildMessageOptions(cmd)
	require.NoError(t, err)
	assert.Equal(t, "hi", opts.Content)
	assert.Equal(t, "release", opts.ThreadName)
	assert.True(t, opts.SuppressEmbeds)
	assert.Empty(t, opts.Files)
}

func TestSendCommandEndToEnd(t *testing.T) {
	var calls atomic.Int32
	bodies := make(chan map[string]any, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/webhooks/223344556677889900/secret"), r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		bodies <- body

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"998877665544332211","channel_id":"1","content":"deploy done","timestamp":"2026-10-17T10:00:00+00:00","author":{"id":"223344556677889900","username":"ci","discriminator":"0000"}}`)
	}))
	t.Cleanup(upstream.Close)

	outPath := filepath.Join(t.TempDir(), "message.json")
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	rootCmd.SetArgs([]string{
		"send",
		"--base-url", upstream.URL,
		"--store", "none",
		"--id", "223344556677889900",
		"--token", "secret",
		"--content", "deploy done",
		"-o", "json",
		"--out", outPath,
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "deploy done", (<-bodies)["content"])

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var msg webhook.Message
	require.NoError(t, json.Unmarshal(written, &msg))
	assert.Equal(t, "998877665544332211", msg.ID)
	assert.Equal(t, "deploy done", msg.Content)
	assert.Empty(t, stdout.String())
}
