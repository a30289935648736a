package rest

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	channelID = "123456789012345678"
	guildID   = "223456789012345678"
	messageID = "323456789012345678"
	emojiID   = "423456789012345678"
	webhookID = "523456789012345678"
)

func TestClassify(t *testing.T) {
	token := strings.Repeat("a", 68)

	cases := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{"major parameter kept", http.MethodPost, "/channels/" + channelID + "/messages", "/channels/" + channelID + "/messages"},
		{"minor parameter collapsed", http.MethodGet, "/guilds/" + guildID + "/emojis/" + emojiID, "/guilds/" + guildID + "/emojis/:id"},
		{"reaction collapsed", http.MethodPut, "/channels/" + channelID + "/messages/" + messageID + "/reactions/%F0%9F%91%8D/@me", "/channels/" + channelID + "/messages/:id/reactions/:id/@me"},
		{"webhook token collapsed", http.MethodPost, "/webhooks/" + webhookID + "/" + token, "/webhooks/" + webhookID + "/:token"},
		{"webhook message", http.MethodPatch, "/webhooks/" + webhookID + "/" + token + "/messages/" + messageID, "/webhooks/" + webhookID + "/:token/messages/:id"},
		{"interaction callback", http.MethodPost, "/interactions/" + webhookID + "/" + token + "/callback", "/interactions/" + webhookID + "/:token/callback"},
		{"delete message split", http.MethodDelete, "/channels/" + channelID + "/messages/" + messageID, "DELETE/channels/" + channelID + "/messages/:id"},
		{"query ignored", http.MethodGet, "/channels/" + channelID + "/messages?limit=50", "/channels/" + channelID + "/messages"},
		{"short ids untouched", http.MethodGet, "/users/12/profile", "/users/12/profile"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.path, tc.method))
		})
	}
}

func TestClassifyDeleteDistinctFromEdit(t *testing.T) {
	path := "/channels/" + channelID + "/messages/" + messageID
	require.NotEqual(t, Classify(path, http.MethodDelete), Classify(path, http.MethodPatch))
	require.Equal(t, Classify(path, http.MethodGet), Classify(path, http.MethodPatch))
}

func TestClassifyIdempotent(t *testing.T) {
	token := strings.Repeat("Z", 70)
	paths := []string{
		"/channels/" + channelID + "/messages/" + messageID,
		"/guilds/" + guildID + "/members/" + emojiID,
		"/webhooks/" + webhookID + "/" + token + "/messages/" + messageID,
		"/channels/" + channelID + "/messages/" + messageID + "/reactions/abc",
	}
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		for _, p := range paths {
			once := Classify(p, method)
			require.Equal(t, once, Classify(once, method), "%s %s", method, p)
		}
	}
}
