package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const cdnURL = "https://cdn.discordapp.com"

const defaultImageSize = 128

// MessageFlagSuppressEmbeds hides link embeds on a message. It is the only
// flag webhooks may set.
const MessageFlagSuppressEmbeds = 1 << 2

// User is the author or a mention of a message.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
	PublicFlags   int    `json:"public_flags,omitempty"`
}

// Tag returns username#discriminator.
func (u User) Tag() string {
	return u.Username + "#" + u.Discriminator
}

// Mention returns the inline mention markup for the user.
func (u User) Mention() string {
	return "<@" + u.ID + ">"
}

// AvatarURL returns the user's avatar, falling back to the default one.
func (u User) AvatarURL() string {
	return u.DynamicAvatarURL("png", defaultImageSize)
}

// DefaultAvatarURL returns the stock avatar picked from the discriminator.
func (u User) DefaultAvatarURL() string {
	n, _ := strconv.Atoi(u.Discriminator)
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnURL, n%5)
}

// DynamicAvatarURL returns the avatar in format at size. Animated avatars
// are always served as gif.
func (u User) DynamicAvatarURL(format string, size int) string {
	if u.Avatar == "" {
		return u.DefaultAvatarURL()
	}
	if strings.HasPrefix(u.Avatar, "a_") {
		format = "gif"
	}
	if format == "" {
		format = "png"
	}
	if size <= 0 {
		size = defaultImageSize
	}
	return fmt.Sprintf("%s/avatars/%s/%s.%s?size=%d", cdnURL, u.ID, u.Avatar, format, size)
}

func (u User) String() string {
	return fmt.Sprintf("%s (%s)", u.Tag(), u.ID)
}

// Emoji is a unicode or custom emoji. Only custom emojis have an ID.
type Emoji struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Animated bool   `json:"animated,omitempty"`
}

// URL returns the CDN image of a custom emoji, or "" for unicode emojis.
func (e Emoji) URL() string {
	if e.ID == "" {
		return ""
	}
	format := "png"
	if e.Animated {
		format = "gif"
	}
	return fmt.Sprintf("%s/emojis/%s.%s", cdnURL, e.ID, format)
}

// DynamicURL is URL with a size hint.
func (e Emoji) DynamicURL(size int) string {
	base := e.URL()
	if base == "" {
		return ""
	}
	if size <= 0 {
		size = defaultImageSize
	}
	return fmt.Sprintf("%s?size=%d", base, size)
}

// Reaction is an aggregated emoji reaction on a message.
type Reaction struct {
	Emoji Emoji `json:"emoji"`
	Count int   `json:"count"`
	Me    bool  `json:"me"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Description string `json:"description,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	URL         string `json:"url"`
	ProxyURL    string `json:"proxy_url"`
	Height      int    `json:"height,omitempty"`
	Width       int    `json:"width,omitempty"`
}

// AttachmentOptions keeps or describes an attachment when editing.
type AttachmentOptions struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// AllowedMentions restricts who a message may ping.
type AllowedMentions struct {
	Parse       []string `json:"parse,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Users       []string `json:"users,omitempty"`
	RepliedUser bool     `json:"replied_user,omitempty"`
}

// Embed is rich content attached to a message.
type Embed struct {
	Title       string         `json:"title,omitempty"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Color       int            `json:"color,omitempty"`
	Footer      *EmbedFooter   `json:"footer,omitempty"`
	Image       *EmbedImage    `json:"image,omitempty"`
	Thumbnail   *EmbedImage    `json:"thumbnail,omitempty"`
	Video       *EmbedImage    `json:"video,omitempty"`
	Provider    *EmbedProvider `json:"provider,omitempty"`
	Author      *EmbedAuthor   `json:"author,omitempty"`
	Fields      []EmbedField   `json:"fields,omitempty"`
}

type EmbedFooter struct {
	Text         string `json:"text"`
	IconURL      string `json:"icon_url,omitempty"`
	ProxyIconURL string `json:"proxy_icon_url,omitempty"`
}

type EmbedImage struct {
	URL      string `json:"url,omitempty"`
	ProxyURL string `json:"proxy_url,omitempty"`
	Height   int    `json:"height,omitempty"`
	Width    int    `json:"width,omitempty"`
}

type EmbedProvider struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

type EmbedAuthor struct {
	Name         string `json:"name"`
	URL          string `json:"url,omitempty"`
	IconURL      string `json:"icon_url,omitempty"`
	ProxyIconURL string `json:"proxy_icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Message is a message sent by a webhook.
type Message struct {
	ID              string          `json:"id"`
	ChannelID       string          `json:"channel_id"`
	ApplicationID   string          `json:"application_id,omitempty"`
	WebhookID       string          `json:"webhook_id,omitempty"`
	Author          User            `json:"author"`
	Content         string          `json:"content,omitempty"`
	Timestamp       string          `json:"timestamp"`
	EditedTimestamp string          `json:"edited_timestamp,omitempty"`
	TTS             bool            `json:"tts"`
	MentionEveryone bool            `json:"mention_everyone,omitempty"`
	Mentions        []User          `json:"mentions,omitempty"`
	MentionRoles    []string        `json:"mention_roles,omitempty"`
	Attachments     []Attachment    `json:"attachments,omitempty"`
	Embeds          []Embed         `json:"embeds,omitempty"`
	Reactions       []Reaction      `json:"reactions,omitempty"`
	Components      json.RawMessage `json:"components,omitempty"`
	Pinned          bool            `json:"pinned,omitempty"`
	Position        int             `json:"position,omitempty"`
	Flags           int             `json:"flags,omitempty"`

	// InThread is set when the message was addressed through a thread.
	InThread bool `json:"-"`

	webhook *Webhook
}

// webhookData is the webhook object returned by fetch and edit.
type webhookData struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar"`
	ChannelID     string `json:"channel_id"`
	GuildID       string `json:"guild_id"`
	ApplicationID string `json:"application_id"`
}
