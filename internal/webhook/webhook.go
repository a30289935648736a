// Package webhook is a client for a single execute-only webhook. All calls
// go through a rest.Dispatcher and inherit its rate limiting.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hookline/hookline/internal/rest"
)

var (
	ErrInvalidURL            = errors.New("invalid webhook URL")
	ErrMissingCredentials    = errors.New("webhook ID and token are required")
	ErrNoContent             = errors.New("no content, embeds or files")
	ErrThreadConflict        = errors.New("cannot create a thread (thread_name) and send to an existing one (thread_id)")
	ErrComponentsUnsupported = errors.New("cannot send components in a webhook without an application ID")
	ErrNoValidOptions        = errors.New("no valid options were given")
	ErrDeleted               = errors.New("webhook has been deleted")
)

// Options configures a Webhook. When Dispatcher is nil a private one is
// built from Rest.
type Options struct {
	ID         string
	Token      string
	Dispatcher *rest.Dispatcher
	Rest       rest.Options
}

// EditOptions changes the webhook's default identity.
type EditOptions struct {
	Name string
	// Avatar is a data URI image.
	Avatar string
}

// MessageOptions describes a message to send.
type MessageOptions struct {
	Content         string
	Username        string
	AvatarURL       string
	TTS             bool
	Embeds          []Embed
	AllowedMentions *AllowedMentions
	Components      json.RawMessage
	Attachments     []AttachmentOptions
	Files           []rest.File
	Flags           int
	SuppressEmbeds  bool

	// ThreadID posts into an existing thread; ThreadName creates a forum
	// post. They are mutually exclusive.
	ThreadID   string
	ThreadName string
}

// EditMessageOptions describes changes to a sent message.
type EditMessageOptions struct {
	Content         string
	Embeds          []Embed
	AllowedMentions *AllowedMentions
	Components      json.RawMessage
	Attachments     []AttachmentOptions
	Files           []rest.File
	Flags           int
	ThreadID        string
}

type messagePayload struct {
	Content         string              `json:"content,omitempty"`
	Username        string              `json:"username,omitempty"`
	AvatarURL       string              `json:"avatar_url,omitempty"`
	TTS             bool                `json:"tts,omitempty"`
	Embeds          []Embed             `json:"embeds,omitempty"`
	AllowedMentions *AllowedMentions    `json:"allowed_mentions,omitempty"`
	Components      json.RawMessage     `json:"components,omitempty"`
	Attachments     []AttachmentOptions `json:"attachments,omitempty"`
	Flags           int                 `json:"flags,omitempty"`
	ThreadName      string              `json:"thread_name,omitempty"`
}

// Webhook is a handle on one webhook. It is safe for concurrent use.
type Webhook struct {
	dispatcher *rest.Dispatcher

	mu            sync.RWMutex
	id            string
	token         string
	name          string
	avatar        string
	channelID     string
	guildID       string
	applicationID string
}

// FromURL builds a webhook from its execute URL, e.g.
// https://discord.com/api/webhooks/<id>/<token>.
func FromURL(raw string, opts Options) (*Webhook, error) {
	target, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	valid := target.Scheme == "https" &&
		target.Hostname() == "discord.com" &&
		(strings.HasPrefix(target.Path, "/api/webhooks/") || strings.HasPrefix(target.Path, "/api/v10/webhooks"))
	if !valid {
		return nil, ErrInvalidURL
	}

	segments := strings.Split(target.Path, "/")
	if len(segments) < 2 {
		return nil, ErrInvalidURL
	}
	opts.ID = segments[len(segments)-2]
	opts.Token = segments[len(segments)-1]
	return New(opts)
}

// New returns a webhook for the given credentials.
func New(opts Options) (*Webhook, error) {
	if strings.TrimSpace(opts.ID) == "" || strings.TrimSpace(opts.Token) == "" {
		return nil, ErrMissingCredentials
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = rest.NewDispatcher(opts.Rest)
	}
	return &Webhook{dispatcher: dispatcher, id: opts.ID, token: opts.Token}, nil
}

func (w *Webhook) ID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.id
}

func (w *Webhook) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

func (w *Webhook) Avatar() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.avatar
}

func (w *Webhook) ChannelID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.channelID
}

func (w *Webhook) GuildID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.guildID
}

func (w *Webhook) ApplicationID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.applicationID
}

// Dispatcher returns the dispatcher the webhook sends through.
func (w *Webhook) Dispatcher() *rest.Dispatcher {
	return w.dispatcher
}

// Fetch loads the webhook's metadata.
func (w *Webhook) Fetch(ctx context.Context) error {
	path, err := w.path()
	if err != nil {
		return err
	}
	resp, err := w.dispatcher.Send(ctx, rest.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	return w.patch(resp)
}

// Edit changes the webhook's default name or avatar.
func (w *Webhook) Edit(ctx context.Context, opts EditOptions) error {
	if opts.Name == "" && opts.Avatar == "" {
		return ErrNoValidOptions
	}
	path, err := w.path()
	if err != nil {
		return err
	}

	body := map[string]string{}
	if opts.Name != "" {
		body["name"] = opts.Name
	}
	if opts.Avatar != "" {
		body["avatar"] = opts.Avatar
	}
	resp, err := w.dispatcher.Send(ctx, rest.Request{Method: http.MethodPatch, Path: path, Body: body})
	if err != nil {
		return err
	}
	return w.patch(resp)
}

// Delete removes the webhook. The handle is unusable afterwards.
func (w *Webhook) Delete(ctx context.Context) error {
	path, err := w.path()
	if err != nil {
		return err
	}
	if _, err := w.dispatcher.Send(ctx, rest.Request{Method: http.MethodDelete, Path: path}); err != nil {
		return err
	}

	w.mu.Lock()
	w.id = ""
	w.token = ""
	w.mu.Unlock()
	return nil
}

// SendMessage executes the webhook and returns the created message.
func (w *Webhook) SendMessage(ctx context.Context, opts MessageOptions) (*Message, error) {
	if opts.Content == "" && len(opts.Embeds) == 0 && len(opts.Files) == 0 {
		return nil, ErrNoContent
	}
	if opts.ThreadID != "" && opts.ThreadName != "" {
		return nil, ErrThreadConflict
	}

	// Only enforced once Fetch has told us who owns the webhook.
	w.mu.RLock()
	userOwned := w.channelID != "" && w.applicationID == ""
	w.mu.RUnlock()
	if userOwned && len(opts.Components) > 0 {
		return nil, ErrComponentsUnsupported
	}

	if opts.SuppressEmbeds && opts.Flags == 0 {
		opts.Flags = MessageFlagSuppressEmbeds
	}

	path, err := w.path()
	if err != nil {
		return nil, err
	}

	resp, err := w.dispatcher.Send(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   threadTarget(path, opts.ThreadID),
		Body: messagePayload{
			Content:         opts.Content,
			Username:        opts.Username,
			AvatarURL:       opts.AvatarURL,
			TTS:             opts.TTS,
			Embeds:          opts.Embeds,
			AllowedMentions: opts.AllowedMentions,
			Components:      opts.Components,
			Attachments:     opts.Attachments,
			Flags:           opts.Flags,
			ThreadName:      opts.ThreadName,
		},
		Files: opts.Files,
	})
	if err != nil {
		return nil, err
	}
	return w.message(resp, opts.ThreadID != "" || opts.ThreadName != "")
}

// FetchMessage loads a message previously sent by this webhook.
func (w *Webhook) FetchMessage(ctx context.Context, messageID, threadID string) (*Message, error) {
	path, err := w.messagePath(messageID)
	if err != nil {
		return nil, err
	}
	resp, err := w.dispatcher.Send(ctx, rest.Request{Method: http.MethodGet, Path: threadTarget(path, threadID)})
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("message %q not found", messageID)
	}
	return w.message(resp, threadID != "")
}

// EditMessage changes a message previously sent by this webhook.
func (w *Webhook) EditMessage(ctx context.Context, messageID string, opts EditMessageOptions) (*Message, error) {
	if opts.Content == "" && len(opts.Embeds) == 0 && len(opts.Components) == 0 &&
		len(opts.Files) == 0 && len(opts.Attachments) == 0 {
		return nil, ErrNoValidOptions
	}

	path, err := w.messagePath(messageID)
	if err != nil {
		return nil, err
	}
	resp, err := w.dispatcher.Send(ctx, rest.Request{
		Method: http.MethodPatch,
		Path:   threadTarget(path, opts.ThreadID),
		Body: messagePayload{
			Content:         opts.Content,
			Embeds:          opts.Embeds,
			AllowedMentions: opts.AllowedMentions,
			Components:      opts.Components,
			Attachments:     opts.Attachments,
			Flags:           opts.Flags,
		},
		Files: opts.Files,
	})
	if err != nil {
		return nil, err
	}
	return w.message(resp, opts.ThreadID != "")
}

// DeleteMessage removes a message previously sent by this webhook.
func (w *Webhook) DeleteMessage(ctx context.Context, messageID, threadID string) error {
	path, err := w.messagePath(messageID)
	if err != nil {
		return err
	}
	_, err = w.dispatcher.Send(ctx, rest.Request{Method: http.MethodDelete, Path: threadTarget(path, threadID)})
	return err
}

// Fetch reloads the message.
func (m *Message) Fetch(ctx context.Context) (*Message, error) {
	return m.webhook.FetchMessage(ctx, m.ID, m.threadID())
}

// Edit changes the message content.
func (m *Message) Edit(ctx context.Context, opts EditMessageOptions) (*Message, error) {
	if opts.ThreadID == "" {
		opts.ThreadID = m.threadID()
	}
	return m.webhook.EditMessage(ctx, m.ID, opts)
}

// Delete removes the message.
func (m *Message) Delete(ctx context.Context) error {
	return m.webhook.DeleteMessage(ctx, m.ID, m.threadID())
}

func (m *Message) threadID() string {
	if m.InThread {
		return m.ChannelID
	}
	return ""
}

func (w *Webhook) patch(resp *rest.Response) error {
	var data webhookData
	if err := resp.Decode(&data); err != nil {
		return fmt.Errorf("decode webhook: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if data.ApplicationID != "" {
		w.applicationID = data.ApplicationID
	}
	if data.Avatar != "" {
		w.avatar = data.Avatar
	}
	if data.Name != "" {
		w.name = data.Name
	}
	if data.ChannelID != "" {
		w.channelID = data.ChannelID
	}
	if data.GuildID != "" {
		w.guildID = data.GuildID
	}
	return nil
}

func (w *Webhook) message(resp *rest.Response, inThread bool) (*Message, error) {
	msg := &Message{}
	if err := resp.Decode(msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	msg.InThread = inThread
	msg.webhook = w
	return msg, nil
}

func (w *Webhook) path() (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.id == "" || w.token == "" {
		return "", ErrDeleted
	}
	return "/webhooks/" + url.PathEscape(w.id) + "/" + url.PathEscape(w.token), nil
}

func (w *Webhook) messagePath(messageID string) (string, error) {
	if strings.TrimSpace(messageID) == "" {
		return "", errors.New("message ID is required")
	}
	base, err := w.path()
	if err != nil {
		return "", err
	}
	return base + "/messages/" + url.PathEscape(messageID), nil
}

func threadTarget(path, threadID string) string {
	query := url.Values{"wait": []string{"true"}}
	if threadID != "" {
		query.Set("thread_id", threadID)
	}
	return path + "?" + query.Encode()
}
