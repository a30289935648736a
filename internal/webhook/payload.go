package webhook

import (
	"encoding/json"
	"fmt"
	"io"
)

// Payload is the wire form of an execute request as accepted by the relay
// endpoint and by payload files. ThreadID travels in the body here rather
// than the query string.
type Payload struct {
	Content         string           `json:"content,omitempty"`
	Username        string           `json:"username,omitempty"`
	AvatarURL       string           `json:"avatar_url,omitempty"`
	TTS             bool             `json:"tts,omitempty"`
	Embeds          []Embed          `json:"embeds,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
	Components      json.RawMessage  `json:"components,omitempty"`
	Flags           int              `json:"flags,omitempty"`
	SuppressEmbeds  bool             `json:"suppress_embeds,omitempty"`
	ThreadID        string           `json:"thread_id,omitempty"`
	ThreadName      string           `json:"thread_name,omitempty"`
}

// DecodePayload reads a JSON payload and rejects unknown fields.
func DecodePayload(r io.Reader) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// Options converts the payload into SendMessage options.
func (p Payload) Options() MessageOptions {
	return MessageOptions{
		Content:         p.Content,
		Username:        p.Username,
		AvatarURL:       p.AvatarURL,
		TTS:             p.TTS,
		Embeds:          p.Embeds,
		AllowedMentions: p.AllowedMentions,
		Components:      p.Components,
		Flags:           p.Flags,
		SuppressEmbeds:  p.SuppressEmbeds,
		ThreadID:        p.ThreadID,
		ThreadName:      p.ThreadName,
	}
}
