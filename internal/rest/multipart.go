package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const multipartBoundary = "-------------discord-multihook"

// ErrMultipartFinished is returned by Attach once Finish has been called.
var ErrMultipartFinished = errors.New("cannot add segments to a finished multipart body")

// MultipartData builds a multipart/form-data body as a list of segments.
type MultipartData struct {
	segments [][]byte
	finished bool
}

// NewMultipartData returns an empty builder.
func NewMultipartData() *MultipartData {
	return &MultipartData{}
}

// ContentType is the header value matching the encoded body.
func (m *MultipartData) ContentType() string {
	return "multipart/form-data; boundary=" + multipartBoundary
}

// Attach appends one form field. []byte values are sent as an octet stream,
// strings verbatim, and anything else as JSON. A nil value is skipped.
func (m *MultipartData) Attach(field string, data any, filename string) (*MultipartData, error) {
	if m.finished {
		return m, ErrMultipartFinished
	}
	if data == nil {
		return m, nil
	}

	var (
		payload     []byte
		contentType string
	)
	switch v := data.(type) {
	case []byte:
		payload = v
		contentType = "application/octet-stream"
	case string:
		payload = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return m, fmt.Errorf("encode multipart field %q: %w", field, err)
		}
		payload = encoded
		contentType = "application/json"
	}

	var header strings.Builder
	header.WriteString("\r\n--" + multipartBoundary + "\r\n")
	header.WriteString(fmt.Sprintf("Content-Disposition: form-data; name=%q", field))
	if filename != "" {
		header.WriteString(fmt.Sprintf("; filename=%q", filename))
	}
	header.WriteString("\r\n")
	if contentType != "" {
		header.WriteString("Content-Type: " + contentType + "\r\n")
	}
	header.WriteString("\r\n")

	m.segments = append(m.segments, []byte(header.String()), payload)
	return m, nil
}

// Finish writes the closing boundary and freezes the builder. Calling it
// again returns the same segments.
func (m *MultipartData) Finish() [][]byte {
	if !m.finished {
		m.segments = append(m.segments, []byte("\r\n--"+multipartBoundary+"--"))
		m.finished = true
	}
	return m.segments
}
