package rest

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultipartDataParsesAsForm(t *testing.T) {
	form := NewMultipartData()
	_, err := form.Attach("files[0]", []byte("hello"), "hello.txt")
	require.NoError(t, err)
	_, err = form.Attach("payload_json", map[string]any{"content": "hi"}, "")
	require.NoError(t, err)
	_, err = form.Attach("skipped", nil, "")
	require.NoError(t, err)

	body := bytes.Join(form.Finish(), nil)

	_, params, err := mime.ParseMediaType(form.ContentType())
	require.NoError(t, err)
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])

	part, err := reader.NextPart()
	require.NoError(t, err)
	require.Equal(t, "files[0]", part.FormName())
	require.Equal(t, "hello.txt", part.FileName())
	require.Equal(t, "application/octet-stream", part.Header.Get("Content-Type"))
	data, err := io.ReadAll(part)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	part, err = reader.NextPart()
	require.NoError(t, err)
	require.Equal(t, "payload_json", part.FormName())
	require.Equal(t, "application/json", part.Header.Get("Content-Type"))
	data, err = io.ReadAll(part)
	require.NoError(t, err)
	require.JSONEq(t, `{"content":"hi"}`, string(data))

	_, err = reader.NextPart()
	require.ErrorIs(t, err, io.EOF)
}

func TestMultipartDataFinishIsFinal(t *testing.T) {
	form := NewMultipartData()
	_, err := form.Attach("field", "value", "")
	require.NoError(t, err)

	first := form.Finish()
	second := form.Finish()
	require.Equal(t, len(first), len(second))

	_, err = form.Attach("late", "value", "")
	require.ErrorIs(t, err, ErrMultipartFinished)

	_, err = form.Attach("late", nil, "")
	require.ErrorIs(t, err, ErrMultipartFinished)
}
