package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"

	"github.com/hookline/hookline/internal/rest"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"rest error", &rest.RESTError{HTTPError: rest.HTTPError{StatusCode: 400}, Code: 50006}, foundry.ExitExternalServiceUnavailable},
		{"http error", fmt.Errorf("send: %w", &rest.HTTPError{StatusCode: 500}), foundry.ExitExternalServiceUnavailable},
		{"transport error", &rest.TransportError{Timeout: true, Err: errors.New("deadline")}, foundry.ExitExternalServiceUnavailable},
		{"config error", fmt.Errorf("%w: bad driver", errConfig), foundry.ExitConfigInvalid},
		{"anything else", errors.New("boom"), foundry.ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFor(tc.err))
		})
	}
}

func TestWriteExitReport(t *testing.T) {
	var buf bytes.Buffer
	restErr := &rest.RESTError{HTTPError: rest.HTTPError{StatusCode: 404}, Code: 10015, Message: "Unknown Webhook"}
	code := writeExitReport(&buf, foundry.ExitExternalServiceUnavailable, "Command execution failed", restErr)

	assert.Equal(t, int(foundry.ExitExternalServiceUnavailable), code)
	assert.Contains(t, buf.String(), "FATAL: Command execution failed")
	assert.Contains(t, buf.String(), "api code 10015")
	assert.Contains(t, buf.String(), "Exit Code: ")

	buf.Reset()
	code = writeExitReport(&buf, foundry.ExitFailure, "stopped", nil)
	assert.Equal(t, int(foundry.ExitFailure), code)
	assert.Contains(t, buf.String(), "FATAL: stopped\n")
}
