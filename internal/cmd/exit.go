package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/hookline/hookline/internal/rest"
)

// errConfig marks configuration failures so they exit with ExitConfigInvalid.
var errConfig = stderrors.New("invalid configuration")

// ExitCodeFor picks the foundry exit code for a non-nil error returned by
// a command.
func ExitCodeFor(err error) foundry.ExitCode {
	var restErr *rest.RESTError
	var httpErr *rest.HTTPError
	var transportErr *rest.TransportError
	switch {
	case stderrors.As(err, &restErr), stderrors.As(err, &httpErr), stderrors.As(err, &transportErr):
		return foundry.ExitExternalServiceUnavailable
	case stderrors.Is(err, errConfig):
		return foundry.ExitConfigInvalid
	default:
		return foundry.ExitFailure
	}
}

// ExitWithCodeStderr reports err on stderr and exits with exitCode.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	os.Exit(writeExitReport(os.Stderr, exitCode, msg, err))
}

// writeExitReport prints the failure and returns the process exit status.
func writeExitReport(w io.Writer, exitCode foundry.ExitCode, msg string, err error) int {
	var envelope *errors.ErrorEnvelope
	var restErr *rest.RESTError
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope):
		_, _ = fmt.Fprintf(w, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
		if cause, ok := envelope.Original.(error); ok && cause != nil {
			_, _ = fmt.Fprintf(w, "Cause: %v\n", cause)
		}
	case stderrors.As(err, &restErr):
		_, _ = fmt.Fprintf(w, "FATAL: %s: %v (api code %d)\n", msg, err, restErr.Code)
	default:
		_, _ = fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		_, _ = fmt.Fprintf(w, "Exit Code: %d\n", exitCode)
		return int(exitCode)
	}
	_, _ = fmt.Fprintf(w, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	return info.Code
}
