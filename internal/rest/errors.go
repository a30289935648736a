package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// callSite marks where Send was called so terminal errors can point back at
// the caller rather than at the dispatcher goroutine.
func callSite() error {
	return pkgerrors.New("dispatch call site")
}

// HTTPError is a terminal non-2xx response without a structured API error.
type HTTPError struct {
	Method     string
	Path       string
	Route      string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	// Value is the decoded body when the response was JSON.
	Value any

	origin error
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	return fmt.Sprintf("%d %s on %s %s", e.StatusCode, statusText(e.StatusCode, e.Status), e.Method, e.Path)
}

// StackTrace returns the stack of the Send call that produced the error.
func (e *HTTPError) StackTrace() pkgerrors.StackTrace {
	if e == nil {
		return nil
	}
	if st, ok := e.origin.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

// Format supports %+v, which appends the originating stack.
func (e *HTTPError) Format(s fmt.State, verb rune) {
	formatWithStack(s, verb, e.Error(), e.StackTrace())
}

// RESTError is a terminal response whose body carries an API error code.
type RESTError struct {
	HTTPError
	Code    int
	Message string
	// Errors holds the nested field errors, if the API sent any.
	Errors json.RawMessage
}

func (e *RESTError) Error() string {
	if e == nil {
		return "rest error"
	}
	msg := fmt.Sprintf("%d %s on %s %s: code %d", e.StatusCode, statusText(e.StatusCode, e.Status), e.Method, e.Path, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Format supports %+v, which appends the originating stack.
func (e *RESTError) Format(s fmt.State, verb rune) {
	formatWithStack(s, verb, e.Error(), e.StackTrace())
}

// TransportError reports a request that never produced a complete response.
type TransportError struct {
	Method  string
	Path    string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	if e.Timeout {
		return fmt.Sprintf("request timed out on %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("request failed on %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EncodingError reports a request or response body that could not be
// encoded or decoded.
type EncodingError struct {
	Method string
	Path   string
	Err    error
}

func (e *EncodingError) Error() string {
	if e == nil {
		return "encoding error"
	}
	return fmt.Sprintf("encoding failed on %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newResponseError(req *Request, route string, resp *http.Response, body []byte, value any, origin error) error {
	base := HTTPError{
		Method:     req.Method,
		Path:       req.Path,
		Route:      route,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
		Value:      value,
		origin:     origin,
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return &base
	}
	code, ok := obj["code"].(float64)
	if !ok || code == 0 {
		return &base
	}

	restErr := &RESTError{HTTPError: base, Code: int(code)}
	if msg, ok := obj["message"].(string); ok {
		restErr.Message = msg
	}
	if nested, ok := obj["errors"]; ok {
		if raw, err := json.Marshal(nested); err == nil {
			restErr.Errors = raw
		}
	}
	return restErr
}

func statusText(code int, status string) string {
	if _, text, ok := strings.Cut(status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(code)
}

func formatWithStack(s fmt.State, verb rune, msg string, stack pkgerrors.StackTrace) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = io.WriteString(s, msg)
			if stack != nil {
				stack.Format(s, verb)
			}
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, msg)
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", msg)
	}
}
