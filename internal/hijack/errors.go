package hijack

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/armon/circbuf"
)

// ErrNotHijackable is returned for responses whose connection cannot be
// taken over.
var ErrNotHijackable = errors.New("response is not hijackable")

// errorBodySize bounds how much of an error response is kept.
const errorBodySize = 4096

// StatusError is a non-success response from the engine.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("engine returned status %d: %s", e.StatusCode, e.Message)
}

// readStatusError builds a StatusError from the tail of an error body. The
// engine sends {"message": "..."}; anything else is reported verbatim.
func readStatusError(statusCode int, body io.Reader) *StatusError {
	buf, _ := circbuf.NewBuffer(errorBodySize)
	_, _ = io.Copy(buf, body)

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(buf.Bytes(), &payload); err == nil && payload.Message != "" {
		return &StatusError{StatusCode: statusCode, Message: payload.Message}
	}

	return &StatusError{StatusCode: statusCode, Message: strings.TrimSpace(buf.String())}
}
