package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// DefaultLogLevel keeps diagnostics quiet unless something goes wrong.
const DefaultLogLevel = "warn"

var allowedLogLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "OFF"}

// ParseLogLevel maps a level name to an hclog.Level. Names are
// case-insensitive; "err" is accepted for "error".
func ParseLogLevel(name string) (hclog.Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "ERR" {
		upper = "ERROR"
	}
	for _, allowed := range allowedLogLevels {
		if upper == allowed {
			return hclog.LevelFromString(upper), nil
		}
	}
	return hclog.NoLevel, fmt.Errorf("invalid log level %q: valid levels are %s", name, strings.ToLower(strings.Join(allowedLogLevels, ", ")))
}

// NewLogger returns the diagnostic logger. Diagnostics go to w, which is
// normally stderr so they never mix with a container's stdout.
func NewLogger(level hclog.Level, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "contattach",
		Level:  level,
		Output: w,
		Color:  hclog.AutoColor,
	})
}
