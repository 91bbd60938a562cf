package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var (
	verbose     atomic.Bool
	disableLogs atomic.Bool
	forceStdErr atomic.Bool

	// guards the writers below and keeps lines from interleaving
	mu        sync.Mutex
	stdout    io.Writer = os.Stdout
	stderr    io.Writer = os.Stderr
	noColor   bool
	levelTags = map[int]string{
		levelDebug: "[DBG]",
		levelInfo:  "[INF]",
		levelWarn:  "[WRN]",
		levelError: "[ERR]",
	}
	levelColors = map[int]string{
		levelDebug: "\033[37m", // White
		levelInfo:  "\033[36m", // Cyan
		levelWarn:  "\033[33m", // Yellow
		levelError: "\033[31m", // Red
	}
)

// SetVerbose sets the logging verbosity. If true, all log levels are displayed.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// IsVerbose returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verbose.Load()
}

// DisableLogs disables all logging.
func DisableLogs() {
	disableLogs.Store(true)
}

// EnableLogs re-enables logging after DisableLogs.
func EnableLogs() {
	disableLogs.Store(false)
}

// IsDisabled returns true if logging is disabled.
func IsDisabled() bool {
	return disableLogs.Load()
}

// SetForceStdErr sends every level to stderr. Used by subcommands whose stdout is data.
func SetForceStdErr(v bool) {
	forceStdErr.Store(v)
}

// SetOutput redirects log output. Passing nil restores the process streams.
// Colors are dropped when output is redirected.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if out == nil || errOut == nil {
		stdout, stderr, noColor = os.Stdout, os.Stderr, false
		return
	}
	stdout, stderr, noColor = out, errOut, true
}

// Debugf logs a debug message if verbose is true.
func Debugf(format string, args ...interface{}) {
	if verbose.Load() {
		logMessage(levelDebug, format, args...)
	}
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	logMessage(levelInfo, format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) {
	logMessage(levelWarn, format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	logMessage(levelError, format, args...)
}

// Fatalf logs an error message and exits the program.
func Fatalf(format string, args ...interface{}) {
	logMessage(levelError, format, args...)
	os.Exit(1)
}

// logMessage formats and writes a log message with the specified log level.
func logMessage(level int, format string, args ...interface{}) {
	if disableLogs.Load() {
		return
	}
	message := fmt.Sprintf(format, args...)

	mu.Lock()
	defer mu.Unlock()

	prefix := levelTags[level]
	if !noColor {
		prefix = levelColors[level] + prefix + "\033[0m"
	}
	output := prefix + " " + message + "\n"

	if forceStdErr.Load() || level == levelError {
		_, _ = io.WriteString(stderr, output)
	} else {
		_, _ = io.WriteString(stdout, output)
	}
}

// Prefixed is a printf-style logger that tags every line with a component name.
// It satisfies the Printf interface expected by third-party middlewares.
type Prefixed struct {
	prefix string
}

// WithPrefix returns a debug-level logger whose lines start with "[prefix] ".
func WithPrefix(prefix string) *Prefixed {
	return &Prefixed{prefix: "[" + prefix + "] "}
}

// Printf logs at debug level.
func (p *Prefixed) Printf(format string, args ...interface{}) {
	Debugf(p.prefix+format, args...)
}

// Write logs p at debug level, one call per line.
func (p *Prefixed) Write(b []byte) (int, error) {
	Debugf("%s%s", p.prefix, string(trimNewline(b)))
	return len(b), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
