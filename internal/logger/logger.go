// Package logger provides structured logging for sessionkeeper.
//
// Besides the leveled slog logger it exposes a metadata sink: a plain,
// timestamped, line-oriented journal of notable browser events (frame
// navigations, challenge outcomes) that is kept next to scrape results.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	metadataOut   io.Writer
	mu            sync.RWMutex
	metadataMu    sync.Mutex
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Options configures the logger.
type Options struct {
	Debug          bool         // Enable debug level logging
	Quiet          bool         // Only show errors
	JSON           bool         // Output as JSON
	Output         io.Writer    // Output destination (default: stderr)
	MetadataOutput io.Writer    // Metadata journal destination (default: discarded)
	Logger         *slog.Logger // Custom logger (overrides Debug/Quiet/JSON/Output)
}

// Init initializes the logger with the specified options.
func Init(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	metadataMu.Lock()
	metadataOut = opts.MetadataOutput
	metadataMu.Unlock()

	if opts.Logger != nil {
		defaultLogger = opts.Logger
		return
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	if opts.Quiet {
		level = slog.LevelError
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}

	defaultLogger = slog.New(handler)
}

// SetLogger replaces the underlying slog.Logger.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message.
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Info logs an info message.
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Warn logs a warning message.
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Error logs an error message.
func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// For returns a logger tagged with a component name.
func For(component string) *slog.Logger {
	return current().With("component", component)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	current().DebugContext(ctx, msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, args...)
}

// Metadata appends one line to the metadata journal. Write failures are
// dropped: the journal never affects control flow.
func Metadata(format string, args ...any) {
	metadataMu.Lock()
	defer metadataMu.Unlock()

	if metadataOut == nil {
		return
	}
	line := format
	if len(args) > 0 {
		line = fmt.Sprintf(format, args...)
	}
	line = strings.ReplaceAll(line, "\n", " ")
	_, _ = fmt.Fprintf(metadataOut, "%s %s\n", time.Now().UTC().Format(time.RFC3339), line)
}
