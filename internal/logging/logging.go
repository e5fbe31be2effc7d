// Package logging builds the structured logger used by the CLI.
//
// Diagnostics go to stderr as text at a level chosen by -v/-q. An optional
// log file receives every record at debug level, as JSON or text, through a
// fanout handler. Every logger carries the run_id of the invocation.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"

	"github.com/alnah/go-latex2img/internal/fileutil"
)

// ErrUnknownFormat is returned by ParseFormat for unrecognized names.
var ErrUnknownFormat = errors.New("unknown log format")

// Format is a log file encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// RunIDKey is the attribute carrying the invocation id.
const RunIDKey = "run_id"

// ParseFormat maps a flag value to a Format. Empty means FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q (want json or text)", ErrUnknownFormat, s)
	}
}

// LevelFor maps the verbosity flags to a console level.
// Quiet wins over verbose.
func LevelFor(verbose, quiet bool) slog.Level {
	switch {
	case quiet:
		return slog.LevelError
	case verbose:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}

// Options configures New.
type Options struct {
	Console    io.Writer    // usually os.Stderr; nil disables console output
	Level      slog.Leveler // console level; nil means slog.LevelWarn
	File       string       // optional log file, appended to
	FileFormat Format
	RunID      string // empty generates one
}

// Logger wraps the slog logger with the resources it owns.
type Logger struct {
	*slog.Logger
	RunID string
	file  *os.File
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// New builds a Logger from opts.
func New(opts Options) (*Logger, error) {
	level := opts.Level
	if level == nil {
		level = slog.LevelWarn
	}

	var handlers []slog.Handler
	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, &slog.HandlerOptions{Level: level}))
	}

	var file *os.File
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, fileutil.FilePermissions) // #nosec G304 -- user-provided log path
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f

		fileOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
		if opts.FileFormat == FormatText {
			handlers = append(handlers, slog.NewTextHandler(f, fileOpts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, fileOpts))
		}
	}

	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.DiscardHandler
	case 1:
		handler = handlers[0]
	default:
		handler = slogmulti.Fanout(handlers...)
	}

	return &Logger{
		Logger: slog.New(handler).With(RunIDKey, runID),
		RunID:  runID,
		file:   file,
	}, nil
}

// NewRunID returns a fresh invocation id.
func NewRunID() string {
	return uuid.NewString()
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
