package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CLIErrorAdapter prints a command's error and exits with its category's code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
	exit    func(int)
}

func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, out: os.Stderr, exit: os.Exit}
}

// ExitCodeFor returns 0 for nil, 1 for unclassified errors and the category
// code otherwise.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	c, ok := AsClassified(err)
	if !ok {
		return 1
	}
	return c.category.exitCode()
}

// FormatError renders err for a terminal. Verbose mode shows the cause chain.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	c, ok := AsClassified(err)
	switch {
	case !ok:
		return fmt.Sprintf("Error: %v", err)
	case a.verbose:
		return "Error: " + c.Error()
	case c.category == CategoryInternal:
		return "Internal error occurred (use -v for details)"
	default:
		return "Error: " + c.message
	}
}

// HandleError logs err, prints it and exits.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if c, ok := AsClassified(err); ok {
		if a.verbose || c.IsFatal() {
			attrs := []slog.Attr{slog.String("category", string(c.category))}
			for k, v := range c.fields {
				attrs = append(attrs, slog.Any(k, v))
			}
			if c.transient {
				attrs = append(attrs, slog.Bool("retryable", true))
			}
			a.logger.LogAttrs(context.Background(), c.severity.level(), c.message, attrs...)
		}
	} else {
		a.logger.Error("Unclassified error", "error", err)
	}
	fmt.Fprintln(a.out, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

func (s ErrorSeverity) level() slog.Level {
	if s == SeverityWarning {
		return slog.LevelWarn
	}
	return slog.LevelError
}
