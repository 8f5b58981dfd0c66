// Package logging provides the structured logger shared by every stage
// of the conversion pipeline, built on logrus levels and fields rather
// than a per-subsystem toggle scheme, since this is a batch converter
// and not an interactive tool that needs fine-grained log selection.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger with the fields every call site in this
// repository wants available: svn_rev and branch.
type Logger struct {
	*logrus.Logger
	warnings int
}

// New builds a Logger writing to stderr at stderrLevel and, if logFile
// is non-empty, additionally to that file at fileLevel. A level string
// is one of "trace", "debug", "info", "warn", "error".
func New(stderrLevel, fileLevel, logFile string) (*Logger, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(orDefault(stderrLevel, "info"))
	if err != nil {
		return nil, err
	}
	base.SetLevel(lvl)
	base.SetOutput(os.Stderr)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		flvl, err := logrus.ParseLevel(orDefault(fileLevel, stderrLevel))
		if err != nil {
			return nil, err
		}
		// A hook lets the file sink run at its own level independent
		// of the stderr sink's level.
		base.AddHook(&fileHook{writer: f, level: flvl, formatter: &logrus.TextFormatter{FullTimestamp: true}})
		if flvl > lvl {
			// The logger must pass the file sink's more verbose level,
			// so stderr moves to a hook filtered at its own level.
			base.SetLevel(flvl)
			base.SetOutput(io.Discard)
			base.AddHook(&fileHook{writer: os.Stderr, level: lvl, formatter: base.Formatter})
		}
	}

	return &Logger{Logger: base}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// WithRev returns an entry tagged with the SVN revision under
// conversion, for use at any of the two driver stages.
func (l *Logger) WithRev(rev int) *logrus.Entry {
	return l.WithField("svn_rev", rev)
}

// WithBranch returns an entry tagged with the branch being processed.
func (l *Logger) WithBranch(name string) *logrus.Entry {
	return l.WithField("branch", name)
}

// Warnf records a recovered, non-fatal error and bumps the run's
// warning counter so a post-run summary can report how many were
// suppressed.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.warnings++
	l.Logger.Warnf(format, args...)
}

// WarningCount reports how many recovered warnings were logged.
func (l *Logger) WarningCount() int {
	return l.warnings
}

type fileHook struct {
	writer    io.Writer
	level     logrus.Level
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	if e.Level > h.level {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}
