// Package logger provides the levelled logging used by the octvol command.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

type LogLevel int

const (
	// LogDebug - DEBUG log level
	LogDebug LogLevel = iota

	// LogInfo - INFO log level
	LogInfo

	// LogError - ERROR log level (does not call os.Exit!)
	LogError
)

var logLevelPrefix = map[LogLevel]string{
	LogDebug: "DEBUG",
	LogInfo:  "INFO",
	LogError: "ERROR",
}

var logLevelColor = map[LogLevel]color.Attribute{
	LogDebug: color.FgCyan,
	LogInfo:  color.FgGreen,
	LogError: color.FgRed,
}

func (l LogLevel) String() string {
	if p, ok := logLevelPrefix[l]; ok {
		return p
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

type ILogger interface {
	Printf(level LogLevel, format string, a ...interface{})
	Debugf(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Errorf(format string, a ...interface{})
}

// StdLogger writes messages at or above its level. Errors go to a separate
// writer so that command output on stdout stays clean.
type StdLogger struct {
	logLevel LogLevel
	out      *log.Logger
	err      *log.Logger

	// outPrefix and errPrefix hold the level prefixes for each writer
	outPrefix map[LogLevel]string
	errPrefix map[LogLevel]string
}

// New returns a logger writing INFO and DEBUG to out and ERROR to errOut.
// Level prefixes are coloured when the writer is a terminal.
func New(level LogLevel, out, errOut io.Writer) *StdLogger {
	return &StdLogger{
		logLevel:  level,
		out:       log.New(out, "", log.LstdFlags),
		err:       log.New(errOut, "", log.LstdFlags),
		outPrefix: prefixesFor(out),
		errPrefix: prefixesFor(errOut),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func prefixesFor(w io.Writer) map[LogLevel]string {
	if !isTerminal(w) {
		return logLevelPrefix
	}
	res := make(map[LogLevel]string, len(logLevelPrefix))
	for level, p := range logLevelPrefix {
		c := color.New(logLevelColor[level])
		c.EnableColor()
		res[level] = c.Sprint(p)
	}
	return res
}

func (l *StdLogger) Printf(level LogLevel, format string, a ...interface{}) {
	// If we're not on this log level, skip
	if l.logLevel > level {
		return
	}

	msg := fmt.Sprintf(format, a...)
	if level >= LogError {
		l.err.Println(prefix(l.errPrefix, level) + ": " + msg)
		return
	}
	l.out.Println(prefix(l.outPrefix, level) + ": " + msg)
}
func prefix(prefixes map[LogLevel]string, level LogLevel) string {
	if p, ok := prefixes[level]; ok {
		return p
	}
	return level.String()
}

func (l *StdLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}
func (l *StdLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}
func (l *StdLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *StdLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
}
func (l *StdLogger) GetLogLevel() LogLevel {
	return l.logLevel
}

type NullLogger struct {
}

func (l NullLogger) Printf(level LogLevel, format string, a ...interface{}) {
}
func (l NullLogger) Debugf(format string, a ...interface{}) {
}
func (l NullLogger) Infof(format string, a ...interface{}) {
}
func (l NullLogger) Errorf(format string, a ...interface{}) {
}
