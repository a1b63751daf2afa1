package server

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// LogColor selects one of the logger's output colors.
type LogColor int

const (
	ColorNone LogColor = iota
	ColorWhite
	ColorCyan
	ColorGreen
	ColorYellow
	ColorRed
	ColorMagenta
	ColorOrange
)

var logPalette = map[LogColor]*color.Color{
	ColorWhite:   color.New(color.FgWhite),
	ColorCyan:    color.New(color.FgCyan),
	ColorGreen:   color.New(color.FgGreen),
	ColorYellow:  color.New(color.FgYellow),
	ColorRed:     color.New(color.FgRed),
	ColorMagenta: color.New(color.FgMagenta),
	ColorOrange:  color.RGB(255, 167, 7),
}

// statusCodeColor maps an HTTP status class to the color used in response logs.
func statusCodeColor(status int) LogColor {
	switch {
	case status >= 100 && status <= 199:
		return ColorCyan
	case status >= 200 && status <= 299:
		return ColorGreen
	case status >= 300 && status <= 399:
		return ColorYellow
	case status >= 400 && status <= 499:
		return ColorRed
	default:
		return ColorMagenta
	}
}

// LogArg is one rendered segment of a log line.
type LogArg struct {
	Text  string
	Color LogColor
}

// Arg builds a LogArg.
func Arg(text string, c LogColor) LogArg {
	return LogArg{Text: text, Color: c}
}

// Logger writes color-annotated lines to stdout and stderr. Format strings use
// "{}" placeholders filled from the ordered argument list; output is line-atomic.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func NewLogger() *Logger {
	return &Logger{
		out: color.Output,
		err: color.Error,
	}
}

// Stdout renders format with args and writes one line to standard output.
func (l *Logger) Stdout(format string, args ...LogArg) error {
	return l.write(l.out, format, args)
}

// Stderr renders format with args and writes one line to standard error.
func (l *Logger) Stderr(format string, args ...LogArg) error {
	return l.write(l.err, format, args)
}

func (l *Logger) write(w io.Writer, format string, args []LogArg) error {
	var b strings.Builder
	parts := strings.Split(format, "{}")
	for i, part := range parts {
		b.WriteString(part)
		if i >= len(parts)-1 || i >= len(args) {
			continue
		}
		if c, ok := logPalette[args[i].Color]; ok {
			b.WriteString(c.Sprint(args[i].Text))
		} else {
			b.WriteString(args[i].Text)
		}
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(w, b.String())
	return err
}
