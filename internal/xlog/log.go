// Package xlog is a small leveled, key/value logger in the style of
// go-ethereum's log package: colored, TTY-aware output with the call site
// attached for Warn and above.
package xlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type Level int

const (
	LevelCrit Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelCrit:
		return "CRIT"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelCrit:  color.New(color.FgMagenta, color.Bold),
	LevelError: color.New(color.FgRed, color.Bold),
	LevelWarn:  color.New(color.FgYellow),
	LevelInfo:  color.New(color.FgGreen),
	LevelDebug: color.New(color.FgCyan),
	LevelTrace: color.New(color.FgWhite),
}

// Logger is a module-scoped logger carrying a fixed set of context fields.
type Logger struct {
	module string
	ctx    []interface{}
}

var (
	mu       sync.Mutex
	out      io.Writer = colorable.NewColorable(os.Stderr)
	minLevel           = LevelInfo
	useColor           = isatty.IsTerminal(os.Stderr.Fd())
)

// SetLevel adjusts the process-wide minimum level that is emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects where log lines are written; tests use this to
// capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// New returns a Logger scoped to module, with optional initial context.
func New(module string, ctx ...interface{}) *Logger {
	return &Logger{module: module, ctx: ctx}
}

// With returns a child logger with additional fixed key/value context.
func (l *Logger) With(ctx ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &Logger{module: l.module, ctx: merged}
}

func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log(LevelTrace, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LevelDebug, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LevelInfo, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LevelWarn, msg, ctx) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LevelError, msg, ctx) }
func (l *Logger) Crit(msg string, ctx ...interface{})  { l.log(LevelCrit, msg, ctx) }

func (l *Logger) log(lvl Level, msg string, ctx []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl > minLevel {
		return
	}

	var b strings.Builder
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	levelStr := lvl.String()
	if useColor {
		levelStr = levelColor[lvl].Sprint(lvl.String())
	}

	fmt.Fprintf(&b, "%s [%s] %-16s %s", ts, levelStr, l.module, msg)

	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if lvl <= LevelWarn {
		fmt.Fprintf(&b, " caller=%v", stack.Caller(2))
	}
	fmt.Fprintln(&b)
	out.Write([]byte(b.String()))
}
