package logger

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	errorPrefix   = "error"
	warningPrefix = "warning"
	infoPrefix    = "info"
	verbosePrefix = "verbose"
	tracePrefix   = "trace"
)

// logPrinter formats and writes plain (non-context) log lines. Kept as a
// struct behind a package-level var so tests can read its fields directly
// (globalLogPrinter.logLevel) the way callers read atomic state elsewhere in
// this module.
type logPrinter struct {
	logLevel TLogLevel
	mu       sync.Mutex
}

var globalLogPrinter = &logPrinter{logLevel: LogLevelInfo}

func isEnabled(level TLogLevel) bool {
	return level <= globalLogPrinter.logLevel
}

func printIfLevel(skipStackFrames int, level TLogLevel, args ...interface{}) {
	if !isEnabled(level) {
		return
	}
	fn, line := globalLogPrinter.getFuncName(skipStackFrames + 2)
	prefix := getLevelPrefix(level)
	line2 := globalLogPrinter.getFormattedMsg(prefix, fn, line, argsToStrings(args)...)
	PrintLine(level, line2)
}

func argsToStrings(args []interface{}) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(a)
	}
	return out
}

func getLevelPrefix(level TLogLevel) string {
	switch level {
	case LogLevelError:
		return errorPrefix
	case LogLevelWarning:
		return warningPrefix
	case LogLevelInfo:
		return infoPrefix
	case LogLevelVerbose:
		return verbosePrefix
	case LogLevelTrace:
		return tracePrefix
	default:
		return ""
	}
}

// getFormattedMsg builds "prefix: [funcName:line]: joined args".
func (p *logPrinter) getFormattedMsg(prefix, funcName string, line int, args ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(": [")
	b.WriteString(funcName)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(line))
	b.WriteString("]: ")
	b.WriteString(strings.Join(args, " "))
	return b.String()
}

// getFuncName resolves the calling function's short name and line number,
// skipping skip frames from the caller of getFuncName itself.
func (p *logPrinter) getFuncName(skip int) (funcName string, line int) {
	pc, _, l, ok := runtime.Caller(skip)
	if !ok {
		return "", 0
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "", l
	}
	full := fn.Name()
	if idx := strings.LastIndex(full, "/"); idx >= 0 {
		full = full[idx+1:]
	}
	return full, l
}
