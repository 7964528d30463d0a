package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Lines logs every non-blank line of text as its own entry at lvl.
// Stack traces are suppressed since text usually is one already.
func Lines(l *zap.Logger, lvl zapcore.Level, text string, fields ...zap.Field) int {
	l = l.WithOptions(zap.AddStacktrace(zapcore.FatalLevel))
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		n++
		if ce := l.Check(lvl, line); ce != nil {
			ce.Write(fields...)
		}
	}
	return n
}
