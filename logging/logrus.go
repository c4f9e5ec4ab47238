package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusAdapter exposes a *logrus.Entry through the Logger interface. Key/value
// arguments become logrus fields.
type LogrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusAdapter wraps an existing logrus logger.
func NewLogrusAdapter(l *logrus.Logger) *LogrusAdapter {
	return &LogrusAdapter{entry: logrus.NewEntry(l)}
}

// NewLogrusLogger builds a JSON logrus logger writing to out at the given level.
func NewLogrusLogger(level LogLevel, out io.Writer) *LogrusAdapter {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	l.SetLevel(logrusLevel(level))
	return NewLogrusAdapter(l)
}

func logrusLevel(l LogLevel) logrus.Level {
	switch l {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (a *LogrusAdapter) with(args ...any) *LogrusAdapter {
	return &LogrusAdapter{entry: a.entry.WithFields(toFields(args))}
}

// toFields converts alternating key/value pairs into logrus fields. A
// dangling key is recorded under "!BADKEY" like slog does.
func toFields(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}

// Debug logs a debug message.
func (a *LogrusAdapter) Debug(msg string, args ...any) { a.entry.WithFields(toFields(args)).Debug(msg) }

// Info logs an informational message.
func (a *LogrusAdapter) Info(msg string, args ...any) { a.entry.WithFields(toFields(args)).Info(msg) }

// Warn logs a warning message.
func (a *LogrusAdapter) Warn(msg string, args ...any) { a.entry.WithFields(toFields(args)).Warn(msg) }

// Error logs an error message.
func (a *LogrusAdapter) Error(msg string, args ...any) { a.entry.WithFields(toFields(args)).Error(msg) }
