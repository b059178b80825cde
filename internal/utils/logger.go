package utils

import (
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitLogger configures the global logger. When file is non-empty, output goes
// to a size-rotated log file; otherwise it stays on stderr.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	if file != "" {
		writer := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		}
		logger = zerolog.New(writer).With().Timestamp().Logger()
	}
	SetLogLevel(level)
}

// SetLogLevel adjusts the minimum logged level. Unknown levels fall back to info.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger = logger.Level(lvl)
}

// SetLoggerForTest replaces the package logger so tests can capture output.
func SetLoggerForTest(l zerolog.Logger) {
	logger = l
}

// Info logs at info level with alternating key-value pairs.
func Info(msg string, kv ...any) {
	emit(logger.Info(), msg, kv)
}

// Warn logs at warn level with alternating key-value pairs.
func Warn(msg string, kv ...any) {
	emit(logger.Warn(), msg, kv)
}

// Error logs at error level with alternating key-value pairs.
func Error(msg string, kv ...any) {
	emit(logger.Error(), msg, kv)
}

func emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
