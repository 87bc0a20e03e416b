package logger

import (
	"fmt"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	once          sync.Once
	defaultLogger zerolog.Logger

	mu       sync.RWMutex
	logLevel = "info"
	logFile  string
	rotator  *lumberjack.Logger
)

// Setup points every logger created afterwards at the configured level and log file.
func Setup(cfg *config.Config) error {
	logsDir := filepath.Join(cfg.Path, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := filepath.Join(logsDir, "magnetdl.log")
	mu.Lock()
	defer mu.Unlock()
	logLevel = cfg.LogLevel
	if rotator == nil || logFile != path {
		if rotator != nil {
			_ = rotator.Close()
		}
		rotator = &lumberjack.Logger{
			Filename: path,
			MaxSize:  10,
			MaxAge:   15,
			Compress: true,
		}
	}
	logFile = path
	return nil
}

func GetLogPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return logFile
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func consoleWriter(prefix string, out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    noColor,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %v", prefix, i)
		},
	}
}

// NewLogger writes to output and, once Setup has run, to the shared rotating log file.
func NewLogger(prefix string, level string, output io.Writer) zerolog.Logger {
	writers := []io.Writer{consoleWriter(prefix, output, false)}

	mu.RLock()
	file := rotator
	mu.RUnlock()
	if file != nil {
		writers = append(writers, consoleWriter(prefix, file, true))
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger().
		Level(parseLevel(level))
}

// New returns a component logger on stderr; stdout belongs to progress output.
func New(prefix string) zerolog.Logger {
	mu.RLock()
	level := logLevel
	mu.RUnlock()
	return NewLogger(prefix, level, os.Stderr)
}

func GetDefaultLogger() zerolog.Logger {
	once.Do(func() {
		defaultLogger = New("magnetdl")
	})
	return defaultLogger
}
