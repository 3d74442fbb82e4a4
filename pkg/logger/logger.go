package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog with bot specific helpers
type Logger struct {
	logger zerolog.Logger
	config LoggerConfig
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level            string
	OutputFile       string
	MaxFileSize      int64
	MaxBackups       int
	MaxAge           int
	EnableConsole    bool
	EnableFile       bool
	EnableJSON       bool
	EnableStackTrace bool

	// Output replaces stdout for the console writer when set.
	Output io.Writer
}

// Fields represents structured log fields
type Fields map[string]interface{}

// NewLogger creates a new logger instance
func NewLogger(config LoggerConfig) (*Logger, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	var writers []io.Writer

	if config.EnableConsole {
		if config.EnableJSON {
			writers = append(writers, out)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        out,
				NoColor:    config.Output != nil,
				TimeFormat: "2006-01-02 15:04:05.000",
				FormatLevel: func(i interface{}) string {
					return strings.ToUpper(fmt.Sprintf("%-5s", i))
				},
				FormatFieldName: func(i interface{}) string {
					return fmt.Sprintf("%s=", i)
				},
				FormatFieldValue: func(i interface{}) string {
					return fmt.Sprintf("%v", i)
				},
				FormatCaller: func(i interface{}) string {
					return fmt.Sprintf("<%s>", i)
				},
			})
		}
	}

	if config.EnableFile && config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    int(config.MaxFileSize / (1024 * 1024)),
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   true,
		})
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	if config.EnableStackTrace {
		zl = zl.With().Caller().Logger()
	}

	return &Logger{
		logger: zl,
		config: config,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Fields) {
	event := l.logger.Debug()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Fields) {
	event := l.logger.Info()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Fields) {
	event := l.logger.Warn()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string, err error, fields ...Fields) {
	event := l.logger.Error()
	if err != nil {
		if l.config.EnableStackTrace {
			event = event.Stack().Err(err)
		} else {
			event = event.Err(err)
		}
	}
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, err error, fields ...Fields) {
	event := l.logger.Fatal()
	if err != nil {
		event = event.Err(err)
	}
	l.addFields(event, fields...)
	event.Msg(msg)
}

// WithFields creates a logger with predefined fields
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
		config: l.config,
	}
}

// WithComponent creates a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields(Fields{"component": component})
}

// WithUser creates a logger with user information
func (l *Logger) WithUser(userID, username string) *Logger {
	return l.WithFields(Fields{
		"user_id":  userID,
		"username": username,
	})
}

// WithGuild creates a logger with the guild id
func (l *Logger) WithGuild(guildID string) *Logger {
	return l.WithFields(Fields{"guild_id": guildID})
}

// WithRequest tags every line with the id of the command dispatch that produced it.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.WithFields(Fields{"request_id": requestID})
}

// WithTrack creates a logger with track information
func (l *Logger) WithTrack(entryID, title string, duration time.Duration) *Logger {
	return l.WithFields(Fields{
		"entry_id":    entryID,
		"track_title": title,
		"duration":    duration.String(),
	})
}

// LogMemoryUsage logs current memory usage
func (l *Logger) LogMemoryUsage() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	l.Info("Memory usage statistics", Fields{
		"alloc_mb":       bToMb(m.Alloc),
		"total_alloc_mb": bToMb(m.TotalAlloc),
		"sys_mb":         bToMb(m.Sys),
		"num_gc":         m.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	})
}

// LogDiscordEvent logs gateway events
func (l *Logger) LogDiscordEvent(event string, fields Fields) {
	l.Info("Discord event", withEventType(event, fields))
}

// LogResolveEvent logs track resolution events
func (l *Logger) LogResolveEvent(event string, fields Fields) {
	l.Info("Resolve event", withEventType(event, fields))
}

// LogAudioEvent logs playback events
func (l *Logger) LogAudioEvent(event string, fields Fields) {
	l.Info("Audio event", withEventType(event, fields))
}

// LogQueueEvent logs queue mutations
func (l *Logger) LogQueueEvent(event string, fields Fields) {
	l.Info("Queue event", withEventType(event, fields))
}

// LogCommandEvent logs command-related events
func (l *Logger) LogCommandEvent(command, userID, guildID string, success bool, duration time.Duration, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["command"] = command
	fields["user_id"] = userID
	fields["guild_id"] = guildID
	fields["success"] = success
	fields["duration_ms"] = duration.Milliseconds()

	if success {
		l.Info("Command executed successfully", fields)
	} else {
		l.Warn("Command execution failed", fields)
	}
}

// LogPanic logs panic information
func (l *Logger) LogPanic(recovered interface{}, stack []byte) {
	l.Error("Panic recovered", nil, Fields{
		"panic":      fmt.Sprint(recovered),
		"stack":      string(stack),
		"goroutines": runtime.NumGoroutine(),
	})
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, buildTime, gitCommit string) {
	l.Info("Application starting", Fields{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}

// LogShutdown logs application shutdown information
func (l *Logger) LogShutdown(reason string, graceful bool) {
	l.Info("Application shutting down", Fields{
		"reason":   reason,
		"graceful": graceful,
	})
}

// LogConfiguration logs configuration information (with sensitive data redacted)
func (l *Logger) LogConfiguration(config interface{}) {
	l.Info("Configuration loaded", Fields{
		"config": config,
	})
}

// LogPerformanceMetrics logs performance metrics
func (l *Logger) LogPerformanceMetrics(metrics map[string]interface{}) {
	l.Info("Performance metrics", Fields(metrics))
}

func (l *Logger) addFields(event *zerolog.Event, fields ...Fields) {
	for _, fieldSet := range fields {
		for key, value := range fieldSet {
			event.Interface(key, value)
		}
	}
}

func withEventType(event string, fields Fields) Fields {
	if fields == nil {
		fields = Fields{}
	}
	fields["event_type"] = event
	return fields
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() string {
	return l.config.Level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level string) error {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	l.logger = l.logger.Level(logLevel)
	l.config.Level = level
	return nil
}
