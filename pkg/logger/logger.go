package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field aliases for zap fields
type Field = zapcore.Field

// Helper functions for creating fields
var (
	// String creates a field with a string value
	String = zap.String
	// Strings creates a field with a string slice value
	Strings = zap.Strings
	// Int creates a field with an int value
	Int = zap.Int
	// Int64 creates a field with an int64 value
	Int64 = zap.Int64
	// Float64 creates a field with a float64 value
	Float64 = zap.Float64
	// Bool creates a field with a bool value
	Bool = zap.Bool
	// Time creates a field with a time.Time value
	Time = zap.Time
	// Duration creates a field with a time.Duration value
	Duration = zap.Duration
	// Error creates a field with an error value
	Error = zap.Error
	// Any creates a field with any value
	Any = zap.Any
)

// Logger is a wrapper around zap.Logger
type Logger struct {
	*zap.Logger
}

// Config represents logger configuration
type Config struct {
	Level   string    // debug, info, warn, error
	Format  string    // json, console
	Output  io.Writer // defaults to os.Stdout
	NoColor bool      // plain level names in console output
}

// Name column width in console output
const nameWidth = 12

var levelColors = map[zapcore.Level]string{
	zapcore.ErrorLevel: "\033[1;31m", // Bold Red
	zapcore.WarnLevel:  "\033[1;33m", // Bold Yellow
	zapcore.InfoLevel:  "\033[1;36m", // Bold Cyan
	zapcore.DebugLevel: "\033[1;37m", // Bold White
}

// Custom level encoder that adds colors for console output
func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color, ok := levelColors[level]
	if !ok {
		enc.AppendString(level.String())
		return
	}
	enc.AppendString(color + level.String() + "\033[0m")
}

// shortNameEncoder keeps the last segment of a dotted logger name, padded to nameWidth
func shortNameEncoder(loggerName string, enc zapcore.PrimitiveArrayEncoder) {
	// Only the last component of a dotted name is shown
	name := loggerName
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	// Truncate, then pad so columns line up
	if len(name) > nameWidth {
		name = name[:nameWidth]
	}
	enc.AppendString(fmt.Sprintf("%-*s", nameWidth, name))
}

// New creates a new logger with the given configuration
func New(config Config) (*Logger, error) {
	// Parse log level
	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, err
	}

	// Create encoder based on format
	encoder, err := newEncoder(config, level)
	if err != nil {
		return nil, err
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	// Create logger options
	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}

	// Only add caller info for debug level
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return &Logger{Logger: zap.New(core, opts...)}, nil
}

func newEncoder(config Config, level zapcore.Level) (zapcore.Encoder, error) {
	// Create encoder config
	ec := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	// caller info only at debug level
	if level == zapcore.DebugLevel {
		ec.CallerKey = "caller"
		ec.EncodeCaller = zapcore.ShortCallerEncoder
	}

	// Set encoding options based on format
	switch config.Format {
	case "json":
		return zapcore.NewJSONEncoder(ec), nil
	case "console":
		if !config.NoColor {
			ec.EncodeLevel = coloredLevelEncoder
		}
		ec.EncodeName = shortNameEncoder
		return zapcore.NewConsoleEncoder(ec), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", config.Format)
	}
}

// parseLogLevel parses the log level string
func parseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level: %s", level)
	}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With returns a logger with the given fields
func (l *Logger) With(fields ...zapcore.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named returns a logger with the given name
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// WithRequestID returns a logger with the request ID field
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(zap.String("request_id", requestID))
}

// WithConversation returns a logger tagged with a provider conversation ID
func (l *Logger) WithConversation(conversationID string) *Logger {
	return l.With(zap.String("conversation_id", conversationID))
}

// WithCase returns a logger tagged with the active case ID
func (l *Logger) WithCase(caseID string) *Logger {
	return l.With(zap.String("case_id", caseID))
}

// WithError returns a logger with the error field
func (l *Logger) WithError(err error) *Logger {
	return l.With(zap.Error(err))
}

// Wrap adapts an existing zap logger, for callers that build their own core
func Wrap(z *zap.Logger) *Logger {
	return &Logger{Logger: z}
}
