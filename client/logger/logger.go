package logger

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Logger writes leveled, namespaced messages.
type Logger interface {
	Factory

	// Level returns the level configured for this logger's namespace.
	Level() Level

	// Namespace returns the full namespace of this logger.
	Namespace() string

	// IsLevelEnabled returns true when messages of level would be written.
	IsLevelEnabled(level Level) bool

	// Trace writes a message with level trace.
	Trace(message string, ctx Ctx) (int, error)

	// Debug writes a message with level debug.
	Debug(message string, ctx Ctx) (int, error)

	// Info writes a message with level info.
	Info(message string, ctx Ctx) (int, error)

	// Warn writes a message with level warn.
	Warn(message string, ctx Ctx) (int, error)

	// Error writes a message with level error. When err is not nil its stack
	// is appended to the message.
	Error(message string, err error, ctx Ctx) (int, error)
}

// Factory derives new loggers from an existing one. The receiver is never
// modified.
type Factory interface {
	// Ctx returns the context of this logger.
	Ctx() Ctx

	// WithCtx returns a new Logger with ctx merged over the current context.
	WithCtx(Ctx) Logger

	// WithFormatter returns a new Logger with the formatter set.
	WithFormatter(Formatter) Logger

	// WithWriter returns a new Logger writing to writer.
	WithWriter(io.Writer) Logger

	// WithNamespace returns a new Logger with the namespace replaced.
	WithNamespace(namespace string) Logger

	// WithNamespaceAppended returns a new Logger with namespace appended to
	// the current one, separated by a colon.
	WithNamespaceAppended(namespace string) Logger

	// WithConfig returns a new Logger with the config set. A nil config
	// keeps the current one.
	WithConfig(config Config) Logger
}

// logger writes formatted messages to writer when their level is enabled
// for its namespace.
type logger struct {
	config    Config
	ctx       Ctx
	formatter Formatter
	namespace string
	writer    io.Writer
}

// compile-time assertion that logger implements Logger.
var _ Logger = &logger{}

// New returns a disabled Logger writing to stderr. Use WithConfig to enable
// namespaces.
func New() Logger {
	return &logger{
		config:    LevelDisabled,
		formatter: NewStringFormatter(StringFormatterParams{}),
		writer:    os.Stderr,
	}
}

// NewFromEnv reads the namespace config from the environment variable key.
func NewFromEnv(key string) Logger {
	return New().WithConfig(NewConfigFromString(os.Getenv(key)))
}

func (l *logger) clone() *logger {
	c := *l

	return &c
}

// Ctx implements Logger.
func (l *logger) Ctx() Ctx {
	return l.ctx
}

// WithCtx implements Logger.
func (l *logger) WithCtx(ctx Ctx) Logger {
	c := l.clone()
	c.ctx = l.ctx.WithCtx(ctx)

	return c
}

// WithFormatter implements Logger.
func (l *logger) WithFormatter(formatter Formatter) Logger {
	c := l.clone()
	c.formatter = formatter

	return c
}

// WithWriter implements Logger.
func (l *logger) WithWriter(writer io.Writer) Logger {
	c := l.clone()
	c.writer = writer

	return c
}

// WithNamespace implements Logger.
func (l *logger) WithNamespace(namespace string) Logger {
	c := l.clone()
	c.namespace = namespace

	return c
}

// WithNamespaceAppended implements Logger.
func (l *logger) WithNamespaceAppended(namespace string) Logger {
	if l.namespace != "" {
		namespace = l.namespace + ":" + namespace
	}

	return l.WithNamespace(namespace)
}

// WithConfig implements Logger.
func (l *logger) WithConfig(config Config) Logger {
	if config == nil {
		return l
	}

	c := l.clone()
	c.config = config

	return c
}

// Namespace implements Logger.
func (l *logger) Namespace() string {
	return l.namespace
}

// Level implements Logger.
func (l *logger) Level() Level {
	return l.config.LevelForNamespace(l.namespace)
}

// IsLevelEnabled implements Logger.
func (l *logger) IsLevelEnabled(level Level) bool {
	configured := l.Level()

	return configured > LevelDisabled && level <= configured
}

// Trace implements Logger.
func (l *logger) Trace(message string, ctx Ctx) (int, error) {
	return l.log(LevelTrace, message, ctx)
}

// Debug implements Logger.
func (l *logger) Debug(message string, ctx Ctx) (int, error) {
	return l.log(LevelDebug, message, ctx)
}

// Info implements Logger.
func (l *logger) Info(message string, ctx Ctx) (int, error) {
	return l.log(LevelInfo, message, ctx)
}

// Warn implements Logger.
func (l *logger) Warn(message string, ctx Ctx) (int, error) {
	return l.log(LevelWarn, message, ctx)
}

// Error implements Logger.
func (l *logger) Error(message string, err error, ctx Ctx) (int, error) {
	switch {
	case err == nil:
	case message == "":
		message = fmt.Sprintf("%+v", err)
	default:
		message = fmt.Sprintf("%s: %+v", message, err)
	}

	return l.log(LevelError, message, ctx)
}

func (l *logger) log(level Level, body string, ctx Ctx) (int, error) {
	if !l.IsLevelEnabled(level) {
		return 0, nil
	}

	formatted, err := l.formatter.Format(Message{
		Timestamp: time.Now(),
		Namespace: l.namespace,
		Level:     level,
		Body:      body,
		Ctx:       l.ctx.WithCtx(ctx),
	})
	if err != nil {
		return 0, fmt.Errorf("log format error: %w", err)
	}

	n, err := l.writer.Write(formatted)
	if err != nil {
		return n, fmt.Errorf("log write error: %w", err)
	}

	return n, nil
}
