package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/zsiec/avcore/internal/config"
	"github.com/zsiec/avcore/pkg/version"
)

// Logger is the structured logger handed to coders, muxers and engines.
// Those packages never see logrus directly so tests can pass a Discard.
type Logger interface {
	WithFields(fields map[string]interface{}) Logger
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Log(level logrus.Level, args ...interface{})
}

type entryLogger struct {
	entry *logrus.Entry
}

// NewLogrusAdapter wraps a logrus entry.
func NewLogrusAdapter(entry *logrus.Entry) Logger {
	return entryLogger{entry: entry}
}

func (l entryLogger) WithFields(fields map[string]interface{}) Logger {
	return entryLogger{entry: l.entry.WithFields(fields)}
}

func (l entryLogger) WithField(key string, value interface{}) Logger {
	return entryLogger{entry: l.entry.WithField(key, value)}
}

func (l entryLogger) WithError(err error) Logger {
	return entryLogger{entry: l.entry.WithError(err)}
}

func (l entryLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l entryLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l entryLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l entryLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l entryLogger) Log(level logrus.Level, args ...interface{}) {
	l.entry.Log(level, args...)
}

// New builds the process logger from the logging section of the config.
// Any output other than stdout or stderr is treated as a file path and
// rotated with lumberjack.
func New(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	log := logrus.New()
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	switch cfg.Output {
	case "stdout":
		log.SetOutput(os.Stdout)
	case "stderr":
		log.SetOutput(os.Stderr)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
	}

	return log, nil
}

// ServiceEntry returns the root entry every component logger derives from.
func ServiceEntry(log *logrus.Logger) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"service": "avcore",
		"version": version.GetInfo().Short(),
	})
}

// FromLogrus wraps a configured logrus logger in the Logger interface.
func FromLogrus(log *logrus.Logger) Logger {
	return NewLogrusAdapter(ServiceEntry(log))
}

// WithComponent tags the service entry with a component name.
func WithComponent(log *logrus.Logger, component string) *logrus.Entry {
	return ServiceEntry(log).WithField("component", component)
}

// WithCoder tags a logger with a coder's role and codec.
func WithCoder(log Logger, role, codec string) Logger {
	return log.WithFields(map[string]interface{}{
		"coder": role,
		"codec": codec,
	})
}

// Fields is a type alias for logrus.Fields for convenience
type Fields = logrus.Fields
