package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

func init() {
	// Cloud Logging field names.
	zerolog.LevelFieldName = "severity"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		parts := strings.Split(file, "/")
		return parts[len(parts)-1] + ":" + strconv.Itoa(line)
	}
}

// ===========================================================================
//
//	zerolog backend
//
// ===========================================================================

type zerologLogger struct {
	zl    zerolog.Logger
	level *atomic.Int64
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.log(LevelDebug, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.log(LevelInfo, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.log(LevelWarn, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.log(LevelError, msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{
		zl:    l.zl.With().Fields(fieldMap(fields)).Logger(),
		level: l.level,
	}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return int64(level) >= l.level.Load()
}

func (l *zerologLogger) log(level Level, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.zl.Debug()
	case LevelInfo:
		ev = l.zl.Info()
	case LevelWarn:
		ev = l.zl.Warn()
	default:
		ev = l.zl.Error()
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Stack().Err(err)
			if m, ok := asObjectMarshaler(err); ok {
				ev = ev.Object(ErrorTypeKey, m)
			}
			fields = fields[1:]
		}
	}
	ev.Fields(fieldMap(fields)).Msg(msg)
}

// asObjectMarshaler finds a typed error in the chain that knows how to
// describe itself to zerolog.
func asObjectMarshaler(err error) (zerolog.LogObjectMarshaler, bool) {
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		if m, ok := e.(zerolog.LogObjectMarshaler); ok {
			return m, true
		}
	}
	return nil, false
}

// fieldMap turns alternating key-value pairs into a zerolog field map.
// Error values are stored as their message; a trailing key without value is
// kept under "!BADKEY" like slog does.
func fieldMap(fields []any) map[string]interface{} {
	m := make(map[string]interface{}, len(fields)/2+1)
	for i := 0; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			m["!BADKEY"] = fields[i]
			break
		}
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok {
			m[key] = err.Error()
			continue
		}
		m[key] = fields[i+1]
	}
	return m
}

// ZerologProvider creates loggers that write JSON lines through zerolog.
type ZerologProvider struct {
	base  zerolog.Logger
	level *atomic.Int64
}

// NewZerologProvider returns a provider writing to the given writers, or to
// stdout when none is given.
func NewZerologProvider(level Level, writers ...io.Writer) *ZerologProvider {
	var out io.Writer = os.Stdout
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}
	lvl := &atomic.Int64{}
	lvl.Store(int64(level))
	return &ZerologProvider{
		base: zerolog.New(out).With().
			Timestamp().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2).
			Logger(),
		level: lvl,
	}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return p.GetLogger().With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel. It also applies to loggers
// handed out earlier.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int64(level))
}

// ===========================================================================
//
//	グローバルプロバイダー
//
// ===========================================================================

var (
	providerMu     sync.RWMutex
	globalProvider LoggerProvider = NewZerologProvider(LevelInfo)
)

// SetProvider replaces the provider used by GetLogger and GetLoggerWithName.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = p
}

// GetProvider returns the current global provider.
func GetProvider() LoggerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider
}

// GetLogger returns the default logger of the global provider.
func GetLogger() Logger {
	return GetProvider().GetLogger()
}

// GetLoggerWithName returns a component logger from the global provider.
func GetLoggerWithName(name string) Logger {
	return GetProvider().GetLoggerWithName(name)
}

// ===========================================================================
//
//	セットアップ
//
// ===========================================================================

type setupOptions struct {
	file       string
	maxSizeMB  int
	maxBackups int
	writer     io.Writer
}

// Option customises SetupLogger.
type Option func(*setupOptions)

// WithFile adds a rotating file sink next to stdout.
func WithFile(path string, maxSizeMB, maxBackups int) Option {
	return func(o *setupOptions) {
		o.file = path
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// WithWriter replaces stdout as the primary sink.
func WithWriter(w io.Writer) Option {
	return func(o *setupOptions) { o.writer = w }
}

// SetupLogger installs a zerolog provider as the global provider. The
// returned function closes the file sink, if any.
func SetupLogger(loglevel string, opts ...Option) (func() error, error) {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return nil, err
	}
	o := setupOptions{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	writers := []io.Writer{o.writer}
	closer := func() error { return nil }
	if o.file != "" {
		lj := &lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			Compress:   true,
		}
		writers = append(writers, lj)
		closer = lj.Close
	}

	SetProvider(NewZerologProvider(level, writers...))
	return closer, nil
}

// ParseLevel converts "debug", "info", "warn" or "error" (any case) to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.Newf("invalid log level: %s", level)
	}
}

// ToLogLevel is ParseLevel for values that were validated already; it panics
// on an unknown level.
func ToLogLevel(level string) Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
	return l
}
