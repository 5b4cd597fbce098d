// Package log provides structured logging for minixcompat using zap.
package log

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with minixcompat-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance, tagged with a fresh correlation ID
// for this run so every line from one invocation can be grepped out of
// a shared log stream.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Shorter timestamps, in both modes
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	logger = logger.With(zap.String("run", uuid.NewString()))
	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Syscall logs one dispatched guest call: the MINIX call number, the
// decoded destination task, and the outcome.
func (l *Logger) Syscall(callNo int, task int16, ok bool) {
	l.Debug("syscall",
		zap.Int("call", callNo),
		zap.Int16("task", task),
		zap.Bool("ok", ok),
	)
}

// ExecLoad logs a successful or failed guest exec.
func (l *Logger) ExecLoad(path string, base uint32, err error) {
	if err != nil {
		l.Warn("exec load failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	l.Info("exec load",
		zap.String("path", path),
		Addr(uint64(base)),
	)
}

// SignalPending logs delivery of a queued guest signal.
func (l *Logger) SignalPending(sig int) {
	l.Debug("signal pending", zap.Int("sig", sig))
}

// Fatal logs an invariant violation immediately before the process
// aborts (spec §7's "fatal; abort immediately" policy).
func (l *Logger) Fatal(msg string, err error) {
	l.Logger.Fatal(msg, zap.Error(err))
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("cat", category))}
}

// Hex formats a uint64 as hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Ptr creates a pointer field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}
