package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     *zap.SugaredLogger
	loggerOnce sync.Once
	mu         sync.RWMutex
	atomLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger installs a console logger on stderr unless Init was called first.
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger == nil {
			logger = build("console")
		}
	})
}

// Init replaces the global logger. encoding is "console" or "json".
func Init(level Level, encoding string) {
	loggerOnce.Do(func() {})
	SetLevel(level)

	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
	logger = build(encoding)
}

func build(encoding string) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(encoding, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(os.Stderr)), atomLevel)
	return zap.New(core).Sugar()
}

// ParseLevel maps a config string onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		atomLevel.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		atomLevel.SetLevel(zapcore.WarnLevel)
	case LevelError:
		atomLevel.SetLevel(zapcore.ErrorLevel)
	default:
		atomLevel.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	current().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Infow(msg, kv...)
}

// Warn is used for per-event data-quality problems that do not stop a render pass.
func Warn(msg string, kv ...any) {
	current().Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	current().Errorw(msg, extended...)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = current().Sync()
}

func current() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
