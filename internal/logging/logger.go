// Package logging configures the broker's zap logger. Console output always
// goes to stderr so it never collides with the stdio JSON-RPC transport on
// stdout; file output, when enabled, rotates through lumberjack.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ica-mcp/proxy/internal/icahome"
)

// Log level constants, matching the values accepted by Config.Level.
// LevelTrace is accepted for parity with the CLI's --log-level flag and
// maps to zap's debug level; zap has no finer level than debug.
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config controls logger construction.
type Config struct {
	Level         string
	EnableConsole bool
	EnableFile    bool
	// LogDir overrides the default $ICA_HOME/logs directory.
	LogDir     string
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	JSON       bool
}

// DefaultConfig returns the broker's default logging configuration: console
// only, info level, human-readable.
func DefaultConfig() *Config {
	return &Config{
		Level:         LevelInfo,
		EnableConsole: true,
		EnableFile:    false,
		Filename:      "mcp-proxy.log",
		MaxSizeMB:     10,
		MaxBackups:    5,
		MaxAgeDays:    30,
		Compress:      true,
	}
}

// New builds a zap.Logger from cfg, defaulting a nil cfg to DefaultConfig.
func New(cfg *Config, scriptFile string) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stderr), level))
	}
	if cfg.EnableFile {
		fileCore, err := fileCore(cfg, scriptFile, level)
		if err != nil {
			return nil, fmt.Errorf("logging.New: %w", err)
		}
		cores = append(cores, fileCore)
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("logging.New: no log outputs configured")
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// ForUpstream annotates logger with the upstream server name, for the
// per-worker log lines emitted around session open/recycle/errors.
func ForUpstream(logger *zap.Logger, server string) *zap.Logger {
	return logger.With(zap.String("server", server))
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case LevelTrace, LevelDebug:
		return zap.DebugLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func fileCore(cfg *Config, scriptFile string, level zapcore.Level) (zapcore.Core, error) {
	dir := cfg.LogDir
	if dir == "" {
		home := icahome.Resolve(scriptFile)
		if home == "" {
			return nil, fmt.Errorf("cannot resolve log directory: ICA_HOME is unset")
		}
		dir = filepath.Join(home, "logs")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	sink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, cfg.Filename),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	encoder := fileEncoder()
	if cfg.JSON {
		encoder = jsonEncoder()
	}
	return zapcore.NewCore(encoder, zapcore.AddSync(sink), level), nil
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(cfg)
}
