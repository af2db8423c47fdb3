// Package logging provides config-driven categorized logging for ispl.
// Entries are JSON lines written by zap to a lumberjack-rotated file, so the
// terminal UI never competes with log output for stdout.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and wiring
	CategorySession  Category = "session"  // Login, logout, eviction, token file
	CategoryAPI      Category = "api"      // Request gateway traffic
	CategoryChat     Category = "chat"     // Conversation orchestrator
	CategoryPolicies Category = "policies" // Document listing, upload, delete
	CategoryImage    Category = "image"    // Image analysis
	CategoryArtifact Category = "artifact" // Transient artifact handles
	CategoryWorkflow Category = "workflow" // Workflow log viewer
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	DebugMode  bool
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	Categories map[string]bool

	// Console adds a human-readable stderr core (CLI --verbose).
	Console bool
}

// Logger is a category-scoped view over the shared zap core.
type Logger struct {
	category Category
	z        *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	cfg     Config
	rotator *lumberjack.Logger
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared core. Safe to call again to reconfigure.
func Initialize(c Config) error {
	level, err := parseLevel(c.Level)
	if err != nil {
		return err
	}
	if c.DebugMode {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	var rot *lumberjack.Logger
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		rot = &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     30,
			Compress:   true,
		}

		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.MessageKey = "message"
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rot),
			level,
		))
	}
	if c.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	l := zap.NewNop()
	if len(cores) > 0 {
		l = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))
	}

	mu.Lock()
	old := rotator
	base = l
	cfg = c
	rotator = rot
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	Get(CategoryBoot).Info("logging initialized: file=%s level=%s debug=%v", c.File, level, c.DebugMode)
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories absent from the map are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if cfg.Categories == nil {
		return true
	}
	enabled, ok := cfg.Categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, z: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		z:        base.With(zap.String("category", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) { l.z.Debugf(format, args...) }

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) { l.z.Infof(format, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) { l.z.Warnf(format, args...) }

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) { l.z.Errorf(format, args...) }

// With returns a logger carrying structured fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{category: l.category, z: l.z.Desugar().With(fields...).Sugar()}
}

// Structured writes a single entry with explicit zap fields.
func (l *Logger) Structured(level zapcore.Level, msg string, fields ...zap.Field) {
	if ce := l.z.Desugar().Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() error {
	mu.RLock()
	l := base
	mu.RUnlock()
	return l.Sync()
}

// Close flushes and closes the rotating file.
func Close() {
	_ = Sync()
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
	base = zap.NewNop()
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Session(format string, args ...interface{})      { Get(CategorySession).Info(format, args...) }
func SessionWarn(format string, args ...interface{})  { Get(CategorySession).Warn(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

func Chat(format string, args ...interface{})      { Get(CategoryChat).Info(format, args...) }
func ChatWarn(format string, args ...interface{})  { Get(CategoryChat).Warn(format, args...) }
func ChatDebug(format string, args ...interface{}) { Get(CategoryChat).Debug(format, args...) }

func Policies(format string, args ...interface{})      { Get(CategoryPolicies).Info(format, args...) }
func PoliciesWarn(format string, args ...interface{})  { Get(CategoryPolicies).Warn(format, args...) }
func PoliciesDebug(format string, args ...interface{}) { Get(CategoryPolicies).Debug(format, args...) }

func Image(format string, args ...interface{})      { Get(CategoryImage).Info(format, args...) }
func ImageWarn(format string, args ...interface{})  { Get(CategoryImage).Warn(format, args...) }
func ImageDebug(format string, args ...interface{}) { Get(CategoryImage).Debug(format, args...) }

func Artifact(format string, args ...interface{})      { Get(CategoryArtifact).Info(format, args...) }
func ArtifactWarn(format string, args ...interface{})  { Get(CategoryArtifact).Warn(format, args...) }
func ArtifactDebug(format string, args ...interface{}) { Get(CategoryArtifact).Debug(format, args...) }

func Workflow(format string, args ...interface{})      { Get(CategoryWorkflow).Info(format, args...) }
func WorkflowWarn(format string, args ...interface{})  { Get(CategoryWorkflow).Warn(format, args...) }
func WorkflowDebug(format string, args ...interface{}) { Get(CategoryWorkflow).Debug(format, args...) }
