// Package logging provides config-driven categorized logging for alertdesk.
// Every category shares one zap core; debug_mode and the per-category map decide
// which categories actually emit.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, config loading
	CategoryPage       Category = "page"       // Page binding and event routing
	CategoryToggle     Category = "toggle"     // Toggle rule evaluation
	CategoryInvalidate Category = "invalidate" // Cache invalidation requests
	CategoryGuard      Category = "guard"      // Alert form submission guard
	CategoryNotify     Category = "notify"     // User-facing notifications
	CategoryBrowser    Category = "browser"    // Live browser sessions, DOM bridge
	CategoryLoop       Category = "loop"       // Event loop scheduling
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional output file; stderr when empty
	DebugMode  bool            // false = only warn and above are written
	Categories map[string]bool // per-category toggles
}

// Logger is a category-scoped logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	opts    Options
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared zap logger from opts.
func Initialize(o Options) error {
	level := zapcore.InfoLevel
	if o.Level != "" {
		if err := level.Set(o.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
	}
	if !o.DebugMode && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}

	cfg := zap.NewProductionConfig()
	if o.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if o.File != "" {
		cfg.OutputPaths = []string{o.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	base = l
	opts = o
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	Boot("logging initialized (level=%s, debug=%v)", level, o.DebugMode)
	return nil
}

// SetBase installs an already built zap logger, as the CLI and tests do.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	opts = Options{DebugMode: true}
	loggers = make(map[Category]*Logger)
}

// Base returns the shared zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
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
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Zap exposes the structured logger for callers that want typed fields.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// StructuredLog writes an entry with custom fields at the named level.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	switch level {
	case "debug":
		l.sugar.Debugw(msg, kv...)
	case "warn":
		l.sugar.Warnw(msg, kv...)
	case "error":
		l.sugar.Errorw(msg, kv...)
	default:
		l.sugar.Infow(msg, kv...)
	}
}

// Sync flushes the shared logger. Call at shutdown.
func Sync() {
	_ = Base().Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Page(format string, args ...interface{})      { Get(CategoryPage).Info(format, args...) }
func PageDebug(format string, args ...interface{}) { Get(CategoryPage).Debug(format, args...) }
func PageWarn(format string, args ...interface{})  { Get(CategoryPage).Warn(format, args...) }

func Toggle(format string, args ...interface{})      { Get(CategoryToggle).Info(format, args...) }
func ToggleDebug(format string, args ...interface{}) { Get(CategoryToggle).Debug(format, args...) }

func Invalidate(format string, args ...interface{})      { Get(CategoryInvalidate).Info(format, args...) }
func InvalidateDebug(format string, args ...interface{}) { Get(CategoryInvalidate).Debug(format, args...) }
func InvalidateWarn(format string, args ...interface{})  { Get(CategoryInvalidate).Warn(format, args...) }
func InvalidateError(format string, args ...interface{}) { Get(CategoryInvalidate).Error(format, args...) }

func Guard(format string, args ...interface{})      { Get(CategoryGuard).Info(format, args...) }
func GuardDebug(format string, args ...interface{}) { Get(CategoryGuard).Debug(format, args...) }
func GuardWarn(format string, args ...interface{})  { Get(CategoryGuard).Warn(format, args...) }

func Notify(format string, args ...interface{})      { Get(CategoryNotify).Info(format, args...) }
func NotifyError(format string, args ...interface{}) { Get(CategoryNotify).Error(format, args...) }

func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }
func BrowserWarn(format string, args ...interface{})  { Get(CategoryBrowser).Warn(format, args...) }
func BrowserError(format string, args ...interface{}) { Get(CategoryBrowser).Error(format, args...) }

func LoopDebug(format string, args ...interface{}) { Get(CategoryLoop).Debug(format, args...) }

// =============================================================================
// REQUEST CORRELATION
// =============================================================================

// RequestLogger tags every entry with a request ID and extra fields.
type RequestLogger struct {
	category  Category
	requestID string
	fields    map[string]interface{}
}

// WithRequestID returns a logger that correlates entries for one request.
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		category:  category,
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

// WithField adds a field to every subsequent entry.
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) log(level, format string, args ...interface{}) {
	fields := make(map[string]interface{}, len(r.fields)+1)
	for k, v := range r.fields {
		fields[k] = v
	}
	fields["req"] = r.requestID
	Get(r.category).StructuredLog(level, fmt.Sprintf(format, args...), fields)
}

func (r *RequestLogger) Debug(format string, args ...interface{}) { r.log("debug", format, args...) }
func (r *RequestLogger) Info(format string, args ...interface{})  { r.log("info", format, args...) }
func (r *RequestLogger) Warn(format string, args ...interface{})  { r.log("warn", format, args...) }
func (r *RequestLogger) Error(format string, args ...interface{}) { r.log("error", format, args...) }

// =============================================================================
// TIMING
// =============================================================================

// Timer measures one operation and logs its duration.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer starts timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.operation, elapsed)
	return elapsed
}

// StopWithThreshold logs at warn level when the operation was slower than threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s slow: %v (threshold %v)", t.operation, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.operation, elapsed)
	}
	return elapsed
}
