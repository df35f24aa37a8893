// Package logging provides categorized file-based logging for shopagent.
// Logs are written to <dir>/logs/ with a separate file per category.
// Logging is a silent no-op unless debug mode is enabled, so production
// request handling never pays for disk writes.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and configuration
	CategorySession    Category = "session"    // Session load/save
	CategoryDialog     Category = "dialog"     // Per-turn dialog pipeline
	CategoryPolicy     Category = "policy"     // Policy table and engine
	CategoryPerception Category = "perception" // LLM extraction and classification
	CategoryPricing    Category = "pricing"    // Price provider calls
	CategoryStore      Category = "store"      // SQLite operations
	CategoryServer     Category = "server"     // HTTP transport
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger initialization.
type Options struct {
	// Dir is the directory under which a logs/ subdirectory is created.
	Dir string
	// DebugMode enables log output. When false, all logging is a no-op.
	DebugMode bool
	// Level is the minimum level written: "debug", "info", "warn", "error".
	Level string
	// Categories optionally restricts output to the listed categories.
	// Empty means all categories.
	Categories map[string]bool
}

// Logger wraps a standard logger bound to one category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu         sync.RWMutex
	loggers    = make(map[Category]*Logger)
	logsDir    string
	opts       Options
	logLevel   int
	configured bool
)

// Initialize sets up the logging directory. Call once at startup.
// With DebugMode false this is a no-op and all subsequent calls are free.
func Initialize(o Options) error {
	mu.Lock()
	defer mu.Unlock()

	opts = o
	logLevel = parseLevel(o.Level)
	configured = true

	if !o.DebugMode {
		return nil
	}
	if o.Dir == "" {
		return fmt.Errorf("logging directory required when debug mode is on")
	}

	logsDir = filepath.Join(o.Dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func enabled(cat Category) bool {
	if !configured || !opts.DebugMode {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	return opts.Categories[string(cat)]
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}

	l := &Logger{category: cat}
	if enabled(cat) && logsDir != "" {
		path := filepath.Join(logsDir, string(cat)+".log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", 0)
		}
	}
	loggers[cat] = l
	return l
}

// Close flushes and closes all category log files.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

func (l *Logger) write(level int, levelName, format string, args ...interface{}) {
	if l.logger == nil || !enabled(l.category) {
		return
	}
	mu.RLock()
	min := logLevel
	mu.RUnlock()
	if level < min {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("%s [%s] %s", ts, levelName, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Category convenience helpers. These keep call sites terse:
// logging.DialogDebug("turn=%d slot=%s", n, slot)

func DialogDebug(format string, args ...interface{}) { Get(CategoryDialog).Debug(format, args...) }
func Dialog(format string, args ...interface{})      { Get(CategoryDialog).Info(format, args...) }
func DialogWarn(format string, args ...interface{})  { Get(CategoryDialog).Warn(format, args...) }
func PolicyDebug(format string, args ...interface{}) { Get(CategoryPolicy).Debug(format, args...) }
func Policy(format string, args ...interface{})      { Get(CategoryPolicy).Info(format, args...) }
func PerceptionDebug(format string, args ...interface{}) {
	Get(CategoryPerception).Debug(format, args...)
}
func Perception(format string, args ...interface{}) { Get(CategoryPerception).Info(format, args...) }
func PerceptionWarn(format string, args ...interface{}) {
	Get(CategoryPerception).Warn(format, args...)
}
func PerceptionError(format string, args ...interface{}) {
	Get(CategoryPerception).Error(format, args...)
}
func PricingDebug(format string, args ...interface{}) { Get(CategoryPricing).Debug(format, args...) }
func StoreDebug(format string, args ...interface{})   { Get(CategoryStore).Debug(format, args...) }
func ServerDebug(format string, args ...interface{})  { Get(CategoryServer).Debug(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	name     string
	start    time.Time
}

// StartTimer begins timing an operation for the given category.
func StartTimer(cat Category, name string) *Timer {
	return &Timer{category: cat, name: name, start: time.Now()}
}

// Stop logs the elapsed time. Operations slower than one second are
// logged at warn level.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	l := Get(t.category)
	if elapsed > time.Second {
		l.Warn("%s took %v", t.name, elapsed)
		return
	}
	l.Debug("%s took %v", t.name, elapsed)
}
