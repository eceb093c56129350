// Package logger is the structured logger shared by the API, the worker
// and the client SDK. Entries carry a level, a message, the caller and a
// flat set of fields, rendered as one JSON object or one key=value line.
// Loggers travel through request contexts.
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError

	levelOff
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name. Unknown names mean LevelInfo.
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

// Format selects how entries are rendered.
type Format int

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = iota
	// FormatText writes "time LEVEL message key=value ..." lines.
	FormatText
)

// ParseFormat parses "json" or "text". Anything else means FormatJSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "text") {
		return FormatText
	}
	return FormatJSON
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field         { return Field{Key: key, Value: value} }

// Err creates an error field.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field in milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key + "_ms", Value: float64(value.Microseconds()) / 1000}
}

// Domain field helpers.
func StudentID(id string) Field     { return String("student_id", id) }
func ClassID(id string) Field       { return String("class_id", id) }
func AssignmentID(id string) Field  { return String("assignment_id", id) }
func EvaluationID(id string) Field  { return String("evaluation_id", id) }
func RunID(id string) Field         { return String("run_id", id) }
func Strategy(name string) Field    { return String("strategy", name) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
func Aggregate(v float64) Field     { return Float64("aggregate", v) }
func StatusCode(code int) Field     { return Int("status", code) }

// RequestIDKey is the field key for request tracing.
const RequestIDKey = "request_id"

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// Options configures the logger.
type Options struct {
	Output    io.Writer
	Level     Level
	Format    Format
	AddCaller bool
}

// DefaultOptions returns JSON at info level on stdout, with callers.
func DefaultOptions() Options {
	return Options{
		Output:    os.Stdout,
		Level:     LevelInfo,
		Format:    FormatJSON,
		AddCaller: true,
	}
}

// sink is shared by a logger and every logger derived from it, so their
// lines never interleave.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// Logger writes structured entries. Derived loggers share the output.
type Logger struct {
	sink      *sink
	level     Level
	format    Format
	addCaller bool
	fields    []Field
	now       func() time.Time
}

// New creates a new Logger with the given options.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{
		sink:      &sink{out: opts.Output},
		level:     opts.Level,
		format:    opts.Format,
		addCaller: opts.AddCaller,
		now:       time.Now,
	}
}

// Default creates a logger with default options.
func Default() *Logger {
	return New(DefaultOptions())
}

// Discard returns a logger that drops every entry. Used by tests and by
// components constructed without a logger.
func Discard() *Logger {
	return New(Options{Output: io.Discard, Level: levelOff})
}

// With returns a Logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return &child
}

// WithRequestID returns a logger that tags entries with a request ID.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	// Later fields win over earlier ones with the same key.
	merged := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.Key] = f.Value
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}

	caller := ""
	if l.addCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			caller = file[strings.LastIndex(file, "/")+1:] + ":" + strconv.Itoa(line)
		}
	}

	var buf bytes.Buffer
	ts := l.now().UTC().Format(time.RFC3339Nano)
	if l.format == FormatText {
		writeText(&buf, ts, level, msg, caller, merged)
	} else {
		writeJSON(&buf, ts, level, msg, caller, merged)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = l.sink.out.Write(buf.Bytes())
}

func writeJSON(buf *bytes.Buffer, ts string, level Level, msg, caller string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["time"] = ts
	entry["level"] = level.String()
	entry["msg"] = msg
	if caller != "" {
		entry["caller"] = caller
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(buf, `{"time":%q,"level":%q,"msg":%q,"log_error":%q}`+"\n", ts, level.String(), msg, err.Error())
		return
	}
	buf.Write(data)
	buf.WriteByte('\n')
}

func writeText(buf *bytes.Buffer, ts string, level Level, msg, caller string, fields map[string]any) {
	fmt.Fprintf(buf, "%s %-5s %s", ts, level.String(), msg)
	if caller != "" {
		fmt.Fprintf(buf, " caller=%s", caller)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(fields[k])
		if strings.ContainsAny(v, " \t\"=") {
			v = strconv.Quote(v)
		}
		fmt.Fprintf(buf, " %s=%s", k, v)
	}
	buf.WriteByte('\n')
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or a default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}
