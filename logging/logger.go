// Package logging 提供统一的日志接口抽象
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String 返回级别名称
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析配置中的级别名称，未知名称回退到 InfoLevel
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 添加字段，返回新的Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// 字段构造函数
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration 以 time.Duration 作为字段值，格式化输出
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Component 约定的组件字段，各模块用它区分日志来源
func Component(name string) Field {
	return Field{Key: "component", Value: name}
}

// StdLogger 标准库log实现，低于 level 的日志直接丢弃
type StdLogger struct {
	out    *log.Logger
	prefix string
	level  Level
	fields []Field
}

// NewStdLogger 创建写到 stderr 的标准库Logger
func NewStdLogger(prefix string) *StdLogger {
	return NewStdLoggerTo(os.Stderr, prefix, InfoLevel)
}

// NewStdLoggerTo 创建写到指定 writer 的Logger
func NewStdLoggerTo(w io.Writer, prefix string, level Level) *StdLogger {
	return &StdLogger{
		out:    log.New(w, "", log.LstdFlags),
		prefix: prefix,
		level:  level,
	}
}

func (l *StdLogger) format(msg string, fields ...Field) string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	for _, f := range l.fields {
		b.WriteString(" " + f.Key + "=" + formatValue(f.Value))
	}
	for _, f := range fields {
		b.WriteString(" " + f.Key + "=" + formatValue(f.Value))
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) emit(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	l.out.Println("["+level.String()+"]", l.format(msg, fields...))
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.emit(DebugLevel, msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.emit(InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.emit(WarnLevel, msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.emit(ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	newFields := make([]Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)
	return &StdLogger{
		out:    l.out,
		prefix: l.prefix,
		level:  l.level,
		fields: newFields,
	}
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

// Entry 一条被捕获的日志
type Entry struct {
	Level   Level
	Message string
	Fields  map[string]any
}

// MemoryLogger 把日志保存在内存中，测试里用来断言失败路径确实留下了记录
type MemoryLogger struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  []Field
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (l *MemoryLogger) record(level Level, msg string, fields []Field) {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.Key] = f.Value
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	l.mu.Lock()
	*l.entries = append(*l.entries, Entry{Level: level, Message: msg, Fields: merged})
	l.mu.Unlock()
}

func (l *MemoryLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.record(DebugLevel, msg, fields)
}

func (l *MemoryLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.record(InfoLevel, msg, fields)
}

func (l *MemoryLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.record(WarnLevel, msg, fields)
}

func (l *MemoryLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.record(ErrorLevel, msg, fields)
}

// WithFields 返回共享同一份记录的子Logger
func (l *MemoryLogger) WithFields(fields ...Field) Logger {
	newFields := make([]Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)
	return &MemoryLogger{mu: l.mu, entries: l.entries, fields: newFields}
}

// Entries 返回当前所有记录的副本
func (l *MemoryLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// Count 统计指定级别的记录数
func (l *MemoryLogger) Count(level Level) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// 全局Logger
var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewStdLogger("")
)

// SetLogger 设置全局Logger
func SetLogger(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetLogger 获取全局Logger
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}
