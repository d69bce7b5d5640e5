package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Logger struct {
	mu             sync.Mutex
	output         io.Writer
	file           *os.File
	minLevel       Level
	categoryWidth  int
	categoryFilter map[string]bool
	exit           func(code int)
}

func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{output: w, minLevel: LevelInfo, exit: os.Exit}
}

var std = New(os.Stdout)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func RegisterCategories(categories ...string) { std.RegisterCategories(categories...) }
func SetOutput(w io.Writer)                    { std.SetOutput(w) }
func SetLogFile(path string) error             { return std.SetLogFile(path) }
func Close()                                   { std.Close() }
func SetMinLevel(level Level)                  { std.SetMinLevel(level) }
func SetCategoryFilter(categories []string)    { std.SetCategoryFilter(categories) }
func IsCategoryEnabled(category string) bool   { return std.IsCategoryEnabled(category) }

// SetExitFunc replaces os.Exit for Fatal. Passing nil restores os.Exit.
func SetExitFunc(fn func(code int)) { std.SetExitFunc(fn) }

func Printf(category string, format string, v ...interface{}) {
	std.Printf(category, format, v...)
}

func Error(format string, v ...interface{})   { std.Printf("error", format, v...) }
func Warning(format string, v ...interface{}) { std.Printf("warning", format, v...) }
func Fatal(format string, v ...interface{})   { std.Fatal(format, v...) }

// RegisterCategories pads the category column to the longest name.
func (l *Logger) RegisterCategories(categories ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	width := len("warning")
	for _, cat := range categories {
		if len(cat) > width {
			width = len(cat)
		}
	}
	l.categoryWidth = width + 1
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	l.output = w
}

// SetLogFile tees output to stdout and the given file.
func (l *Logger) SetLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.output = io.MultiWriter(os.Stdout, f)
	return nil
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Sync()
		l.file.Close()
		l.file = nil
		l.output = os.Stdout
	}
}

func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

func (l *Logger) SetExitFunc(fn func(code int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn == nil {
		fn = os.Exit
	}
	l.exit = fn
}

func (l *Logger) SetCategoryFilter(categories []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(categories) == 0 {
		l.categoryFilter = nil
		return
	}
	l.categoryFilter = make(map[string]bool, len(categories))
	for _, cat := range categories {
		l.categoryFilter[cat] = true
	}
}

func (l *Logger) IsCategoryEnabled(category string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.categoryFilter == nil || l.categoryFilter[category]
}

// allowed: errors and warnings always pass; a category named in the filter
// passes regardless of level; everything else needs both the level and the
// filter.
func (l *Logger) allowed(category string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.categoryFilter != nil && l.categoryFilter[category] {
		return true
	}
	level := levelForCategory(category)
	if level < l.minLevel {
		return false
	}
	if level >= LevelWarning {
		return true
	}
	return l.categoryFilter == nil
}

func (l *Logger) Printf(category string, format string, v ...interface{}) {
	if !l.allowed(category) {
		return
	}
	if !validCategory(category) {
		category = "invalid_category"
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		if buf.Cap() <= 64*1024 {
			bufferPool.Put(buf)
		}
	}()

	buf.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(category)

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(category); i < l.categoryWidth; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteByte(' ')
	fmt.Fprintf(buf, format, v...)
	if buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
	l.output.Write(buf.Bytes())
}

func (l *Logger) Error(format string, v ...interface{})   { l.Printf("error", format, v...) }
func (l *Logger) Warning(format string, v ...interface{}) { l.Printf("warning", format, v...) }

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.Printf("error", format, v...)
	l.mu.Lock()
	exit := l.exit
	l.mu.Unlock()
	exit(1)
}

func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func FormatRate(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", n/1_000)
	}
	return fmt.Sprintf("%.0f", n)
}
