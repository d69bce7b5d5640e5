package logger

import "strings"

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

func levelForCategory(category string) Level {
	switch {
	case category == "error":
		return LevelError
	case category == "warning":
		return LevelWarning
	case strings.HasPrefix(category, "debug"):
		return LevelDebug
	}
	return LevelInfo
}

func validCategory(category string) bool {
	if category == "" {
		return false
	}
	return strings.ToLower(category) == category
}
