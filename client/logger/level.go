package logger

import "fmt"

// Level defines the logging level.
type Level int

const (
	// LevelUnknown is an unknown level.
	LevelUnknown Level = iota - 1

	// LevelDisabled means no messages will be written.
	LevelDisabled

	// LevelError means only error messages will be written.
	LevelError

	// LevelWarn means warning and error messages will be written.
	LevelWarn

	// LevelInfo means info, warning and error messages will be written.
	LevelInfo

	// LevelDebug means everything except trace messages will be written.
	LevelDebug

	// LevelTrace means all messages will be written.
	LevelTrace
)

var levelNames = map[Level]string{
	LevelDisabled: "disabled",
	LevelError:    "error",
	LevelWarn:     "warn",
	LevelInfo:     "info",
	LevelDebug:    "debug",
	LevelTrace:    "trace",
}

// String returns the name of l.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return fmt.Sprintf("Unknown(%d)", int(l))
}

// LevelFromString parses a level name.
func LevelFromString(str string) (Level, bool) {
	for level, name := range levelNames {
		if name == str {
			return level, true
		}
	}

	return LevelUnknown, false
}

// LevelForNamespace implements Config: a plain Level applies to every
// namespace.
func (l Level) LevelForNamespace(string) Level {
	return l
}
