package progress

import (
	"strings"

	"github.com/rs/zerolog"
)

// Level classifies a run-progress line.
type Level int32

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
	LevelWarning
	LevelPhase
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelPhase:
		return "phase"
	default:
		return "info"
	}
}

// Reporter receives the engine's run narration. Invoked at least once per
// phase transition and once per step outcome; this is the only externally
// observable progress channel.
type Reporter interface {
	Log(message string, level Level)
}

// LogReporter writes run narration through zerolog.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Log(message string, level Level) {
	evt := r.logger.Info()
	switch level {
	case LevelError:
		evt = r.logger.Error()
	case LevelWarning:
		evt = r.logger.Warn()
	}
	evt.Str("level", level.String()).Msg(message)
}

// Recorder captures narration for assertions in tests.
type Recorder struct {
	Entries []Entry
}

type Entry struct {
	Message string
	Level   Level
}

func (r *Recorder) Log(message string, level Level) {
	r.Entries = append(r.Entries, Entry{Message: message, Level: level})
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, e := range r.Entries {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Find returns the first recorded line containing substr, or nil.
func (r *Recorder) Find(substr string) *Entry {
	for i := range r.Entries {
		if strings.Contains(r.Entries[i].Message, substr) {
			return &r.Entries[i]
		}
	}
	return nil
}
