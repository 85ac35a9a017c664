// Package logs decodes log.entryAdded events into console, javascript and
// generic entries.
package logs

import (
	"encoding/json"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Common holds the fields every entry carries. Text is nil when the remote
// end had no string form for the entry.
type Common struct {
	Level      Level              `json:"level"`
	Source     script.Source      `json:"source"`
	Text       *string            `json:"text"`
	Timestamp  int64              `json:"timestamp"`
	StackTrace *script.StackTrace `json:"stackTrace,omitempty"`
}

// Entry is one of ConsoleEntry, JavaScriptEntry or GenericEntry.
type Entry interface {
	Type() string
	Base() Common
}

// ConsoleEntry comes from a console.* call. Args are the call's arguments.
type ConsoleEntry struct {
	Common
	Method string
	Args   []script.RemoteValue
}

// JavaScriptEntry reports an uncaught exception.
type JavaScriptEntry struct {
	Common
}

// GenericEntry covers every other entry type the remote end emits.
type GenericEntry struct {
	Common
	Kind string
}

func (ConsoleEntry) Type() string    { return "console" }
func (JavaScriptEntry) Type() string { return "javascript" }
func (e GenericEntry) Type() string  { return e.Kind }

func (e ConsoleEntry) Base() Common    { return e.Common }
func (e JavaScriptEntry) Base() Common { return e.Common }
func (e GenericEntry) Base() Common    { return e.Common }

// DecodeEntry decodes log.entryAdded params.
func DecodeEntry(data json.RawMessage) (Entry, error) {
	var w struct {
		Common
		Type   string            `json:"type"`
		Method string            `json:"method"`
		Args   []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return nil, bidi.Malformed("LogEntry", "level", fmt.Sprintf("unsupported value %q", w.Level))
	}

	switch w.Type {
	case "":
		return nil, bidi.Malformed("LogEntry", "type", "is missing")
	case "console":
		if w.Method == "" {
			return nil, bidi.Malformed("ConsoleLogEntry", "method", "is missing")
		}
		args, err := script.DecodeRemoteValues(w.Args)
		if err != nil {
			return nil, fmt.Errorf("decode console args: %w", err)
		}
		return ConsoleEntry{Common: w.Common, Method: w.Method, Args: args}, nil
	case "javascript":
		return JavaScriptEntry{Common: w.Common}, nil
	default:
		return GenericEntry{Common: w.Common, Kind: w.Type}, nil
	}
}

func RegisterEvents(d *bidi.Dispatcher) {
	d.RegisterDecoder(bidi.EventLogEntryAdded, bidi.DecodeWith(DecodeEntry))
}

// OnEntry registers fn for log entries at or above minLevel. An empty
// minLevel receives everything.
func OnEntry(d *bidi.Dispatcher, minLevel Level, fn func(Entry)) bidi.ListenerID {
	RegisterEvents(d)
	floor := severity(minLevel)
	return bidi.On(d, bidi.EventLogEntryAdded, func(e Entry) {
		if severity(e.Base().Level) >= floor {
			fn(e)
		}
	})
}

func severity(l Level) int {
	switch l {
	case LevelDebug:
		return 1
	case LevelInfo:
		return 2
	case LevelWarn:
		return 3
	case LevelError:
		return 4
	}
	return 0
}
