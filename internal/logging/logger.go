// Package logging provides leveled logging and mutation tracing for evonet.
//
// Two outputs are offered:
//   - a leveled slog.Logger for operational output on stderr
//   - a DecisionLogger that appends structured events to .evonet/mutations.jsonl
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug and enables per-sample and per-mutation output.
const LevelTrace = slog.LevelDebug - 4

// DecisionFile is the file name the DecisionLogger appends to.
const DecisionFile = "mutations.jsonl"

// Levels lists the accepted level names.
func Levels() []string {
	return []string{"info", "debug", "trace"}
}

// ValidLevel reports whether s names a level ("" counts as the default).
func ValidLevel(s string) bool {
	if s == "" {
		return true
	}
	for _, l := range Levels() {
		if strings.EqualFold(s, l) {
			return true
		}
	}
	return false
}

// ParseLevel maps a level name to a slog.Level. Matching is
// case-insensitive and unknown names fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceLevel,
	}))
}

// NewJSONLogger is NewLogger with one JSON object per record.
func NewJSONLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceLevel,
	}))
}

// Discard returns a logger that drops everything. Packages that accept an
// optional *slog.Logger use it in place of nil.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or Discard() when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// DecisionLogger appends structured events to a JSONL file. It is safe for
// concurrent use, and every method is a no-op on a nil receiver.
type DecisionLogger struct {
	mu   sync.Mutex
	w    io.Writer
	file *os.File
	now  func() time.Time
}

// NewDecisionLogger opens dir/mutations.jsonl for append when level is
// debug or trace. At info, or when the file cannot be opened, it returns nil.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, DecisionFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{w: f, file: f, now: time.Now}
}

// NewDecisionWriter returns a DecisionLogger writing to w. Close does not
// close w.
func NewDecisionWriter(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w, now: time.Now}
}

// Log writes event as a single JSON line with a "time" field added. The
// caller's map is left untouched.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = dl.now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.w == nil {
		return
	}
	_, _ = dl.w.Write(data)
}

// MutationEvent describes one mutation attempt.
type MutationEvent struct {
	Generation int
	Genome     int
	Parent     int
	Kind       string
	Applied    bool
	Nodes      int
	Conns      int
}

// LogMutation records a mutation attempt.
func (dl *DecisionLogger) LogMutation(e MutationEvent) {
	if dl == nil {
		return
	}
	dl.Log(map[string]any{
		"event":       "mutation",
		"generation":  e.Generation,
		"genome":      e.Genome,
		"parent":      e.Parent,
		"kind":        e.Kind,
		"applied":     e.Applied,
		"nodes":       e.Nodes,
		"connections": e.Conns,
	})
}

// Close closes the underlying file, if the logger owns one.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.file != nil {
		dl.file.Close()
		dl.file = nil
	}
	dl.w = nil
}
