package logger

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// JournalTimeLayout is the timestamp layout used when rendering journal entries.
const JournalTimeLayout = "2006-01-02 15:04:05"

// Entry is one captured log line of a run.
type Entry struct {
	// Time is when the entry was logged.
	Time time.Time
	// Level is the zap level of the entry.
	Level zapcore.Level
	// Message is the log message with its key-value pairs appended.
	Message string
}

// String renders the entry as "timestamp: message".
func (e Entry) String() string {
	return e.Time.Format(JournalTimeLayout) + ": " + e.Message
}

// Journal accumulates log entries of a single run in memory.
// It is append-only; Entries returns a snapshot.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	level   zapcore.LevelEnabler
}

// NewJournal creates an empty journal recording entries enabled by level.
func NewJournal(level zapcore.LevelEnabler) *Journal {
	if level == nil {
		level = zapcore.InfoLevel
	}

	return &Journal{level: level}
}

// Core returns a zap core that appends every written entry to the journal.
//
//nolint:ireturn // Returning zapcore.Core is intended for zap integration.
func (j *Journal) Core() zapcore.Core {
	return &journalCore{journal: j}
}

// Entries returns a copy of the recorded entries in logging order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	return slices.Clone(j.entries)
}

// Lines renders all entries, one per line.
func (j *Journal) Lines() string {
	entries := j.Entries()
	lines := make([]string, 0, len(entries))

	for _, e := range entries {
		lines = append(lines, e.String())
	}

	return strings.Join(lines, "\n")
}

func (j *Journal) append(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, e)
}

// journalCore adapts a Journal to zapcore.Core.
type journalCore struct {
	journal *Journal
	// fields were attached via With and are rendered on every entry.
	fields []zapcore.Field
}

func (c *journalCore) Enabled(l zapcore.Level) bool {
	return c.journal.level.Enabled(l)
}

//nolint:ireturn // Returning zapcore.Core is intended for zap integration.
func (c *journalCore) With(fields []zapcore.Field) zapcore.Core {
	return &journalCore{
		journal: c.journal,
		fields:  append(slices.Clone(c.fields), fields...),
	}
}

//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *journalCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

//nolint:gocritic // zapcore.Core defines Write with a value entry.
func (c *journalCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()

	for _, f := range c.fields {
		f.AddTo(enc)
	}

	for _, f := range fields {
		f.AddTo(enc)
	}

	var builder strings.Builder

	builder.WriteString(ent.Message)

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	for _, k := range keys {
		builder.WriteString(" ")
		builder.WriteString(k)
		builder.WriteString("=")
		builder.WriteString(fmt.Sprint(enc.Fields[k]))
	}

	c.journal.append(Entry{
		Time:    ent.Time,
		Level:   ent.Level,
		Message: builder.String(),
	})

	return nil
}

func (c *journalCore) Sync() error {
	return nil
}
