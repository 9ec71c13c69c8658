// Package eventlog provides the append-only session event log. Every state
// transition in the orchestration core is narrated here: the log is the
// operator-facing transcript and the ordering authority for tests. Entries
// carry a monotonic sequence number so ordering is stable even when
// independent timers interleave; wall-clock timestamps are for display only.
package eventlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level classifies an entry for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelThought Level = "thought"
	LevelSearch  Level = "search"
)

// Source identifies the subsystem that emitted an entry.
type Source string

const (
	SourceBrain      Source = "Brain"
	SourceLimbs      Source = "Limbs"
	SourceReflection Source = "Reflection"
	SourceSystem     Source = "System"
	SourceSearch     Source = "Search"
)

// Entry is one narration record. Seq is strictly increasing in emission order.
type Entry struct {
	Seq       int64
	ID        string
	Timestamp time.Time
	Level     Level
	Source    Source
	Message   string
}

// Log is the append-only event log. Appends are cheap and safe from any
// goroutine; subscribers receive entries in sequence order.
type Log struct {
	mu      sync.Mutex
	seq     int64
	entries []Entry
	subs    map[int]chan Entry
	nextSub int

	logger *zap.Logger
}

// New creates an empty log. Entries are mirrored to the given operational
// logger so the narration stream and zap output stay consistent.
func New(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		subs:   make(map[int]chan Entry),
		logger: logger,
	}
}

// Append records a new entry and fans it out to subscribers.
func (l *Log) Append(level Level, source Source, message string) Entry {
	l.mu.Lock()
	l.seq++
	e := Entry{
		Seq:       l.seq,
		ID:        uuid.New().String()[:8],
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
	}
	l.entries = append(l.entries, e)
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber: drop rather than block the core.
		}
	}
	l.mu.Unlock()

	l.mirror(e)
	return e
}

// Appendf records a formatted entry.
func (l *Log) Appendf(level Level, source Source, format string, args ...interface{}) Entry {
	return l.Append(level, source, fmt.Sprintf(format, args...))
}

func (l *Log) mirror(e Entry) {
	fields := []zap.Field{
		zap.Int64("seq", e.Seq),
		zap.String("source", string(e.Source)),
		zap.String("level", string(e.Level)),
	}
	switch e.Level {
	case LevelError:
		l.logger.Error(e.Message, fields...)
	case LevelWarning:
		l.logger.Warn(e.Message, fields...)
	case LevelThought, LevelSearch:
		l.logger.Debug(e.Message, fields...)
	default:
		l.logger.Info(e.Message, fields...)
	}
}

// Snapshot returns a copy of all entries in sequence order.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe returns a channel of future entries and a cancel function.
// The channel is buffered; entries are dropped for subscribers that fall
// behind instead of blocking appenders.
func (l *Log) Subscribe() (<-chan Entry, func()) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan Entry, 256)
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
