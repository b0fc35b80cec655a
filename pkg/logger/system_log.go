package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultSystemLogCapacity = 1000
	defaultLogPageSize       = 20
	maxLogPageSize           = 200
)

type SystemLogEntry struct {
	ID         int64                  `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Level      string                 `json:"level"`
	LoggerName string                 `json:"logger_name,omitempty"`
	Message    string                 `json:"message"`
	Caller     string                 `json:"caller,omitempty"`
	Stack      string                 `json:"stack,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// SystemLogStore keeps the most recent log entries in memory for the admin
// log viewer. Fields are redacted on the way in.
type SystemLogStore struct {
	mu      sync.RWMutex
	ring    []SystemLogEntry
	head    int
	wrapped bool
	lastID  int64
}

func NewSystemLogStore(capacity int) *SystemLogStore {
	if capacity <= 0 {
		capacity = defaultSystemLogCapacity
	}
	return &SystemLogStore{ring: make([]SystemLogEntry, capacity)}
}

// WrapZapLogger tees everything base writes into store.
func WrapZapLogger(base *zap.Logger, store *SystemLogStore) *zap.Logger {
	if base == nil || store == nil {
		return base
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &teeCore{Core: core, store: store}
	}))
}

// LogQuery filters the ring. Zero values match everything.
type LogQuery struct {
	Level    string
	Logger   string
	From     time.Time
	To       time.Time
	Keyword  string
	Page     int
	PageSize int
}

func (q LogQuery) matcher() func(SystemLogEntry) bool {
	level := strings.TrimSpace(q.Level)
	name := strings.TrimSpace(q.Logger)
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	return func(entry SystemLogEntry) bool {
		switch {
		case level != "" && !strings.EqualFold(entry.Level, level):
			return false
		case name != "" && !strings.EqualFold(entry.LoggerName, name):
			return false
		case !q.From.IsZero() && entry.Timestamp.Before(q.From):
			return false
		case !q.To.IsZero() && entry.Timestamp.After(q.To):
			return false
		case keyword != "" && !strings.Contains(searchText(entry), keyword):
			return false
		}
		return true
	}
}

// QueryLogs returns one page of matches, newest first, and the match count.
func (s *SystemLogStore) QueryLogs(q LogQuery) ([]SystemLogEntry, int64) {
	if s == nil {
		return nil, 0
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultLogPageSize
	}
	if pageSize > maxLogPageSize {
		pageSize = maxLogPageSize
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	skip := (page - 1) * pageSize

	match := q.matcher()
	items := make([]SystemLogEntry, 0, pageSize)
	var total int64

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.eachNewestFirst(func(entry SystemLogEntry) {
		if !match(entry) {
			return
		}
		total++
		if total > int64(skip) && len(items) < pageSize {
			items = append(items, copyEntry(entry))
		}
	})
	return items, total
}

// eachNewestFirst expects s.mu held.
func (s *SystemLogStore) eachNewestFirst(fn func(SystemLogEntry)) {
	size := s.head
	if s.wrapped {
		size = len(s.ring)
	}
	for i := 1; i <= size; i++ {
		fn(s.ring[(s.head-i+len(s.ring))%len(s.ring)])
	}
}

func (s *SystemLogStore) append(entry zapcore.Entry, fields []zapcore.Field) {
	encoded := encodeFields(fields)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	s.ring[s.head] = SystemLogEntry{
		ID:         s.lastID,
		Timestamp:  entry.Time.UTC(),
		Level:      entry.Level.String(),
		LoggerName: entry.LoggerName,
		Message:    entry.Message,
		Caller:     entry.Caller.TrimmedPath(),
		Stack:      entry.Stack,
		Fields:     encoded,
	}
	s.head++
	if s.head == len(s.ring) {
		s.head = 0
		s.wrapped = true
	}
}

func encodeFields(fields []zapcore.Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return nil
	}
	return Redact(enc.Fields)
}

func searchText(entry SystemLogEntry) string {
	text := entry.Message + " " + entry.LoggerName + " " + entry.Caller
	if len(entry.Fields) > 0 {
		text += " " + fmt.Sprint(entry.Fields)
	}
	return strings.ToLower(text)
}

func copyEntry(entry SystemLogEntry) SystemLogEntry {
	if entry.Fields != nil {
		fields := make(map[string]interface{}, len(entry.Fields))
		for k, v := range entry.Fields {
			fields[k] = v
		}
		entry.Fields = fields
	}
	return entry
}

// teeCore carries With fields along so stored entries match what the
// primary core writes.
type teeCore struct {
	zapcore.Core
	store  *SystemLogStore
	scoped []zapcore.Field
}

func (c *teeCore) With(fields []zapcore.Field) zapcore.Core {
	scoped := make([]zapcore.Field, 0, len(c.scoped)+len(fields))
	scoped = append(scoped, c.scoped...)
	scoped = append(scoped, fields...)
	return &teeCore{Core: c.Core.With(fields), store: c.store, scoped: scoped}
}

func (c *teeCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *teeCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := fields
	if len(c.scoped) > 0 {
		all = append(append(make([]zapcore.Field, 0, len(c.scoped)+len(fields)), c.scoped...), fields...)
	}
	c.store.append(entry, all)
	return c.Core.Write(entry, fields)
}
