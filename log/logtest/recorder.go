/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-quotakit/log"
)

// RecordedEntry is a logged entry with both its own and derived (With) fields.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField returns the first field with the key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// StringField returns the value of the string field with the key.
func (re *RecordedEntry) StringField(key string) (string, bool) {
	field, ok := re.FindField(key)
	if !ok || field.Type != logf.FieldTypeBytesToString {
		return "", false
	}
	return string(field.Bytes), true
}

var logfLevels = map[logf.Level]log.Level{
	logf.LevelError: log.LevelError,
	logf.LevelWarn:  log.LevelWarn,
	logf.LevelInfo:  log.LevelInfo,
	logf.LevelDebug: log.LevelDebug,
}

// entryLog is shared by the recorder and all loggers derived from it.
type entryLog struct {
	mu      sync.Mutex
	entries []RecordedEntry
}

//nolint:gocritic // hugeParam: logf.EntryWriter interface.
func (el *entryLog) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(append(fields, e.Fields...), e.DerivedFields...)
	level, ok := logfLevels[e.Level]
	if !ok {
		level = log.LevelInfo
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	el.entries = append(el.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      level,
		Time:       e.Time,
		Text:       e.Text,
	})
}

// filter returns up to limit matched entries in the logging order, all of them if limit is 0.
func (el *entryLog) filter(match func(entry RecordedEntry) bool, limit int) []RecordedEntry {
	el.mu.Lock()
	defer el.mu.Unlock()
	var res []RecordedEntry
	for _, entry := range el.entries {
		if match(entry) {
			res = append(res, entry)
			if len(res) == limit {
				break
			}
		}
	}
	return res
}

// Recorder is a log.FieldLogger that keeps all logged entries (debug level included) for assertions in tests.
type Recorder struct {
	*log.LogfAdapter
	log *entryLog
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	el := &entryLog{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, el)}, el}
}

// With returns a Recorder with additional fields that writes into the same entries.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.log}
}

// WithLevel returns a Recorder that drops entries below the level and writes into the same entries.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.log}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	return r.log.filter(func(RecordedEntry) bool { return true }, 0)
}

// FindEntry returns the first entry with the message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntryWithField returns the first entry with the message and the string field value.
func (r *Recorder) FindEntryWithField(msg, key, value string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool {
		if entry.Text != msg {
			return false
		}
		v, ok := entry.StringField(key)
		return ok && v == value
	})
}

// FindEntryByFilter returns the first entry accepted by the filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.log.filter(filter, 1); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns all entries accepted by the filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	return r.log.filter(filter, 0)
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.log.mu.Lock()
	r.log.entries = nil
	r.log.mu.Unlock()
}
