package config

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kioskd/kioskd/internal/models"
)

const journalSize = 1000

// journal is a logrus hook retaining the latest entries for /logs. Lines
// that do not name a run or phase inherit the last one seen, so every
// retained entry can be placed in the kiosk lifecycle.
type journal struct {
	mu sync.RWMutex

	entries []models.LogEntry
	next    int
	count   int

	run   string
	phase string
}

func NewJournal() *journal {
	return newJournal(journalSize)
}

func newJournal(size int) *journal {
	return &journal{entries: make([]models.LogEntry, size)}
}

func (j *journal) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (j *journal) Fire(entry *logrus.Entry) error {
	record := models.NewLogEntry(entry)

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(record.Run) > 0 {
		j.run = record.Run
	} else {
		record.Run = j.run
	}
	if len(record.Phase) > 0 {
		j.phase = record.Phase
	} else {
		record.Phase = j.phase
	}

	if len(j.entries) == 0 {
		return nil
	}

	j.entries[j.next] = record
	j.next = (j.next + 1) % len(j.entries)
	if j.count < len(j.entries) {
		j.count++
	}
	return nil
}

// Phase is the phase named by the most recent entry that carried one.
func (j *journal) Phase() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.phase
}

// LogFilter selects journal entries. Zero fields match everything.
type LogFilter struct {
	Levels []logrus.Level `json:"levels,omitempty"`
	Since  *time.Time     `json:"since,omitempty"`
	Run    string         `json:"run,omitempty"`
	Phase  string         `json:"phase,omitempty"`
	// Limit keeps the newest matches.
	Limit int `json:"limit,omitempty"`
}

func (f LogFilter) match(entry models.LogEntry) bool {
	if len(f.Levels) > 0 {
		found := false
		for _, level := range f.Levels {
			if entry.Level == level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && entry.Time.Before(*f.Since) {
		return false
	}
	if len(f.Run) > 0 && entry.Run != f.Run {
		return false
	}
	if len(f.Phase) > 0 && entry.Phase != f.Phase {
		return false
	}
	return true
}

// Entries returns matching entries, oldest first.
func (j *journal) Entries(filter LogFilter) []models.LogEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := []models.LogEntry{}
	if j.count == 0 {
		return result
	}

	start := (j.next - j.count + len(j.entries)) % len(j.entries)
	for i := 0; i < j.count; i++ {
		entry := j.entries[(start+i)%len(j.entries)]
		if filter.match(entry) {
			result = append(result, entry)
		}
	}

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result
}
