package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioskd/kioskd/internal/models"
)

func fire(t *testing.T, j *journal, level logrus.Level, msg string, at time.Time, fields logrus.Fields) {
	t.Helper()
	if fields == nil {
		fields = logrus.Fields{}
	}
	require.NoError(t, j.Fire(&logrus.Entry{
		Level:   level,
		Message: msg,
		Time:    at,
		Data:    fields,
	}))
}

func messages(entries []models.LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestJournalKeepsNewest(t *testing.T) {
	j := newJournal(3)
	base := time.Now()

	fire(t, j, logrus.InfoLevel, "one", base, nil)
	fire(t, j, logrus.InfoLevel, "two", base.Add(time.Second), nil)
	assert.Len(t, j.Entries(LogFilter{}), 2)

	fire(t, j, logrus.InfoLevel, "three", base.Add(2*time.Second), nil)
	fire(t, j, logrus.WarnLevel, "four", base.Add(3*time.Second), nil)

	assert.Equal(t, []string{"two", "three", "four"}, messages(j.Entries(LogFilter{})))
	assert.Equal(t, []string{"four"}, messages(j.Entries(LogFilter{Limit: 1})))
}

func TestJournalStampsRunAndPhase(t *testing.T) {
	j := newJournal(10)
	base := time.Now()

	fire(t, j, logrus.InfoLevel, "Waiting for remote configuration", base, logrus.Fields{"run": "r1"})
	fire(t, j, logrus.InfoLevel, "Entering phase", base.Add(time.Second), logrus.Fields{"run": "r1", "phase": "pre_auth"})
	fire(t, j, logrus.InfoLevel, "Pre-auth complete", base.Add(2*time.Second), nil)
	fire(t, j, logrus.InfoLevel, "Entering phase", base.Add(3*time.Second), logrus.Fields{"run": "r1", "phase": "full_session"})
	fire(t, j, logrus.WarnLevel, "[blk] Aborting blacklisted request", base.Add(4*time.Second), logrus.Fields{"url": "https://app/profile"})

	entries := j.Entries(LogFilter{})
	require.Len(t, entries, 5)
	assert.Empty(t, entries[0].Phase)
	assert.Equal(t, "pre_auth", entries[2].Phase)
	assert.Equal(t, "r1", entries[2].Run)
	assert.Equal(t, "full_session", entries[4].Phase)
	assert.Equal(t, "https://app/profile", entries[4].Data["url"])
	assert.NotContains(t, entries[1].Data, "phase")
	assert.Equal(t, "full_session", j.Phase())

	assert.Equal(t, []string{"Entering phase", "[blk] Aborting blacklisted request"},
		messages(j.Entries(LogFilter{Phase: "full_session"})))
	assert.Len(t, j.Entries(LogFilter{Run: "r1"}), 5)
	assert.Empty(t, j.Entries(LogFilter{Run: "r2"}))
}

func TestJournalFilter(t *testing.T) {
	j := newJournal(10)
	base := time.Now()

	fire(t, j, logrus.InfoLevel, "boot", base, nil)
	fire(t, j, logrus.WarnLevel, "blocked", base.Add(time.Second), nil)
	fire(t, j, logrus.ErrorLevel, "wipe", base.Add(2*time.Second), nil)
	fire(t, j, logrus.WarnLevel, "blocked again", base.Add(3*time.Second), nil)

	tests := []struct {
		name   string
		filter LogFilter
		want   []string
	}{
		{"levels", LogFilter{Levels: []logrus.Level{logrus.WarnLevel}}, []string{"blocked", "blocked again"}},
		{"since", LogFilter{Since: ptr(base.Add(2 * time.Second))}, []string{"wipe", "blocked again"}},
		{"limit", LogFilter{Limit: 1}, []string{"blocked again"}},
		{"no match", LogFilter{Levels: []logrus.Level{logrus.PanicLevel}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, messages(j.Entries(tt.filter)))
		})
	}
}

func TestJournalZeroSize(t *testing.T) {
	j := newJournal(0)
	fire(t, j, logrus.InfoLevel, "dropped", time.Now(), logrus.Fields{"phase": "kiosk_gate"})
	assert.Empty(t, j.Entries(LogFilter{}))
	assert.Equal(t, "kiosk_gate", j.Phase())
}

func TestJournalLevels(t *testing.T) {
	assert.NotContains(t, NewJournal().Levels(), logrus.DebugLevel)
}

func ptr[T any](v T) *T {
	return &v
}
