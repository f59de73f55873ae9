package models

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Log fields lifted out of Data into their own LogEntry columns.
const (
	LogFieldRun   = "run"
	LogFieldPhase = "phase"
)

// LogEntry is one retained log line as served by /logs.
type LogEntry struct {
	Time    time.Time    `json:"time"`
	Level   logrus.Level `json:"level"`
	Message string       `json:"message,omitempty"`

	// Run and Phase locate the line in the kiosk lifecycle.
	Run   string `json:"run,omitempty"`
	Phase string `json:"phase,omitempty"`

	Data logrus.Fields `json:"data,omitempty"`
}

func NewLogEntry(entry *logrus.Entry) LogEntry {
	record := LogEntry{
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
	}

	for key, value := range entry.Data {
		switch key {
		case LogFieldRun:
			record.Run = fmt.Sprint(value)
			continue
		case LogFieldPhase:
			record.Phase = fmt.Sprint(value)
			continue
		}

		if record.Data == nil {
			record.Data = make(logrus.Fields, len(entry.Data))
		}
		if err, ok := value.(error); ok {
			record.Data[key] = err.Error()
			continue
		}
		record.Data[key] = value
	}

	return record
}
