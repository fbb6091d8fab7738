package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/georgemunganga/warehouse-backend/internal/log"
)

type logger struct {
	*logrus.Entry
}

// NewLogrus returns a new log.Logger for a logrus implementation.
func NewLogrus(l *logrus.Entry) log.Logger {
	return logger{Entry: l}
}

func (l logger) WithValues(kv log.Kv) log.Logger {
	newLogger := l.Entry.WithFields(logrus.Fields(kv))
	return NewLogrus(newLogger)
}
