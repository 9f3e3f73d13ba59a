package report

import (
	"github.com/sirupsen/logrus"

	"qgrid/internal/engine"
)

// Multi fans each progress event out to every sink in order.
type Multi []engine.ProgressSink

func (m Multi) Episode(p engine.Progress) {
	for _, sink := range m {
		if sink != nil {
			sink.Episode(p)
		}
	}
}

// LogSink logs every n-th episode, and always the last one.
type LogSink struct {
	log   logrus.FieldLogger
	every int
}

func NewLogSink(log logrus.FieldLogger, every int) *LogSink {
	if every <= 0 {
		every = 1
	}
	return &LogSink{log: log, every: every}
}

func (s *LogSink) Episode(p engine.Progress) {
	if p.Episode%s.every != 0 && p.Fraction < 1 {
		return
	}
	s.log.WithFields(logrus.Fields{
		"episode":  p.Episode,
		"progress": p.Fraction,
		"maxQ":     p.MaxQ,
		"totalQ":   p.TotalQ,
		"epsilon":  p.Epsilon,
	}).Info("episode finished")
}
