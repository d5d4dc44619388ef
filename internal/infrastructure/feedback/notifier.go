// Package feedback implements the observability sinks that receive
// operation progress events from the review pipeline.
package feedback

import (
	"log/slog"
)

// SlogSink logs progress events with structured attributes. It is the
// default sink.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink over the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) StartOperation(id, description string) {
	s.logger.Info("operation started", "operation", id, "description", description)
}

func (s *SlogSink) UpdateProgress(id string, percent int, message string) {
	s.logger.Debug("operation progress", "operation", id, "percent", percent, "message", message)
}

func (s *SlogSink) CompleteOperation(id, summary string) {
	s.logger.Info("operation complete", "operation", id, "summary", summary)
}

func (s *SlogSink) ReportError(id string, err error) {
	s.logger.Error("operation error", "operation", id, "error", err)
}

// MultiSink fans every event out to each wrapped sink in order.
type MultiSink struct {
	sinks []Sink
}

// Sink is the event surface shared by every feedback implementation.
type Sink interface {
	StartOperation(id, description string)
	UpdateProgress(id string, percent int, message string)
	CompleteOperation(id, summary string)
	ReportError(id string, err error)
}

// NewMultiSink combines sinks; nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) StartOperation(id, description string) {
	for _, s := range m.sinks {
		s.StartOperation(id, description)
	}
}

func (m *MultiSink) UpdateProgress(id string, percent int, message string) {
	for _, s := range m.sinks {
		s.UpdateProgress(id, percent, message)
	}
}

func (m *MultiSink) CompleteOperation(id, summary string) {
	for _, s := range m.sinks {
		s.CompleteOperation(id, summary)
	}
}

func (m *MultiSink) ReportError(id string, err error) {
	for _, s := range m.sinks {
		s.ReportError(id, err)
	}
}
