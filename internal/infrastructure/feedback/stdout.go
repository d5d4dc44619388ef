package feedback

import (
	"encoding/json"
	"io"
	"sync"
)

// LineSink emits progress events as id-less JSON-RPC notifications on a
// line-framed stream. The worker uses it to surface progress to every
// subscriber of its session; the write lock keeps frames from
// interleaving with response lines.
type LineSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineSink creates a sink over a shared framed writer.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

type progressParams struct {
	Operation   string `json:"operation"`
	Description string `json:"description,omitempty"`
	Percent     int    `json:"percent,omitempty"`
	Message     string `json:"message,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *LineSink) StartOperation(id, description string) {
	s.notify("feedback/startOperation", progressParams{Operation: id, Description: description})
}

func (s *LineSink) UpdateProgress(id string, percent int, message string) {
	s.notify("feedback/updateProgress", progressParams{Operation: id, Percent: percent, Message: message})
}

func (s *LineSink) CompleteOperation(id, summary string) {
	s.notify("feedback/completeOperation", progressParams{Operation: id, Summary: summary})
}

func (s *LineSink) ReportError(id string, err error) {
	s.notify("feedback/reportError", progressParams{Operation: id, Error: err.Error()})
}

func (s *LineSink) notify(method string, params progressParams) {
	payload, err := json.Marshal(struct {
		JSONRPC string         `json:"jsonrpc"`
		Method  string         `json:"method"`
		Params  progressParams `json:"params"`
	}{"2.0", method, params})
	if err != nil {
		return
	}
	payload = append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(payload)
}
