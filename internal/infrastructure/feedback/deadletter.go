package feedback

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// DeadLetter records one feedback delivery that exhausted its retries.
type DeadLetter struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	EventKind string    `json:"event_kind"`
	Payload   string    `json:"payload"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
}

// DeadLetterStore appends failed deliveries to a JSONL file.
type DeadLetterStore struct {
	mu   sync.Mutex
	path string
}

// NewDeadLetterStore creates a store backed by the given file path.
func NewDeadLetterStore(path string) *DeadLetterStore {
	return &DeadLetterStore{path: path}
}

// Append writes one record.
func (s *DeadLetterStore) Append(dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open dead letter file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append dead letter: %w", err)
	}
	return nil
}

// List reads every record. Malformed lines are skipped.
func (s *DeadLetterStore) List() ([]DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dead letter file: %w", err)
	}
	defer f.Close()

	var out []DeadLetter
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var dl DeadLetter
		if err := json.Unmarshal(scanner.Bytes(), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, scanner.Err()
}
