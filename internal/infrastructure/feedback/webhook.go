package feedback

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookConfig describes one outbound feedback endpoint.
type WebhookConfig struct {
	URL        string        `mapstructure:"url" yaml:"url"`
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	MaxRetries int           `mapstructure:"maxRetries" yaml:"maxRetries"`
	RetryDelay time.Duration `mapstructure:"retryDelay" yaml:"retryDelay"`
}

// WebhookSink delivers progress events to an HTTP endpoint with linear
// backoff; exhausted deliveries land in the dead-letter store.
type WebhookSink struct {
	cfg        WebhookConfig
	client     *http.Client
	deadLetter *DeadLetterStore
}

// NewWebhookSink creates a sink for one endpoint. deadLetter may be nil.
func NewWebhookSink(cfg WebhookConfig, deadLetter *DeadLetterStore) *WebhookSink {
	return &WebhookSink{
		cfg:        cfg,
		client:     &http.Client{Timeout: 10 * time.Second},
		deadLetter: deadLetter,
	}
}

// Event is the JSON body sent to the endpoint.
type Event struct {
	Kind      string    `json:"kind"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
	Percent   int       `json:"percent,omitempty"`
}

func (s *WebhookSink) StartOperation(id, description string) {
	s.post(Event{Kind: "startOperation", Operation: id, Detail: description})
}

func (s *WebhookSink) UpdateProgress(id string, percent int, message string) {
	s.post(Event{Kind: "updateProgress", Operation: id, Percent: percent, Detail: message})
}

func (s *WebhookSink) CompleteOperation(id, summary string) {
	s.post(Event{Kind: "completeOperation", Operation: id, Detail: summary})
}

func (s *WebhookSink) ReportError(id string, err error) {
	s.post(Event{Kind: "reportError", Operation: id, Detail: err.Error()})
}

func (s *WebhookSink) post(event Event) {
	event.Timestamp = time.Now()
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	go s.deliver(event.Kind, body)
}

func (s *WebhookSink) deliver(kind string, body []byte) {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := s.cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := s.send(body); err != nil {
			lastErr = err
			if attempt < maxRetries {
				time.Sleep(retryDelay * time.Duration(attempt)) // linear backoff
			}
			continue
		}
		return
	}

	if s.deadLetter != nil && lastErr != nil {
		_ = s.deadLetter.Append(DeadLetter{
			Timestamp: time.Now(),
			URL:       s.cfg.URL,
			EventKind: kind,
			Payload:   string(body),
			Error:     lastErr.Error(),
			Attempts:  maxRetries,
		})
	}
}

func (s *WebhookSink) send(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Reviewd-Feedback/1.0")
	if s.cfg.Secret != "" {
		req.Header.Set("X-Reviewd-Signature", sign(body, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// sign computes HMAC-SHA256 of the payload using the secret.
func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
