package export

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/use-agent/gleaner/models"
)

// WebhookEvent is the payload POSTed per record.
type WebhookEvent struct {
	Type      string        `json:"type"` // "record.assembled"
	RunID     string        `json:"run_id"`
	Timestamp int64         `json:"timestamp"`
	Record    models.Record `json:"record"`
}

// WebhookSink delivers each record to an HTTP endpoint as it is
// assembled. The body is signed with HMAC-SHA256 when a secret is set.
// Header: X-Gleaner-Signature: sha256=<hex>
type WebhookSink struct {
	url     string
	secret  string
	runID   string
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSink creates a webhook sink. timeout bounds one delivery.
func NewWebhookSink(url, secret, runID string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:     url,
		secret:  secret,
		runID:   runID,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (s *WebhookSink) Write(rec models.Record) error {
	event := WebhookEvent{
		Type:      "record.assembled",
		RunID:     s.runID,
		Timestamp: time.Now().Unix(),
		Record:    rec,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return models.NewCrawlError(models.ErrCodeExportFailed, "marshal webhook event", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return models.NewCrawlError(models.ErrCodeExportFailed, "create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Gleaner-Webhook/1.0")

	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		req.Header.Set("X-Gleaner-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.NewCrawlError(models.ErrCodeExportFailed, "deliver webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return models.NewCrawlError(models.ErrCodeExportFailed,
			fmt.Sprintf("webhook endpoint returned status %d", resp.StatusCode), nil)
	}
	return nil
}

func (s *WebhookSink) Close() error { return nil }
