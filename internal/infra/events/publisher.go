package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	domain "github.com/bryanwahyu/quorum-comply/internal/domain/assessments"
)

// LogPublisher writes completion events to the process log. Always wired;
// the reporting collaborator tails these in dev deployments.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev domain.Event) error {
	log.Printf("assessment finished: id=%s tenant=%s system=%s framework=%s status=%s score=%.1f gaps=%d",
		ev.AssessmentID, ev.TenantID, ev.SystemID, ev.FrameworkID, ev.Status, ev.OverallScore, ev.GapCount)
	return nil
}

// WebhookPublisher POSTs completion events to the configured consumer.
type WebhookPublisher struct {
	URL    string
	Client *http.Client
}

func NewWebhookPublisher(url string) *WebhookPublisher {
	return &WebhookPublisher{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("event webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Multi fans one event out to several sinks. Sink errors are logged, not
// propagated: a broken consumer must not fail a finished assessment.
type Multi []domain.EventPublisher

func (m Multi) Publish(ctx context.Context, ev domain.Event) error {
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			log.Printf("event sink error: id=%s err=%v", ev.AssessmentID, err)
		}
	}
	return nil
}
