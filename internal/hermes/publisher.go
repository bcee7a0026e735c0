package hermes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

// Subjects published by curator.
const (
	SubjectProgressPrefix = "catalog.sync.progress."
	SubjectCompleted      = "catalog.sync.completed"
	SubjectFailed         = "catalog.sync.failed"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes sync job events to Hermes. It satisfies pipeline.Sink.
type Publisher struct {
	conn   conn
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a new Hermes event publisher.
func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return newPublisher(client.conn, logger)
}

func newPublisher(c conn, logger *slog.Logger) *Publisher {
	return &Publisher{conn: c, logger: logger, now: time.Now}
}

// Event is the standard event envelope published to Hermes.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// publish never fails the caller. Events are observational and a bus outage
// must not stall a sync job.
func (p *Publisher) publish(subject, eventType string, data any) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "curator",
		Timestamp: p.now(),
		Data:      data,
	}
	raw, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshaling event", "type", eventType, "error", err)
		return
	}
	if err := p.conn.Publish(subject, raw); err != nil {
		p.logger.Warn("publishing event", "subject", subject, "error", fmt.Errorf("publishing to %s: %w", subject, err))
		return
	}
	p.logger.Debug("published event", "subject", subject, "type", eventType)
}

// Progress publishes a progress event on the tenant's progress subject.
func (p *Publisher) Progress(ev catalog.ProgressEvent) {
	p.publish(SubjectProgressPrefix+ev.TenantID, "catalog.sync.progress", ev)
}

// Completed publishes a job completion event.
func (p *Publisher) Completed(s catalog.JobSummary) {
	p.publish(SubjectCompleted, "catalog.sync.completed", s)
}

// Failed publishes a job failure event.
func (p *Publisher) Failed(s catalog.JobSummary) {
	p.publish(SubjectFailed, "catalog.sync.failed", s)
}
