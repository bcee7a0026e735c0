package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/pipeline"
)

// Subjects consumed by curator.
const (
	SubjectSyncRequested    = "catalog.sync.requested"
	SubjectReindexRequested = "catalog.reindex.requested"
)

// JobSubmitter starts supervised jobs.
type JobSubmitter interface {
	Go(ctx context.Context, tenantID string, opts pipeline.Options) (*pipeline.Task, error)
	GoReindex(ctx context.Context, tenantID string, ids []string, batchSize int) (*pipeline.Task, error)
}

// Subscriber turns Hermes requests into sync and reindex jobs.
type Subscriber struct {
	client *Client
	jobs   JobSubmitter
	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewSubscriber creates a new Hermes request subscriber.
func NewSubscriber(client *Client, jobs JobSubmitter, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		client: client,
		jobs:   jobs,
		logger: logger,
	}
}

// SyncRequest is the payload of catalog.sync.requested.
type SyncRequest struct {
	TenantID  string `json:"tenant_id"`
	AutoIndex bool   `json:"auto_index"`
	BatchSize int    `json:"batch_size"`
}

// ReindexRequest is the payload of catalog.reindex.requested.
type ReindexRequest struct {
	TenantID  string   `json:"tenant_id"`
	ItemIDs   []string `json:"item_ids"`
	BatchSize int      `json:"batch_size"`
}

// Start begins subscribing to request subjects.
func (s *Subscriber) Start(ctx context.Context) error {
	subjects := map[string]func(msg *nats.Msg){
		SubjectSyncRequested:    func(msg *nats.Msg) { s.handleSync(ctx, msg) },
		SubjectReindexRequested: func(msg *nats.Msg) { s.handleReindex(ctx, msg) },
	}

	for subject, handler := range subjects {
		// Try JetStream durable consumer first, fall back to core NATS
		sub, err := s.client.js.Subscribe(subject, handler,
			nats.Durable("curator-"+sanitizeSubject(subject)),
			nats.DeliverNew(),
			nats.AckExplicit(),
			nats.MaxDeliver(3),
		)
		if err != nil {
			s.logger.Warn("JetStream subscribe failed, using core NATS", "subject", subject, "error", err)
			sub, err = s.client.conn.Subscribe(subject, handler)
			if err != nil {
				return fmt.Errorf("subscribing to %s: %w", subject, err)
			}
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("subscribed to Hermes subject", "subject", subject)
	}

	return nil
}

// Stop unsubscribes from all subjects.
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}

// unwrap accepts either a bare payload or an Event envelope around it.
func unwrap(data []byte) []byte {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Type != "" && len(env.Data) > 0 {
		return env.Data
	}
	return data
}

func (s *Subscriber) handleSync(ctx context.Context, msg *nats.Msg) {
	defer s.ack(msg)

	var req SyncRequest
	if err := json.Unmarshal(unwrap(msg.Data), &req); err != nil || strings.TrimSpace(req.TenantID) == "" {
		s.logger.Error("invalid sync request", "subject", msg.Subject, "error", err)
		return
	}

	task, err := s.jobs.Go(ctx, req.TenantID, pipeline.Options{AutoIndex: req.AutoIndex, BatchSize: req.BatchSize})
	s.logSubmit("sync", req.TenantID, task, err)
}

func (s *Subscriber) handleReindex(ctx context.Context, msg *nats.Msg) {
	defer s.ack(msg)

	var req ReindexRequest
	if err := json.Unmarshal(unwrap(msg.Data), &req); err != nil || strings.TrimSpace(req.TenantID) == "" {
		s.logger.Error("invalid reindex request", "subject", msg.Subject, "error", err)
		return
	}

	task, err := s.jobs.GoReindex(ctx, req.TenantID, req.ItemIDs, req.BatchSize)
	s.logSubmit("reindex", req.TenantID, task, err)
}

func (s *Subscriber) logSubmit(kind, tenantID string, task *pipeline.Task, err error) {
	switch {
	case err == nil:
		s.logger.Info("job submitted from Hermes", "kind", kind, "tenant", tenantID, "job", task.JobID)
	case errors.Is(err, catalog.ErrAlreadyRunning):
		s.logger.Info("Hermes request ignored, job running", "kind", kind, "tenant", tenantID)
	default:
		s.logger.Warn("Hermes request rejected", "kind", kind, "tenant", tenantID, "error", err)
	}
}

func (s *Subscriber) ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}

func sanitizeSubject(subject string) string {
	r := ""
	for _, c := range subject {
		switch c {
		case '.', '>', '*':
			r += "-"
		default:
			r += string(c)
		}
	}
	return r
}
