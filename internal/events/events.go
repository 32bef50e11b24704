// Package events publishes run summaries to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/status"
)

// DefaultClientID identifies the producer to the brokers.
const DefaultClientID = "roster-sync"

// TypeRunCompleted is the type of the event sent when a run ends.
const TypeRunCompleted = "roster.run.completed"

// Publisher delivers run events.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, run *status.RunStatus) error
	Close()
}

// RunCompleted is the payload of a run-completed event.
type RunCompleted struct {
	Type             string          `json:"type"`
	RunID            string          `json:"runId"`
	Trigger          status.Trigger  `json:"trigger"`
	Phase            status.RunPhase `json:"phase"`
	Message          string          `json:"message,omitempty"`
	StartedAt        time.Time       `json:"startedAt"`
	FinishedAt       *time.Time      `json:"finishedAt,omitempty"`
	Deactivated      int64           `json:"deactivated"`
	TenantsSucceeded int             `json:"tenantsSucceeded"`
	TenantsFailed    int             `json:"tenantsFailed"`
	FailedTenants    []string        `json:"failedTenants,omitempty"`
	Upserted         int             `json:"upserted"`
	RecordsFailed    int             `json:"recordsFailed"`
}

// NewRunCompleted builds the event for run.
func NewRunCompleted(run *status.RunStatus) RunCompleted {
	succeeded, failed := run.TenantCounts()
	ev := RunCompleted{
		Type:             TypeRunCompleted,
		RunID:            run.RunID,
		Trigger:          run.Trigger,
		Phase:            run.Phase,
		Message:          run.Message,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		Deactivated:      run.Deactivated,
		TenantsSucceeded: succeeded,
		TenantsFailed:    failed,
		Upserted:         run.Records.Upserted,
		RecordsFailed:    run.Records.Failed + run.Records.Invalid + run.Records.Duplicates,
	}
	for _, t := range run.Tenants {
		if !t.Succeeded {
			ev.FailedTenants = append(ev.FailedTenants, t.TenantID)
		}
	}
	return ev
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// PublishRunCompleted implements Publisher.
func (NoopPublisher) PublishRunCompleted(context.Context, *status.RunStatus) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() {}

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher writes events to a kafka topic, keyed by run id.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects a producer for cfg.
func NewKafkaPublisher(cfg *config.EventsConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return newKafkaPublisher(client, cfg.Topic, logger), nil
}

func newKafkaPublisher(client producer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

// PublishRunCompleted implements Publisher.
func (p *KafkaPublisher) PublishRunCompleted(ctx context.Context, run *status.RunStatus) error {
	payload, err := json.Marshal(NewRunCompleted(run))
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(run.RunID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(TypeRunCompleted)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish run event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published run event", "run_id", run.RunID, "topic", p.topic)
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// New returns a KafkaPublisher when cfg is set, a NoopPublisher otherwise.
func New(cfg *config.EventsConfig, logger *slog.Logger) (Publisher, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return NoopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg, logger)
}
