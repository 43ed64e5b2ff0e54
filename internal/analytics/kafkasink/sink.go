// Package kafkasink delivers analytics envelopes to a Kafka topic instead of
// the backend's HTTP ingestion endpoint.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"paykit/internal/analytics"
	dErrors "paykit/pkg/domain-errors"
)

// Config selects the brokers and topic.
type Config struct {
	Brokers     []string
	Topic       string
	CreateTopic bool
	Partitions  int32
	Replication int16
}

// Deliverer produces one record per envelope, keyed by profile id so events of
// one profile stay ordered within a partition.
type Deliverer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures a Deliverer.
type Option func(*Deliverer)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Deliverer) {
		d.logger = logger
	}
}

// New connects to the brokers and, when cfg.CreateTopic is set, creates the
// topic if it does not exist yet.
func New(ctx context.Context, cfg Config, opts ...Option) (*Deliverer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, dErrors.New(dErrors.CodeConfiguration, "kafka sink requires brokers and a topic")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	d := &Deliverer{client: client, topic: cfg.Topic}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.CreateTopic {
		if err := d.ensureTopic(ctx, cfg); err != nil {
			client.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Deliverer) ensureTopic(ctx context.Context, cfg Config) error {
	partitions, replication := cfg.Partitions, cfg.Replication
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}

	adm := kadm.NewClient(d.client)
	resps, err := adm.CreateTopics(ctx, partitions, replication, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}
	for _, r := range resps {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	if d.logger != nil {
		d.logger.InfoContext(ctx, "kafka topic ready", "topic", cfg.Topic)
	}
	return nil
}

// Deliver produces env synchronously and reports the broker's answer.
func (d *Deliverer) Deliver(ctx context.Context, env analytics.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	rec := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(env.Event.ProfileID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(env.Event.EventType)},
			{Key: "event_id", Value: []byte(env.Event.EventID)},
		},
	}
	if err := d.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransportFailure, "produce analytics event")
	}
	return nil
}

// Close releases broker connections.
func (d *Deliverer) Close() {
	d.client.Close()
}
