package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"scamshield/pkg/ledger"
	"scamshield/pkg/store"
)

// LedgerSink appends each event to the local JSONL ledger.
type LedgerSink struct {
	Path    string
	Service string
}

func (s *LedgerSink) Name() string { return "ledger" }

func (s *LedgerSink) Write(_ context.Context, ev Event) error {
	return ledger.Append(s.Path, s.Service, "telemetry", ev)
}

// TelemetrySaver persists telemetry rows relationally. Kept narrow so tests
// can fake it; *store.RecordStore satisfies it.
type TelemetrySaver interface {
	SaveTelemetry(ctx context.Context, row store.TelemetryRow) error
}

// StoreSink writes each event as a relational telemetry row.
type StoreSink struct {
	Records TelemetrySaver
}

func (s *StoreSink) Name() string { return "postgres" }

func (s *StoreSink) Write(ctx context.Context, ev Event) error {
	return s.Records.SaveTelemetry(ctx, store.TelemetryRow{
		ID:         ev.ID,
		Route:      ev.Route,
		UserID:     ev.UserID,
		CreatedAt:  ev.CreatedAt,
		DurationMS: ev.DurationMs,
		Cached:     ev.Cached,
		Success:    ev.Success,
		StatusCode: ev.StatusCode,
		Error:      ev.Error,
	})
}

// KafkaSink publishes events to a Kafka topic keyed by route, so one route's
// events land on one partition in order.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink connects a synchronous producer. Acks wait for the full ISR;
// the producer retries transient broker errors before surfacing them.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal telemetry event: %w", err)
	}
	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(ev.Route),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish telemetry event: %w", err)
	}
	return nil
}

// Close shuts down the producer.
func (s *KafkaSink) Close() error { return s.producer.Close() }
