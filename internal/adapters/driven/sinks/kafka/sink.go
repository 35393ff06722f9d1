// Package kafka publishes every extracted record as a JSON message,
// keyed by the observable it was extracted from.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/text"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements driven.Sink.
var _ driven.Sink = (*Sink)(nil)

// Name is the sink name.
const Name = "kafka"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingBrokers  = "brokers"
	SettingTopic    = "topic"
	SettingClientID = "client_id"
)

// DefaultTopic receives the records.
const DefaultTopic = "ctitrans.records"

// Header names set on every message.
const (
	HeaderObjectType = "object_type"
	HeaderRunPass    = "pass"
)

// Producer sends records synchronously.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Ensure *kgo.Client satisfies Producer.
var _ Producer = (*kgo.Client)(nil)

// DefaultProfile returns the published fields, the text sink's columns.
func DefaultProfile() domain.Profile {
	return text.DefaultProfile()
}

// Config holds the producer settings.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// ConfigFromSettings builds the configuration from settings. Brokers
// are comma separated.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := Config{Topic: settings[SettingTopic], ClientID: settings[SettingClientID]}
	for _, b := range strings.Split(settings[SettingBrokers], ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Brokers = append(cfg.Brokers, b)
		}
	}
	if len(cfg.Brokers) == 0 {
		return Config{}, fmt.Errorf("%w: kafka brokers are required", domain.ErrInvalidInput)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "ctitrans"
	}
	return cfg, nil
}

// NewProducer creates a franz-go client for cfg.
func NewProducer(cfg Config) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return client, nil
}

// Message is the JSON value of a published record.
type Message struct {
	ObjectType   string            `json:"object_type"`
	ObservableID string            `json:"observable_id,omitempty"`
	IndicatorID  string            `json:"indicator_id,omitempty"`
	Fields       map[string]string `json:"fields"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Sink publishes one message per record.
type Sink struct {
	producer Producer
	topic    string
	profile  domain.Profile
}

// New creates a publishing sink. A zero profile selects DefaultProfile.
func New(producer Producer, topic string, profile domain.Profile) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	return &Sink{producer: producer, topic: topic, profile: profile}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// Deliver publishes the records of d and waits for acknowledgement.
func (s *Sink) Deliver(ctx context.Context, d *domain.Delivery) error {
	var records []*kgo.Record
	pass := "0"
	if d.Pass != nil {
		pass = fmt.Sprint(d.Pass.Number)
	}
	for _, group := range d.Groups {
		msg := Message{ObjectType: d.ObjectType, Metadata: group.Metadata}
		if group.Observable != nil {
			msg.ObservableID = group.Observable.ID
		}
		if group.Indicator != nil {
			msg.IndicatorID = group.Indicator.ID
		}
		for _, rec := range group.Records {
			msg.Fields = rec.Flatten()
			value, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("kafka: encode record: %w", err)
			}
			records = append(records, &kgo.Record{
				Topic: s.topic,
				Key:   []byte(msg.ObservableID),
				Value: value,
				Headers: []kgo.RecordHeader{
					{Key: HeaderObjectType, Value: []byte(d.ObjectType)},
					{Key: HeaderRunPass, Value: []byte(pass)},
				},
			})
		}
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	s.producer.Close()
	return nil
}
