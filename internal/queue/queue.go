// Package queue publishes bridge lifecycle events to Kafka or to a line-delimited stream.
package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DriverKafka = "kafka"
	DriverStdio = "stdio"

	defaultClientID     = "polbridge"
	defaultWriteTimeout = 10 * time.Second
)

var ErrInvalidConfig = errors.New("queue: invalid config")

// Producer publishes keyed payloads. Payloads sharing a key keep their relative order.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, payload []byte) error
	Close() error
}

type ProducerConfig struct {
	Driver string

	// Brokers, ClientID, WriteTimeout and TLS apply to the kafka driver.
	Brokers      []string
	ClientID     string
	WriteTimeout time.Duration
	TLS          bool

	// Writer receives stdio output. Defaults to os.Stdout.
	Writer io.Writer
}

func NewProducer(cfg ProducerConfig) (Producer, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Driver)) {
	case DriverKafka:
		p, err := newKafkaProducer(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case DriverStdio:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return &stdioProducer{w: w}, nil
	case "":
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

// SplitCommaList splits a broker list such as "a:9092, b:9092", dropping blanks.
func SplitCommaList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type kafkaProducer struct {
	writer *kafka.Writer
}

func newKafkaProducer(cfg ProducerConfig) (*kafkaProducer, error) {
	brokers := SplitCommaList(strings.Join(cfg.Brokers, ","))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka producer requires at least one broker", ErrInvalidConfig)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	transport := &kafka.Transport{ClientID: defaultClientID}
	if id := strings.TrimSpace(cfg.ClientID); id != "" {
		transport.ClientID = id
	}
	if cfg.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	// Lifecycle events are written one at a time, so batching only adds latency.
	return &kafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
	}}, nil
}

func (p *kafkaProducer) Publish(ctx context.Context, topic string, key []byte, payload []byte) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: payload}); err != nil {
		return fmt.Errorf("queue: write %s: %w", topic, err)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// stdioProducer writes one JSON envelope per line. Payloads must be JSON.
type stdioProducer struct {
	mu sync.Mutex
	w  io.Writer
}

type stdioEnvelope struct {
	Topic string          `json:"topic"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value"`
}

func (p *stdioProducer) Publish(_ context.Context, topic string, key []byte, payload []byte) error {
	line, err := json.Marshal(stdioEnvelope{Topic: strings.TrimSpace(topic), Key: string(key), Value: payload})
	if err != nil {
		return fmt.Errorf("queue: encode stdio envelope: %w", err)
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.w.Write(line)
	return err
}

func (p *stdioProducer) Close() error { return nil }
