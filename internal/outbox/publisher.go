// Package outbox delivers events recorded inside ledger transactions once
// they have committed: to Kafka, to the user notifier and to the audit sink.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes one event to the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// KafkaPublisher keeps one synchronous writer per topic. Messages keyed by
// user id land on the same partition, so per-user order is kept.
type KafkaPublisher struct {
	brokers []string
	writers map[string]*kafka.Writer
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewKafkaPublisher creates a publisher for brokers.
func NewKafkaPublisher(brokers []string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
		logger:  logger.Named("kafka"),
	}
}

func (p *KafkaPublisher) writer(topic string) *kafka.Writer {
	p.mu.RLock()
	w, ok := p.writers[topic]
	p.mu.RUnlock()
	if ok {
		return w
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w = &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.CRC32Balancer{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	p.writers[topic] = w
	return w
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes every writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.logger.Error("Failed to close kafka writer", zap.String("topic", topic), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return firstErr
}
