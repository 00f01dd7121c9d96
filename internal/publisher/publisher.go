// Package publisher exposes the three typed outbound publish operations for
// republishing workflow/locate/inventory events, atop one
// sarama.AsyncProducer configured for acks=all, idempotent, single-in-flight
// delivery.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/galatea-ims/event-hub/internal/config"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"go.uber.org/fx"
)

const (
	topicWorkflow  = "workflow-events"
	topicLocate    = "locate-events"
	topicInventory = "inventory-events"

	producerBatchBytes  = 16 * 1024
	producerLinger      = 5 * time.Millisecond
	// producerBufferMessages approximates a 32 MiB buffer target:
	// sarama's ChannelBufferSize is a message count, not a byte size.
	producerBufferMessages = 2048
)

// Publisher exposes the three outbound publish operations used by domain
// modules outside this core to re-publish downstream events.
type Publisher struct {
	producer sarama.AsyncProducer
	logger   *slog.Logger
}

// New builds a Publisher with the producer configuration the outbound
// protocol requires: acks=all, idempotent, max-in-flight=1, snappy, batched.
func New(cfg *config.Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Idempotent = true
	saramaCfg.Net.MaxOpenRequests = 1
	saramaCfg.Producer.Compression = sarama.CompressionSnappy
	saramaCfg.Producer.Flush.Bytes = producerBatchBytes
	saramaCfg.Producer.Flush.Frequency = producerLinger
	saramaCfg.Producer.Return.Successes = false
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.ChannelBufferSize = producerBufferMessages

	producer, err := sarama.NewAsyncProducer(cfg.Broker.BootstrapServers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("publisher: new async producer: %w", err)
	}

	return newPublisher(producer, logger), nil
}

func newPublisher(producer sarama.AsyncProducer, logger *slog.Logger) *Publisher {
	p := &Publisher{producer: producer, logger: logger}
	go p.logErrors()
	return p
}

func (p *Publisher) logErrors() {
	for err := range p.producer.Errors() {
		p.logger.Error("publish failed", "topic", err.Msg.Topic, "error", err.Err)
	}
}

// PublishWorkflowEvent republishes a workflow transition, partitioned by
// correlationId, since workflow transitions carry no single natural
// partition entity of their own.
func (p *Publisher) PublishWorkflowEvent(e model.WorkflowTransition) error {
	return p.publish(topicWorkflow, e.CorrelationID, e)
}

// PublishLocateEvent republishes a locate decision, partitioned by locateId.
func (p *Publisher) PublishLocateEvent(e model.LocateDecision) error {
	return p.publish(topicLocate, e.LocateID, e)
}

// PublishInventoryEvent republishes an inventory snapshot, partitioned by
// securityId:calculationType.
func (p *Publisher) PublishInventoryEvent(e model.InventorySnapshot) error {
	key := fmt.Sprintf("%s:%s", e.SecurityID, e.CalcType)
	return p.publish(topicInventory, key, e)
}

func (p *Publisher) publish(topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publisher: marshal payload: %w", err)
	}

	select {
	case p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}:
		return nil
	default:
		return fmt.Errorf("publisher: producer input channel saturated for topic %s", topic)
	}
}

// Close drains the producer on shutdown.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

// Module wires the Publisher and its shutdown hook.
var Module = fx.Module("publisher",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, p *Publisher) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
	}),
)
