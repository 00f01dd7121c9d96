// Package consumer implements the log consumer pool over
// github.com/IBM/sarama: one consumer group per process joined against
// every consumed topic, with sarama invoking one ConsumeClaim goroutine
// per assigned (topic, partition) — the logical worker unit — and the
// error/retry supervisor (retry.go) wrapping every record's
// handling.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/galatea-ims/event-hub/internal/config"
	"github.com/galatea-ims/event-hub/internal/domain/event"
	"github.com/galatea-ims/event-hub/internal/service/router"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

const (
	maxBatch      = 500
	minFetchBytes = 1024
	maxFetchWait  = 500 * time.Millisecond
)

// Pool owns the sarama.ConsumerGroup and its lifecycle.
type Pool struct {
	group                sarama.ConsumerGroup
	router               *router.Router
	sink                 QuarantineSink
	logger               *slog.Logger
	concurrency          int
	inventoryConcurrency int

	cancel  context.CancelFunc
	workers *errgroup.Group
	done    chan struct{}
}

// NewPool builds a ConsumerGroup configured per the given batch size,
// fetch thresholds, and broker group id.
func NewPool(cfg *config.Config, rt *router.Router, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRange()
	saramaCfg.Consumer.Offsets.AutoCommit.Enable = false // manual commit after each batch succeeds
	saramaCfg.Consumer.Fetch.Min = int32(minFetchBytes)
	saramaCfg.Consumer.MaxWaitTime = maxFetchWait
	saramaCfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Broker.BootstrapServers, cfg.Broker.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("consumer: new consumer group: %w", err)
	}

	sink := &SlogQuarantineSink{Logger: logger}

	concurrency := cfg.Broker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	inventoryConcurrency := cfg.Broker.InventoryConcurrency
	if inventoryConcurrency < 1 {
		inventoryConcurrency = 1
	}

	return &Pool{
		group:                group,
		router:               rt,
		sink:                 sink,
		logger:               logger,
		concurrency:          concurrency,
		inventoryConcurrency: inventoryConcurrency,
		done:                 make(chan struct{}),
	}, nil
}

// Start joins the configured topics and begins consuming until Stop is
// called.
//
// Worker count = partitions x concurrencyMultiplier:
// sarama already hands out one ConsumeClaim goroutine per assigned
// partition, so the multiplier is realized here as extra independent
// Consume loops against the general topic set, plus dedicated extra loops
// against the inventory topic alone (its higher multiplier, "because its
// volume dominates"). Sarama's rebalancer fans these across whatever
// partitions the broker assigns; a single process can never double-claim
// one partition, so the effective ceiling is min(configured loops,
// partition count).
//
// The loops are fanned out and joined with an errgroup: a
// fatal ConsumeClaim error cancels every sibling loop's group context
// instead of leaving them to run against a half-torn-down consumer group.
func (p *Pool) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	g, gCtx := errgroup.WithContext(ctx)
	p.workers = g

	generalTopics := router.Topics()
	handler := &groupHandler{pool: p}

	for i := 0; i < p.concurrency; i++ {
		p.runConsumeLoop(gCtx, generalTopics, handler)
	}
	for i := 0; i < p.inventoryConcurrency-1; i++ {
		p.runConsumeLoop(gCtx, []string{"inventory-events"}, handler)
	}

	go func() {
		for err := range p.group.Errors() {
			p.logger.Error("sarama consumer error", "error", err)
		}
	}()

	go func() {
		if err := p.workers.Wait(); err != nil && ctx.Err() == nil {
			p.logger.Error("consumer worker halted", "error", err)
		}
		close(p.done)
	}()

	return nil
}

func (p *Pool) runConsumeLoop(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) {
	p.workers.Go(func() error {
		for {
			if err := p.group.Consume(ctx, topics, handler); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				var fatal *fatalClaimError
				if errors.As(err, &fatal) {
					// A halted ClassFatal record: cancel every sibling
					// loop's shared context rather than let them keep
					// consuming against state this worker gave up on.
					return err
				}
				p.logger.Error("consumer group session error", "error", err, "topics", topics)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	})
}

// Stop cancels the active session and closes the consumer group.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-ctx.Done():
	}
	return p.group.Close()
}

// groupHandler implements sarama.ConsumerGroupHandler. Sarama invokes
// ConsumeClaim once per assigned partition in its own goroutine — this is
// the one-worker-per-(topic,partition) model the pool relies on.
type groupHandler struct {
	pool *Pool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	topic := claim.Topic()

	process := func(ctx context.Context, raw []byte) error {
		e, err := event.Decode(raw)
		if err != nil {
			return &ClassifiedError{Class: ClassPermanent, Err: err}
		}
		if err := h.pool.router.Route(topic, e); err != nil {
			return &ClassifiedError{Class: ClassPermanent, Err: err}
		}
		return nil
	}

	batch := 0
	var lastMsg *sarama.ConsumerMessage

	for msg := range claim.Messages() {
		handle := WithRetry(process, h.pool.sink, topic, msg.Partition, msg.Offset)
		if err := handle(sess.Context(), msg.Value); err != nil {
			return &fatalClaimError{topic: topic, partition: msg.Partition, err: err}
		}
		lastMsg = msg
		batch++

		if batch >= maxBatch {
			sess.MarkMessage(lastMsg, "")
			sess.Commit()
			batch = 0
		}
	}

	if lastMsg != nil && batch > 0 {
		sess.MarkMessage(lastMsg, "")
		sess.Commit()
	}

	return nil
}

// fatalClaimError marks a ConsumeClaim failure that must halt its worker —
// alert, do not commit — rather than retry the session, so the errgroup
// fan-in in Start cancels every sibling loop's shared context too.
type fatalClaimError struct {
	topic     string
	partition int32
	err       error
}

func (e *fatalClaimError) Error() string {
	return fmt.Sprintf("consumer: fatal error on %s/%d: %v", e.topic, e.partition, e.err)
}

func (e *fatalClaimError) Unwrap() error { return e.err }

// Module wires the Pool into the app lifecycle.
var Module = fx.Module("consumer",
	fx.Provide(NewPool),
	fx.Invoke(func(lc fx.Lifecycle, p *Pool) {
		lc.Append(fx.Hook{OnStart: p.Start, OnStop: p.Stop})
	}),
)
