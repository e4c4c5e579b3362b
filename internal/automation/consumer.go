package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/leadflow/internal/events"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	defaultConsumerWorkers = 2
	defaultWaitSeconds     = 10
	defaultBatchSize       = 5
	maxWaitSeconds         = 20
	maxReceiveBatchSize    = 10
	deleteTimeout          = 5 * time.Second
)

// EventHandler reacts to a lead event.
type EventHandler interface {
	HandleEvent(ctx context.Context, lead *leads.Lead, event Event) ([]*Run, error)
}

// ConsumerOption customizes consumer behaviour.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

func WithConsumerWorkers(n int) ConsumerOption {
	return func(cfg *consumerConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait, capped at 20s.
func WithReceiveWaitSeconds(seconds int) ConsumerOption {
	return func(cfg *consumerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets messages per poll, capped at 10.
func WithReceiveBatchSize(size int) ConsumerOption {
	return func(cfg *consumerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Consumer reads lead events from a queue, loads the lead and hands it to
// the engine.
type Consumer struct {
	queue   events.Queue
	repo    leads.Repository
	handler EventHandler
	logger  *logging.Logger
	cfg     consumerConfig
	wg      sync.WaitGroup
}

func NewConsumer(queue events.Queue, repo leads.Repository, handler EventHandler, logger *logging.Logger, opts ...ConsumerOption) *Consumer {
	if queue == nil || repo == nil || handler == nil {
		panic("automation: consumer requires queue, repository and handler")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := consumerConfig{
		workers:          defaultConsumerWorkers,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Consumer{queue: queue, repo: repo, handler: handler, logger: logger, cfg: cfg}
}

// Start launches consumer goroutines until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.cfg.workers; i++ {
		c.wg.Add(1)
		go c.run(ctx, i+1)
	}
}

// Wait blocks until all consumer goroutines exit.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context, workerID int) {
	defer c.wg.Done()
	c.logger.Debug("automation consumer started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("automation consumer stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := c.queue.Receive(ctx, c.cfg.receiveBatchSize, c.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to receive lead events", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			c.handleMessage(ctx, msg)
		}
	}
}

// handleMessage deletes the message unless handling failed in a way a
// redelivery could fix.
func (c *Consumer) handleMessage(ctx context.Context, msg events.Message) {
	env, err := events.DecodeEnvelope(msg.Body)
	if err != nil {
		c.logger.Error("failed to decode lead event", "error", err, "msg_id", msg.ID)
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	event, ok := EventForType(env.EventType)
	if !ok {
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	log := c.logger.WithLead(env.OrgID, env.LeadID())
	lead, err := c.repo.GetByID(ctx, env.OrgID, env.LeadID())
	if errors.Is(err, leads.ErrLeadNotFound) {
		log.Warn("lead event for unknown lead", "event_type", env.EventType)
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	if err != nil {
		log.Error("failed to load lead for event", "error", err, "event_type", env.EventType)
		return
	}

	runs, err := c.handler.HandleEvent(ctx, lead, event)
	if err != nil {
		log.Error("automation event handling failed", "error", err, "event", event, "runs_started", len(runs))
		return
	}
	if len(runs) > 0 {
		log.Info("automation runs started", "event", event, "count", len(runs))
	}
	c.deleteMessage(ctx, msg.ReceiptHandle)
}

func (c *Consumer) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if err := c.queue.Delete(deleteCtx, receiptHandle); err != nil {
		c.logger.Error("failed to delete lead event", "error", err)
	}
}

// EventForType maps a lead event type to the trigger event tag. Types that
// never trigger workflows return false.
func EventForType(eventType string) (Event, bool) {
	switch eventType {
	case events.TypeLeadCreated:
		return EventLeadCreated, true
	case events.TypeLeadStatusChanged:
		return EventStatusChange, true
	case events.TypeActivityRecorded:
		return EventActivityRecorded, true
	case events.TypeDocumentUpdated:
		return EventDocumentUpdated, true
	}
	return "", false
}
