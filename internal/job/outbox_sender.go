package job

import (
	"context"
	"time"

	"ridepay/internal/infrastructure/mq"
	"ridepay/internal/model"

	"github.com/sirupsen/logrus"
)

// OutboxStore is the outbox table as the sender sees it.
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetries int) (bool, error)
}

// OutboxSender drains pending outbox rows to the broker in id order.
type OutboxSender struct {
	store      OutboxStore
	publisher  mq.Publisher
	log        logrus.FieldLogger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxSender(store OutboxStore, publisher mq.Publisher, maxRetries int, log logrus.FieldLogger) *OutboxSender {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxSender{
		store:      store,
		publisher:  publisher,
		log:        log.WithField("job", "outbox_sender"),
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
		maxRetries: maxRetries,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("context cancelled, exiting")
			return
		case <-s.stopCh:
			s.log.Info("stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.store.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("load pending messages")
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	logger := s.log.WithFields(logrus.Fields{"id": msg.ID, "topic": msg.Topic, "key": msg.MessageKey})

	if err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
		logger.WithError(err).Warn("publish failed")
		exhausted, ferr := s.store.RecordFailure(ctx, msg, s.maxRetries)
		if ferr != nil {
			logger.WithError(ferr).Error("record failure")
			return
		}
		if exhausted {
			logger.Error("retries exhausted, message marked failed")
		}
		return
	}

	if err := s.store.MarkSent(ctx, msg.ID); err != nil {
		// Redelivered on the next tick; consumers key on the message key.
		logger.WithError(err).Error("mark sent")
		return
	}
	logger.Debug("published")
}
