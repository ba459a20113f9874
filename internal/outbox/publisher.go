package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/pkg/broker"
	"github.com/cloudpos/inventory-service/pkg/logger"
	"go.uber.org/zap"
)

// MessageWriter is satisfied by *broker.KafkaProducer.
type MessageWriter interface {
	Publish(ctx context.Context, msgs ...broker.Message) error
}

// KafkaPublisher writes events keyed by product id so changes to one product
// stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []model.StockEvent) error {
	msgs := make([]broker.Message, len(events))
	for i, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal stock event %s: %w", e.ID, err)
		}
		msgs[i] = broker.Message{Key: []byte(e.ProductID), Value: value}
	}
	return p.writer.Publish(ctx, msgs...)
}

type Evaluator interface {
	Evaluate(ctx context.Context, event *model.StockEvent) error
}

// LocalPublisher hands events straight to the alert evaluator when no broker
// is configured. A failed evaluation is logged and skipped: evaluation reads
// current state, so the next change to the product evaluates it again.
type LocalPublisher struct {
	evaluator Evaluator
	logger    logger.ZapLogger
}

func NewLocalPublisher(e Evaluator, log logger.ZapLogger) *LocalPublisher {
	return &LocalPublisher{evaluator: e, logger: log}
}

func (p *LocalPublisher) Publish(ctx context.Context, events []model.StockEvent) error {
	for i := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.evaluator.Evaluate(ctx, &events[i]); err != nil {
			p.logger.Warn("Skipping stock event after failed alert evaluation",
				zap.String("event_id", events[i].ID),
				zap.String("product_id", events[i].ProductID),
				zap.String("store_id", events[i].StoreID),
				zap.Error(err),
			)
		}
	}
	return nil
}
