package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudpos/inventory-service/internal/alert"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// StockEventListener feeds stock change events from the broker into alert
// evaluation.
type StockEventListener struct {
	consumer MessageReader
	uc       alert.UseCase
	logger   logger.ZapLogger
}

func NewStockEventListener(consumer MessageReader, uc alert.UseCase, logger logger.ZapLogger) *StockEventListener {
	return &StockEventListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

func (l *StockEventListener) Start(ctx context.Context) {
	l.logger.Info("Starting stock events listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping stock events listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.HandleMessage(ctx, msg.Value)
		}
	}
}

// HandleMessage evaluates one event. A failed evaluation is not retried; the
// next change for the same product re-evaluates from current state.
func (l *StockEventListener) HandleMessage(ctx context.Context, value []byte) {
	var event model.StockEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal stock event", zap.Error(err))
		return
	}
	if event.ProductID == "" || event.StoreID == "" {
		l.logger.Warn("Skipping stock event without product or store", zap.String("event_id", event.ID))
		return
	}
	if err := l.uc.Evaluate(ctx, &event); err != nil {
		l.logger.Error("Failed to evaluate stock event",
			zap.String("event_id", event.ID),
			zap.String("product_id", event.ProductID),
			zap.String("store_id", event.StoreID),
			zap.Error(err),
		)
	}
}
