package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudpos/inventory-service/internal/auth"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/cloudpos/inventory-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCompleted = "OrderCompleted"
	EventOrderCancelled = "OrderCancelled"
)

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// OrderListener keeps reservations and on-hand stock in step with the order
// lifecycle published by the order service.
type OrderListener struct {
	consumer MessageReader
	uc       stock.UseCase
	logger   logger.ZapLogger
}

func NewOrderListener(consumer MessageReader, uc stock.UseCase, logger logger.ZapLogger) *OrderListener {
	return &OrderListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

func (l *OrderListener) Start(ctx context.Context) {
	l.logger.Info("Starting order events listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping order events listener")
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

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID      string             `json:"id"`
	StoreID string             `json:"store_id"`
	Items   []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (l *OrderListener) HandleMessage(ctx context.Context, value []byte) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	log := l.logger.With(
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.Payload.ID),
		zap.String("store_id", event.Payload.StoreID),
	)

	switch event.EventType {
	case EventOrderCreated:
		log.Info("Reserving stock for order")
		l.reserve(ctx, log, &event.Payload)
	case EventOrderCompleted:
		log.Info("Fulfilling order stock")
		l.fulfil(ctx, log, &event.Payload)
	case EventOrderCancelled:
		log.Info("Releasing stock for cancelled order")
		l.release(ctx, log, &event.Payload)
	}
}

func (l *OrderListener) reserve(ctx context.Context, log logger.ZapLogger, order *OrderPayload) {
	lines := make([]dto.ReservationLine, len(order.Items))
	for i, item := range order.Items {
		lines[i] = dto.ReservationLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	ok, err := l.uc.ReserveOrder(ctx, &dto.OrderReservationInput{
		OrderID: order.ID,
		StoreID: order.StoreID,
		Lines:   lines,
	})
	if err != nil {
		log.Error("Failed to reserve stock for order", zap.Error(err))
		return
	}
	if !ok {
		log.Warn("Not enough available stock to reserve order")
	}
}

// fulfil frees what the order holds and then records the sale of every line,
// whether or not the line was reserved.
func (l *OrderListener) fulfil(ctx context.Context, log logger.ZapLogger, order *OrderPayload) {
	l.release(ctx, log, order)

	for _, item := range order.Items {
		_, err := l.uc.AdjustStock(ctx, &dto.AdjustStockInput{
			StoreID:     order.StoreID,
			ProductID:   item.ProductID,
			Type:        model.MovementOut,
			Quantity:    item.Quantity,
			Reason:      "Order Sale",
			ReferenceID: order.ID,
			UserID:      auth.System,
		})
		if err != nil {
			log.Error("Failed to deduct stock for order item",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (l *OrderListener) release(ctx context.Context, log logger.ZapLogger, order *OrderPayload) {
	released, err := l.uc.ReleaseOrder(ctx, order.ID, order.StoreID)
	if err != nil {
		log.Error("Failed to release reserved stock for order", zap.Error(err))
		return
	}
	log.Debug("Released order reservations", zap.Int("lines", len(released)))
}
