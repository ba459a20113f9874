package outbox

import (
	"context"
	"time"

	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/pkg/logger"
	"go.uber.org/zap"
)

// Publisher delivers a batch of stock events. A batch is retried as a whole
// when Publish fails, so consumers must tolerate duplicates.
type Publisher interface {
	Publish(ctx context.Context, events []model.StockEvent) error
}

type Relay struct {
	repo      Repository
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    logger.ZapLogger
}

func NewRelay(repo Repository, publisher Publisher, interval time.Duration, batchSize int, log logger.ZapLogger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    log,
	}
}

// Run drains the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("Starting stock event relay", zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping stock event relay")
			return
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Failed to relay stock events", zap.Error(err))
			}
		}
	}
}

// Drain publishes batches until the outbox is empty or a batch fails.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.repo.ProcessPending(ctx, r.batchSize, func(events []model.StockEvent) error {
			return r.publisher.Publish(ctx, events)
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			if total > 0 {
				r.logger.Debug("Relayed stock events", zap.Int("count", total))
			}
			return total, nil
		}
	}
}
