package outbox

import (
	"context"

	"github.com/cloudpos/inventory-service/internal/model"
)

type Repository interface {
	// ProcessPending claims up to limit unpublished events, oldest first, and
	// hands them to fn. They are marked published only if fn succeeds; rows
	// claimed by another relay are skipped. It returns the number processed.
	ProcessPending(ctx context.Context, limit int, fn func(events []model.StockEvent) error) (int, error)
}
