package alert

import (
	"context"

	"github.com/cloudpos/inventory-service/internal/alert/dto"
	"github.com/cloudpos/inventory-service/internal/model"
)

type UseCase interface {
	// Evaluate re-reads the product's current stock and raises, updates or
	// resolves its alert accordingly.
	Evaluate(ctx context.Context, event *model.StockEvent) error
	AcknowledgeAlert(ctx context.Context, alertID, storeID, userID string) (bool, error)
	ListAlerts(ctx context.Context, filters *dto.AlertFilters) (*dto.AlertPage, error)
}
