package alert

import (
	"context"
	"time"

	"github.com/cloudpos/inventory-service/internal/alert/dto"
	"github.com/cloudpos/inventory-service/internal/model"
)

type Repository interface {
	RunInTx(ctx context.Context, fn func(tx TxRepository) error) error

	// Acknowledge moves an active alert to acknowledged. It reports false when
	// no active alert with that id exists in the store.
	Acknowledge(ctx context.Context, alertID, storeID, userID string, now time.Time) (bool, error)
	List(ctx context.Context, filters *dto.AlertFilters) ([]model.InventoryAlert, int, error)
}

type TxRepository interface {
	// GetSnapshot locks the product row and returns its thresholds and the
	// current store-level quantity. nil when the product does not exist.
	GetSnapshot(ctx context.Context, productID, storeID string) (*model.StockSnapshot, error)
	// GetOpenAlert returns the active or acknowledged alert, or nil.
	GetOpenAlert(ctx context.Context, productID, storeID string) (*model.InventoryAlert, error)
	CreateAlert(ctx context.Context, alert *model.InventoryAlert) error
	UpdateAlert(ctx context.Context, alert *model.InventoryAlert) error
}
