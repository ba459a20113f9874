package stock

import (
	"context"

	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/shopspring/decimal"
)

type UseCase interface {
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.StockMovement, error)
	TransferStock(ctx context.Context, input *dto.TransferStockInput) ([]model.StockMovement, error)
	ReserveStock(ctx context.Context, productID, storeID string, quantity int) (bool, error)
	ReleaseReservedStock(ctx context.Context, productID, storeID string, quantity int) error
	ReserveOrder(ctx context.Context, input *dto.OrderReservationInput) (bool, error)
	ReleaseOrder(ctx context.Context, orderID, storeID string) ([]model.Reservation, error)

	GetStockLevel(ctx context.Context, productID, storeID, locationID string) (*model.StockLevel, error)
	GetStockLevels(ctx context.Context, filters *dto.StockLevelFilters) ([]model.StockLevel, error)
	GetLowStockProducts(ctx context.Context, storeID string) ([]model.StockLevel, error)
	GetStockMovements(ctx context.Context, filters *dto.MovementFilters) (*dto.MovementPage, error)
	GetInventoryValue(ctx context.Context, storeID string) (decimal.Decimal, error)
}
