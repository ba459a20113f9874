package stock

import (
	"context"
	"time"

	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Transaction support
	RunInTx(ctx context.Context, fn func(tx TxRepository) error) error

	// Stock levels
	GetStockLevel(ctx context.Context, productID, storeID, locationID string) (*model.StockLevel, error)
	FindAll(ctx context.Context, filters *dto.StockLevelFilters) ([]model.StockLevel, error)
	FindLowStock(ctx context.Context, storeID string) ([]model.StockLevel, error)
	InventoryValue(ctx context.Context, storeID string) (decimal.Decimal, error)

	// Reservations are single conditional statements, outside RunInTx.
	Reserve(ctx context.Context, productID, storeID string, quantity int, now time.Time) (bool, error)
	Release(ctx context.Context, productID, storeID string, quantity int, now time.Time) error

	// Movements / Audit
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}

// TxRepository is the set of statements a ledger operation runs inside one
// transaction.
type TxRepository interface {
	// GetProduct returns nil when the product is not carried by the store.
	GetProduct(ctx context.Context, productID, storeID string) (*model.Product, error)
	// LockStockLevel creates the store-level row with quantity 0 if absent and
	// locks it until the transaction ends.
	LockStockLevel(ctx context.Context, productID, storeID string, now time.Time) (*model.StockLevel, error)
	UpdateStockLevel(ctx context.Context, level *model.StockLevel) error
	InsertMovement(ctx context.Context, movement *model.StockMovement) error
	SyncProductQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) error
	EnqueueEvent(ctx context.Context, event *model.StockEvent) error

	// Order reservations
	GetReservations(ctx context.Context, orderID, storeID string) ([]model.Reservation, error)
	ReserveQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) (bool, error)
	ReleaseQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) error
	InsertReservation(ctx context.Context, reservation *model.Reservation) error
	// DeleteReservations removes the order's holds and returns what was removed.
	DeleteReservations(ctx context.Context, orderID, storeID string) ([]model.Reservation, error)
}

// Cache is the read-through cache for store-wide aggregate queries.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
