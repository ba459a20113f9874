package dto

import "github.com/cloudpos/inventory-service/internal/model"

const (
	DefaultMovementLimit = 50
	MaxMovementLimit     = 200
)

type StockLevelFilters struct {
	StoreID    string
	LocationID *string // nil for every location
}

type MovementFilters struct {
	StoreID   string
	ProductID string
	Type      model.MovementType
	Limit     int
	Offset    int
}

// Normalize clamps paging to the supported window.
func (f *MovementFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultMovementLimit
	}
	if f.Limit > MaxMovementLimit {
		f.Limit = MaxMovementLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

type MovementPage struct {
	Movements []model.StockMovement `json:"movements"`
	Total     int                   `json:"total"`
}
