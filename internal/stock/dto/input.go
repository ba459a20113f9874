package dto

import (
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/shopspring/decimal"
)

type AdjustStockInput struct {
	StoreID   string
	ProductID string
	Type      model.MovementType
	// Quantity is a positive magnitude for directed types and the absolute
	// target for adjustment.
	Quantity    int
	Reason      string
	UnitCost    *decimal.Decimal
	Notes       string
	ReferenceID string
	UserID      string
}

type TransferStockInput struct {
	SourceStoreID string
	TargetStoreID string
	ProductID     string
	Quantity      int
	Reason        string
	Notes         string
	UserID        string
}

type ReservationLine struct {
	ProductID string
	Quantity  int
}

// OrderReservationInput holds every line of one order in a store.
type OrderReservationInput struct {
	OrderID string
	StoreID string
	Lines   []ReservationLine
}
