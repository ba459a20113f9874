package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
	MovementTransfer   MovementType = "transfer"
	MovementReturn     MovementType = "return"
	MovementDamaged    MovementType = "damaged"
	MovementExpired    MovementType = "expired"
)

var movementTypes = map[MovementType]struct{}{
	MovementIn:         {},
	MovementOut:        {},
	MovementAdjustment: {},
	MovementTransfer:   {},
	MovementReturn:     {},
	MovementDamaged:    {},
	MovementExpired:    {},
}

func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(s)
	if _, ok := movementTypes[t]; !ok {
		return "", fmt.Errorf("unknown movement type %q", s)
	}
	return t, nil
}

// StockLevel is one row per (product, store, location). LocationID "" is the
// store-level row that adjustments and reservations operate on.
type StockLevel struct {
	ProductID        string          `db:"product_id" json:"productId"`
	StoreID          string          `db:"store_id" json:"storeId"`
	LocationID       string          `db:"location_id" json:"locationId,omitempty"`
	Quantity         int             `db:"quantity" json:"quantity"`
	ReservedQuantity int             `db:"reserved_quantity" json:"reservedQuantity"`
	UnitCost         decimal.Decimal `db:"unit_cost" json:"unitCost"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`

	// Populated by queries joining products.
	ProductName   string `db:"product_name" json:"productName,omitempty"`
	MinStockLevel int    `db:"min_stock_level" json:"minStockLevel,omitempty"`
	ReorderPoint  int    `db:"reorder_point" json:"reorderPoint,omitempty"`
}

func (s *StockLevel) AvailableQuantity() int {
	return s.Quantity - s.ReservedQuantity
}

func (s *StockLevel) TotalValue() decimal.Decimal {
	return s.UnitCost.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// MarshalJSON adds the derived availableQuantity and totalValue fields.
func (s StockLevel) MarshalJSON() ([]byte, error) {
	type stockLevel StockLevel
	return json.Marshal(struct {
		stockLevel
		AvailableQuantity int             `json:"availableQuantity"`
		TotalValue        decimal.Decimal `json:"totalValue"`
	}{
		stockLevel:        stockLevel(s),
		AvailableQuantity: s.AvailableQuantity(),
		TotalValue:        s.TotalValue(),
	})
}

// Reservation is the quantity one order holds on a store-level row.
type Reservation struct {
	OrderID   string    `db:"order_id" json:"orderId"`
	ProductID string    `db:"product_id" json:"productId"`
	StoreID   string    `db:"store_id" json:"storeId"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// StockMovement is an immutable record of one applied quantity change.
type StockMovement struct {
	ID               string              `db:"id" json:"id"`
	ProductID        string              `db:"product_id" json:"productId"`
	StoreID          string              `db:"store_id" json:"storeId"`
	LocationID       string              `db:"location_id" json:"locationId,omitempty"`
	Type             MovementType        `db:"type" json:"type"`
	Reason           string              `db:"reason" json:"reason"`
	Notes            *string             `db:"notes" json:"notes,omitempty"`
	Quantity         int                 `db:"quantity" json:"quantity"`
	PreviousQuantity int                 `db:"previous_quantity" json:"previousQuantity"`
	NewQuantity      int                 `db:"new_quantity" json:"newQuantity"`
	UnitCost         decimal.NullDecimal `db:"unit_cost" json:"unitCost"`
	TotalCost        decimal.NullDecimal `db:"total_cost" json:"totalCost"`
	ReferenceID      *string             `db:"reference_id" json:"referenceId,omitempty"`
	PerformedBy      string              `db:"performed_by" json:"performedBy"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
}

// StockEvent is an outbox row announcing that a product's stock changed.
type StockEvent struct {
	ID          string     `db:"id" json:"eventId"`
	Seq         int64      `db:"seq" json:"-"`
	ProductID   string     `db:"product_id" json:"productId"`
	StoreID     string     `db:"store_id" json:"storeId"`
	MovementID  string     `db:"movement_id" json:"movementId"`
	Quantity    int        `db:"quantity" json:"quantity"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	PublishedAt *time.Time `db:"published_at" json:"-"`
}
