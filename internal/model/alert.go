package model

import (
	"fmt"
	"time"
)

type AlertType string

const (
	AlertLowStock     AlertType = "low_stock"
	AlertOutOfStock   AlertType = "out_of_stock"
	AlertReorderPoint AlertType = "reorder_point"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

func ParseAlertType(s string) (AlertType, error) {
	switch t := AlertType(s); t {
	case AlertLowStock, AlertOutOfStock, AlertReorderPoint:
		return t, nil
	}
	return "", fmt.Errorf("unknown alert type %q", s)
}

func ParseAlertStatus(s string) (AlertStatus, error) {
	switch st := AlertStatus(s); st {
	case AlertActive, AlertAcknowledged, AlertResolved:
		return st, nil
	}
	return "", fmt.Errorf("unknown alert status %q", s)
}

// IsOpen reports whether the alert still represents a standing condition.
func (s AlertStatus) IsOpen() bool {
	return s == AlertActive || s == AlertAcknowledged
}

type InventoryAlert struct {
	ID              string        `db:"id" json:"id"`
	ProductID       string        `db:"product_id" json:"productId"`
	StoreID         string        `db:"store_id" json:"storeId"`
	Type            AlertType     `db:"type" json:"type"`
	Severity        AlertSeverity `db:"severity" json:"severity"`
	CurrentQuantity int           `db:"current_quantity" json:"currentQuantity"`
	Threshold       int           `db:"threshold" json:"threshold"`
	Message         string        `db:"message" json:"message"`
	Status          AlertStatus   `db:"status" json:"status"`
	AcknowledgedBy  *string       `db:"acknowledged_by" json:"acknowledgedBy,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
	AcknowledgedAt  *time.Time    `db:"acknowledged_at" json:"acknowledgedAt,omitempty"`
	ResolvedAt      *time.Time    `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// StockSnapshot is the state an alert evaluation works from.
type StockSnapshot struct {
	ProductID     string `db:"product_id"`
	StoreID       string `db:"store_id"`
	ProductName   string `db:"product_name"`
	Quantity      int    `db:"quantity"`
	MinStockLevel int    `db:"min_stock_level"`
	ReorderPoint  int    `db:"reorder_point"`
	TrackStock    bool   `db:"track_stock"`
}
