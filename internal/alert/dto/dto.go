package dto

import "github.com/cloudpos/inventory-service/internal/model"

const (
	DefaultAlertLimit = 50
	MaxAlertLimit     = 200
)

type AlertFilters struct {
	StoreID string
	Status  model.AlertStatus
	Type    model.AlertType
	Limit   int
	Offset  int
}

func (f *AlertFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultAlertLimit
	}
	if f.Limit > MaxAlertLimit {
		f.Limit = MaxAlertLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

type AlertPage struct {
	Alerts []model.InventoryAlert `json:"alerts"`
	Total  int                    `json:"total"`
}
