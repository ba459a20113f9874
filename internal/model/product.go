package model

import "time"

// Product is the slice of the product record the stock ledger reads. Only
// StockQuantity is ever written here, and only by the ledger.
type Product struct {
	ID            string    `db:"id" json:"id"`
	StoreID       string    `db:"store_id" json:"storeId"`
	SKU           string    `db:"sku" json:"sku"`
	Name          string    `db:"name" json:"name"`
	MinStockLevel int       `db:"min_stock_level" json:"minStockLevel"`
	ReorderPoint  int       `db:"reorder_point" json:"reorderPoint"`
	TrackStock    bool      `db:"track_stock" json:"trackStock"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	StockQuantity int       `db:"stock_quantity" json:"stockQuantity"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}
