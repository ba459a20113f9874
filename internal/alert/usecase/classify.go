package usecase

import (
	"fmt"

	"github.com/cloudpos/inventory-service/internal/model"
)

type Condition struct {
	Type      model.AlertType
	Severity  model.AlertSeverity
	Threshold int
}

// Classify maps a quantity to the most severe threshold it has reached.
// ok is false when the quantity is above every threshold.
func Classify(quantity, minStockLevel, reorderPoint int) (c Condition, ok bool) {
	switch {
	case quantity == 0:
		return Condition{model.AlertOutOfStock, model.SeverityCritical, 0}, true
	case quantity <= reorderPoint:
		return Condition{model.AlertReorderPoint, model.SeverityHigh, reorderPoint}, true
	case quantity <= minStockLevel:
		return Condition{model.AlertLowStock, model.SeverityMedium, minStockLevel}, true
	default:
		return Condition{}, false
	}
}

func message(c Condition, productName string, quantity int) string {
	switch c.Type {
	case model.AlertOutOfStock:
		return fmt.Sprintf("%s is out of stock", productName)
	case model.AlertReorderPoint:
		return fmt.Sprintf("%s reached its reorder point: %d left, reorder at %d", productName, quantity, c.Threshold)
	default:
		return fmt.Sprintf("%s is running low: %d left, minimum %d", productName, quantity, c.Threshold)
	}
}
