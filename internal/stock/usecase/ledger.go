package usecase

import (
	"fmt"

	"github.com/cloudpos/inventory-service/internal/model"
)

// applyMovement returns the resulting on-hand quantity and the signed delta for
// an adjustment of the given type. It does not check the result against zero.
func applyMovement(current int, t model.MovementType, magnitude int) (newQuantity, delta int, err error) {
	switch t {
	case model.MovementIn, model.MovementReturn:
		return current + magnitude, magnitude, nil
	case model.MovementOut, model.MovementDamaged, model.MovementExpired:
		return current - magnitude, -magnitude, nil
	case model.MovementAdjustment:
		return magnitude, magnitude - current, nil
	case model.MovementTransfer:
		return 0, 0, fmt.Errorf("transfer movements are created by stock transfers only")
	default:
		return 0, 0, fmt.Errorf("unsupported movement type %q", t)
	}
}
