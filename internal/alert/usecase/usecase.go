package usecase

import (
	"context"
	"time"

	"github.com/cloudpos/inventory-service/internal/alert"
	"github.com/cloudpos/inventory-service/internal/alert/dto"
	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type alertUseCase struct {
	repo   alert.Repository
	logger logger.ZapLogger
	now    func() time.Time
}

func NewAlertUseCase(repo alert.Repository, log logger.ZapLogger) alert.UseCase {
	return &alertUseCase{
		repo:   repo,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type outcome string

const (
	outcomeNone     outcome = ""
	outcomeRaised   outcome = "raised"
	outcomeUpdated  outcome = "updated"
	outcomeResolved outcome = "resolved"
)

func (uc *alertUseCase) Evaluate(ctx context.Context, event *model.StockEvent) error {
	now := uc.now()
	var (
		result outcome
		saved  *model.InventoryAlert
	)

	err := uc.repo.RunInTx(ctx, func(tx alert.TxRepository) error {
		result, saved = outcomeNone, nil

		snap, err := tx.GetSnapshot(ctx, event.ProductID, event.StoreID)
		if err != nil {
			return apperror.Persistence("load stock snapshot", err)
		}
		if snap == nil {
			return nil
		}

		open, err := tx.GetOpenAlert(ctx, snap.ProductID, snap.StoreID)
		if err != nil {
			return apperror.Persistence("load open alert", err)
		}

		cond, breached := Classify(snap.Quantity, snap.MinStockLevel, snap.ReorderPoint)
		if !snap.TrackStock {
			breached = false
		}

		switch {
		case breached && open == nil:
			a := &model.InventoryAlert{
				ID:              uuid.New().String(),
				ProductID:       snap.ProductID,
				StoreID:         snap.StoreID,
				Type:            cond.Type,
				Severity:        cond.Severity,
				CurrentQuantity: snap.Quantity,
				Threshold:       cond.Threshold,
				Message:         message(cond, snap.ProductName, snap.Quantity),
				Status:          model.AlertActive,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.CreateAlert(ctx, a); err != nil {
				return apperror.Persistence("create alert", err)
			}
			result, saved = outcomeRaised, a

		case breached:
			msg := message(cond, snap.ProductName, snap.Quantity)
			if open.Type == cond.Type && open.Severity == cond.Severity &&
				open.CurrentQuantity == snap.Quantity && open.Threshold == cond.Threshold && open.Message == msg {
				return nil
			}
			open.Type = cond.Type
			open.Severity = cond.Severity
			open.CurrentQuantity = snap.Quantity
			open.Threshold = cond.Threshold
			open.Message = msg
			open.UpdatedAt = now
			if err := tx.UpdateAlert(ctx, open); err != nil {
				return apperror.Persistence("update alert", err)
			}
			result, saved = outcomeUpdated, open

		case open != nil:
			open.Status = model.AlertResolved
			open.CurrentQuantity = snap.Quantity
			open.UpdatedAt = now
			open.ResolvedAt = &now
			if err := tx.UpdateAlert(ctx, open); err != nil {
				return apperror.Persistence("resolve alert", err)
			}
			result, saved = outcomeResolved, open
		}
		return nil
	})
	if err != nil {
		uc.logger.Error("alert evaluation failed",
			zap.String("event_id", event.ID),
			zap.String("store_id", event.StoreID),
			zap.String("product_id", event.ProductID),
			zap.Error(err),
		)
		return err
	}

	if result != outcomeNone {
		uc.logger.Info("inventory alert "+string(result),
			zap.String("alert_id", saved.ID),
			zap.String("store_id", saved.StoreID),
			zap.String("product_id", saved.ProductID),
			zap.String("type", string(saved.Type)),
			zap.String("severity", string(saved.Severity)),
			zap.Int("quantity", saved.CurrentQuantity),
		)
	}
	return nil
}

func (uc *alertUseCase) AcknowledgeAlert(ctx context.Context, alertID, storeID, userID string) (bool, error) {
	if alertID == "" || storeID == "" {
		return false, apperror.Validation("alertId and storeId are required")
	}

	ok, err := uc.repo.Acknowledge(ctx, alertID, storeID, userID, uc.now())
	if err != nil {
		return false, apperror.Persistence("acknowledge alert", err)
	}
	if ok {
		uc.logger.Info("inventory alert acknowledged",
			zap.String("alert_id", alertID),
			zap.String("store_id", storeID),
			zap.String("acknowledged_by", userID),
		)
	}
	return ok, nil
}

func (uc *alertUseCase) ListAlerts(ctx context.Context, filters *dto.AlertFilters) (*dto.AlertPage, error) {
	if filters.StoreID == "" {
		return nil, apperror.Validation("storeId is required")
	}
	filters.Normalize()

	alerts, total, err := uc.repo.List(ctx, filters)
	if err != nil {
		return nil, apperror.Persistence("list alerts", err)
	}
	if alerts == nil {
		alerts = []model.InventoryAlert{}
	}
	return &dto.AlertPage{Alerts: alerts, Total: total}, nil
}
