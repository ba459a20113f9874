package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/cloudpos/inventory-service/pkg/cache"
	"github.com/cloudpos/inventory-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	lowStockCacheTTL = time.Minute
	valueCacheTTL    = time.Minute
)

type stockUseCase struct {
	repo   stock.Repository
	cache  stock.Cache
	logger logger.ZapLogger
	now    func() time.Time
}

// NewStockUseCase builds the stock ledger. cache may be nil.
func NewStockUseCase(repo stock.Repository, c stock.Cache, log logger.ZapLogger) stock.UseCase {
	return &stockUseCase{
		repo:   repo,
		cache:  c,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (uc *stockUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.StockMovement, error) {
	if err := validateAdjust(input); err != nil {
		return nil, err
	}

	now := uc.now()
	var movement *model.StockMovement

	err := uc.repo.RunInTx(ctx, func(tx stock.TxRepository) error {
		product, err := tx.GetProduct(ctx, input.ProductID, input.StoreID)
		if err != nil {
			return apperror.Persistence("load product", err)
		}
		if product == nil {
			return apperror.NotFound("product %s not found in store %s", input.ProductID, input.StoreID)
		}

		level, err := tx.LockStockLevel(ctx, input.ProductID, input.StoreID, now)
		if err != nil {
			return apperror.Persistence("lock stock level", err)
		}

		newQuantity, delta, err := applyMovement(level.Quantity, input.Type, input.Quantity)
		if err != nil {
			return apperror.Validation("%v", err)
		}
		if newQuantity < 0 {
			return apperror.InsufficientStock("insufficient stock for product %s: on hand %d, requested %d",
				input.ProductID, level.Quantity, -delta)
		}
		if newQuantity < level.ReservedQuantity {
			return apperror.InsufficientStock("insufficient stock for product %s: %d units are reserved",
				input.ProductID, level.ReservedQuantity)
		}

		previous := level.Quantity
		level.Quantity = newQuantity
		if input.UnitCost != nil {
			level.UnitCost = *input.UnitCost
		}
		level.UpdatedAt = now
		if err := tx.UpdateStockLevel(ctx, level); err != nil {
			return apperror.Persistence("update stock level", err)
		}

		m := &model.StockMovement{
			ID:               uuid.New().String(),
			ProductID:        input.ProductID,
			StoreID:          input.StoreID,
			Type:             input.Type,
			Reason:           input.Reason,
			Notes:            optional(input.Notes),
			Quantity:         delta,
			PreviousQuantity: previous,
			NewQuantity:      newQuantity,
			ReferenceID:      optional(input.ReferenceID),
			PerformedBy:      input.UserID,
			CreatedAt:        now,
		}
		if input.UnitCost != nil {
			m.UnitCost = decimal.NewNullDecimal(*input.UnitCost)
			m.TotalCost = decimal.NewNullDecimal(input.UnitCost.Mul(decimal.NewFromInt(int64(abs(delta)))))
		}

		if err := uc.record(ctx, tx, m, now); err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		uc.logFailure("stock adjustment rejected", err,
			zap.String("store_id", input.StoreID),
			zap.String("product_id", input.ProductID),
			zap.String("type", string(input.Type)),
			zap.Int("quantity", input.Quantity),
		)
		return nil, err
	}

	uc.invalidate(ctx, input.StoreID)
	uc.logger.Info("stock adjusted",
		zap.String("movement_id", movement.ID),
		zap.String("store_id", movement.StoreID),
		zap.String("product_id", movement.ProductID),
		zap.String("type", string(movement.Type)),
		zap.Int("delta", movement.Quantity),
		zap.Int("new_quantity", movement.NewQuantity),
		zap.String("performed_by", movement.PerformedBy),
	)
	return movement, nil
}

func (uc *stockUseCase) TransferStock(ctx context.Context, input *dto.TransferStockInput) ([]model.StockMovement, error) {
	if err := validateTransfer(input); err != nil {
		return nil, err
	}

	now := uc.now()
	transferID := uuid.New().String()
	var movements []model.StockMovement

	err := uc.repo.RunInTx(ctx, func(tx stock.TxRepository) error {
		for _, storeID := range []string{input.SourceStoreID, input.TargetStoreID} {
			product, err := tx.GetProduct(ctx, input.ProductID, storeID)
			if err != nil {
				return apperror.Persistence("load product", err)
			}
			if product == nil {
				return apperror.NotFound("product %s not found in store %s", input.ProductID, storeID)
			}
		}

		// Lock in store id order so opposite transfers cannot deadlock.
		stores := []string{input.SourceStoreID, input.TargetStoreID}
		sort.Strings(stores)
		levels := make(map[string]*model.StockLevel, 2)
		for _, storeID := range stores {
			level, err := tx.LockStockLevel(ctx, input.ProductID, storeID, now)
			if err != nil {
				return apperror.Persistence("lock stock level", err)
			}
			levels[storeID] = level
		}

		source := levels[input.SourceStoreID]
		target := levels[input.TargetStoreID]
		if source.AvailableQuantity() < input.Quantity {
			return apperror.InsufficientStock("insufficient stock for product %s in store %s: available %d, requested %d",
				input.ProductID, input.SourceStoreID, source.AvailableQuantity(), input.Quantity)
		}

		legs := []struct {
			level *model.StockLevel
			delta int
		}{
			{source, -input.Quantity},
			{target, input.Quantity},
		}
		for _, leg := range legs {
			previous := leg.level.Quantity
			leg.level.Quantity += leg.delta
			leg.level.UpdatedAt = now
			if leg.delta > 0 && leg.level.UnitCost.IsZero() {
				leg.level.UnitCost = source.UnitCost
			}
			if err := tx.UpdateStockLevel(ctx, leg.level); err != nil {
				return apperror.Persistence("update stock level", err)
			}

			m := &model.StockMovement{
				ID:               uuid.New().String(),
				ProductID:        input.ProductID,
				StoreID:          leg.level.StoreID,
				Type:             model.MovementTransfer,
				Reason:           input.Reason,
				Notes:            optional(input.Notes),
				Quantity:         leg.delta,
				PreviousQuantity: previous,
				NewQuantity:      leg.level.Quantity,
				UnitCost:         decimal.NewNullDecimal(source.UnitCost),
				TotalCost:        decimal.NewNullDecimal(source.UnitCost.Mul(decimal.NewFromInt(int64(input.Quantity)))),
				ReferenceID:      optional(transferID),
				PerformedBy:      input.UserID,
				CreatedAt:        now,
			}
			if err := uc.record(ctx, tx, m, now); err != nil {
				return err
			}
			movements = append(movements, *m)
		}
		return nil
	})
	if err != nil {
		uc.logFailure("stock transfer rejected", err,
			zap.String("source_store_id", input.SourceStoreID),
			zap.String("target_store_id", input.TargetStoreID),
			zap.String("product_id", input.ProductID),
			zap.Int("quantity", input.Quantity),
		)
		return nil, err
	}

	uc.invalidate(ctx, input.SourceStoreID, input.TargetStoreID)
	uc.logger.Info("stock transferred",
		zap.String("transfer_id", transferID),
		zap.String("product_id", input.ProductID),
		zap.String("source_store_id", input.SourceStoreID),
		zap.String("target_store_id", input.TargetStoreID),
		zap.Int("quantity", input.Quantity),
	)
	return movements, nil
}

// record writes the movement, the denormalized product quantity and the outbox
// event for one applied change.
func (uc *stockUseCase) record(ctx context.Context, tx stock.TxRepository, m *model.StockMovement, now time.Time) error {
	if err := tx.InsertMovement(ctx, m); err != nil {
		return apperror.Persistence("insert stock movement", err)
	}
	if err := tx.SyncProductQuantity(ctx, m.ProductID, m.StoreID, m.NewQuantity, now); err != nil {
		return apperror.Persistence("sync product quantity", err)
	}
	event := &model.StockEvent{
		ID:         uuid.New().String(),
		ProductID:  m.ProductID,
		StoreID:    m.StoreID,
		MovementID: m.ID,
		Quantity:   m.NewQuantity,
		CreatedAt:  now,
	}
	if err := tx.EnqueueEvent(ctx, event); err != nil {
		return apperror.Persistence("enqueue stock event", err)
	}
	return nil
}

func (uc *stockUseCase) ReserveStock(ctx context.Context, productID, storeID string, quantity int) (bool, error) {
	if err := validateReservation(productID, storeID, quantity); err != nil {
		return false, err
	}

	ok, err := uc.repo.Reserve(ctx, productID, storeID, quantity, uc.now())
	if err != nil {
		return false, apperror.Persistence("reserve stock", err)
	}
	if !ok {
		uc.logger.Debug("reservation refused, not enough available stock",
			zap.String("store_id", storeID),
			zap.String("product_id", productID),
			zap.Int("quantity", quantity),
		)
	}
	return ok, nil
}

func (uc *stockUseCase) ReleaseReservedStock(ctx context.Context, productID, storeID string, quantity int) error {
	if err := validateReservation(productID, storeID, quantity); err != nil {
		return err
	}
	if err := uc.repo.Release(ctx, productID, storeID, quantity, uc.now()); err != nil {
		return apperror.Persistence("release reserved stock", err)
	}
	return nil
}

// ReserveOrder holds every line of the order or none of them. The held
// quantities are recorded per order so a later release frees only what the
// order holds. Reserving an order that already holds stock is a no-op.
func (uc *stockUseCase) ReserveOrder(ctx context.Context, input *dto.OrderReservationInput) (bool, error) {
	lines, err := validateOrderReservation(input)
	if err != nil {
		return false, err
	}

	now := uc.now()
	var alreadyHeld bool

	err = uc.repo.RunInTx(ctx, func(tx stock.TxRepository) error {
		alreadyHeld = false
		held, err := tx.GetReservations(ctx, input.OrderID, input.StoreID)
		if err != nil {
			return apperror.Persistence("load order reservations", err)
		}
		if len(held) > 0 {
			alreadyHeld = true
			return nil
		}

		for _, line := range lines {
			ok, err := tx.ReserveQuantity(ctx, line.ProductID, input.StoreID, line.Quantity, now)
			if err != nil {
				return apperror.Persistence("reserve stock", err)
			}
			if !ok {
				return apperror.InsufficientStock("not enough available stock of product %s for order %s",
					line.ProductID, input.OrderID)
			}
			if err := tx.InsertReservation(ctx, &model.Reservation{
				OrderID:   input.OrderID,
				ProductID: line.ProductID,
				StoreID:   input.StoreID,
				Quantity:  line.Quantity,
				CreatedAt: now,
			}); err != nil {
				return apperror.Persistence("record reservation", err)
			}
		}
		return nil
	})
	if errors.Is(err, apperror.ErrInsufficientStock) {
		uc.logger.Info("order reservation refused",
			zap.String("order_id", input.OrderID),
			zap.String("store_id", input.StoreID),
			zap.Error(err),
		)
		return false, nil
	}
	if err != nil {
		uc.logFailure("order reservation failed", err,
			zap.String("order_id", input.OrderID),
			zap.String("store_id", input.StoreID),
		)
		return false, err
	}

	if alreadyHeld {
		uc.logger.Debug("order already holds stock", zap.String("order_id", input.OrderID))
		return true, nil
	}
	uc.logger.Info("order stock reserved",
		zap.String("order_id", input.OrderID),
		zap.String("store_id", input.StoreID),
		zap.Int("lines", len(lines)),
	)
	return true, nil
}

// ReleaseOrder frees whatever the order holds in the store and returns it.
// An order without holds releases nothing.
func (uc *stockUseCase) ReleaseOrder(ctx context.Context, orderID, storeID string) ([]model.Reservation, error) {
	if orderID == "" || storeID == "" {
		return nil, apperror.Validation("orderId and storeId are required")
	}

	now := uc.now()
	var released []model.Reservation

	err := uc.repo.RunInTx(ctx, func(tx stock.TxRepository) error {
		held, err := tx.DeleteReservations(ctx, orderID, storeID)
		if err != nil {
			return apperror.Persistence("delete order reservations", err)
		}
		sort.Slice(held, func(i, j int) bool { return held[i].ProductID < held[j].ProductID })
		for _, r := range held {
			if err := tx.ReleaseQuantity(ctx, r.ProductID, storeID, r.Quantity, now); err != nil {
				return apperror.Persistence("release reserved stock", err)
			}
		}
		released = held
		return nil
	})
	if err != nil {
		uc.logFailure("order release failed", err,
			zap.String("order_id", orderID),
			zap.String("store_id", storeID),
		)
		return nil, err
	}
	if released == nil {
		released = []model.Reservation{}
	}
	if len(released) > 0 {
		uc.logger.Info("order stock released",
			zap.String("order_id", orderID),
			zap.String("store_id", storeID),
			zap.Int("lines", len(released)),
		)
	}
	return released, nil
}

func (uc *stockUseCase) GetStockLevel(ctx context.Context, productID, storeID, locationID string) (*model.StockLevel, error) {
	if productID == "" || storeID == "" {
		return nil, apperror.Validation("productId and storeId are required")
	}
	level, err := uc.repo.GetStockLevel(ctx, productID, storeID, locationID)
	if err != nil {
		return nil, apperror.Persistence("get stock level", err)
	}
	return level, nil
}

func (uc *stockUseCase) GetStockLevels(ctx context.Context, filters *dto.StockLevelFilters) ([]model.StockLevel, error) {
	if filters.StoreID == "" {
		return nil, apperror.Validation("storeId is required")
	}
	levels, err := uc.repo.FindAll(ctx, filters)
	if err != nil {
		return nil, apperror.Persistence("list stock levels", err)
	}
	return levels, nil
}

func (uc *stockUseCase) GetLowStockProducts(ctx context.Context, storeID string) ([]model.StockLevel, error) {
	if storeID == "" {
		return nil, apperror.Validation("storeId is required")
	}

	key := lowStockKey(storeID)
	var cached []model.StockLevel
	if uc.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	levels, err := uc.repo.FindLowStock(ctx, storeID)
	if err != nil {
		return nil, apperror.Persistence("list low stock", err)
	}
	uc.toCache(ctx, key, levels, lowStockCacheTTL)
	return levels, nil
}

func (uc *stockUseCase) GetStockMovements(ctx context.Context, filters *dto.MovementFilters) (*dto.MovementPage, error) {
	if filters.StoreID == "" {
		return nil, apperror.Validation("storeId is required")
	}
	filters.Normalize()

	movements, total, err := uc.repo.ListMovements(ctx, filters)
	if err != nil {
		return nil, apperror.Persistence("list stock movements", err)
	}
	if movements == nil {
		movements = []model.StockMovement{}
	}
	return &dto.MovementPage{Movements: movements, Total: total}, nil
}

func (uc *stockUseCase) GetInventoryValue(ctx context.Context, storeID string) (decimal.Decimal, error) {
	if storeID == "" {
		return decimal.Zero, apperror.Validation("storeId is required")
	}

	key := valueKey(storeID)
	var cached decimal.Decimal
	if uc.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	value, err := uc.repo.InventoryValue(ctx, storeID)
	if err != nil {
		return decimal.Zero, apperror.Persistence("inventory value", err)
	}
	uc.toCache(ctx, key, value, valueCacheTTL)
	return value, nil
}

func (uc *stockUseCase) fromCache(ctx context.Context, key string, dest interface{}) bool {
	if uc.cache == nil {
		return false
	}
	err := uc.cache.GetJSON(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		uc.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (uc *stockUseCase) toCache(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.SetJSON(ctx, key, value, ttl); err != nil {
		uc.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate drops the aggregates of the given stores. A failure leaves stale
// entries that expire with their TTL.
func (uc *stockUseCase) invalidate(ctx context.Context, storeIDs ...string) {
	if uc.cache == nil {
		return
	}
	keys := make([]string, 0, 2*len(storeIDs))
	for _, id := range storeIDs {
		keys = append(keys, lowStockKey(id), valueKey(id))
	}
	if err := uc.cache.Delete(ctx, keys...); err != nil {
		uc.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (uc *stockUseCase) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, apperror.ErrPersistence) {
		uc.logger.Error(msg, fields...)
		return
	}
	uc.logger.Warn(msg, fields...)
}

func validateAdjust(in *dto.AdjustStockInput) error {
	if in.ProductID == "" || in.StoreID == "" {
		return apperror.Validation("productId and storeId are required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return apperror.Validation("reason is required")
	}
	switch in.Type {
	case model.MovementIn, model.MovementOut, model.MovementReturn, model.MovementDamaged, model.MovementExpired:
		if in.Quantity <= 0 {
			return apperror.Validation("quantity must be positive for %s movements", in.Type)
		}
	case model.MovementAdjustment:
		if in.Quantity < 0 {
			return apperror.Validation("adjustment target quantity cannot be negative")
		}
	default:
		return apperror.Validation("unsupported adjustment type %q", in.Type)
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return apperror.Validation("unitCost cannot be negative")
	}
	return nil
}

func validateTransfer(in *dto.TransferStockInput) error {
	if in.ProductID == "" || in.SourceStoreID == "" || in.TargetStoreID == "" {
		return apperror.Validation("productId, source and target store are required")
	}
	if in.SourceStoreID == in.TargetStoreID {
		return apperror.Validation("source and target store must differ")
	}
	if in.Quantity <= 0 {
		return apperror.Validation("quantity must be positive")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return apperror.Validation("reason is required")
	}
	return nil
}

func validateReservation(productID, storeID string, quantity int) error {
	if productID == "" || storeID == "" {
		return apperror.Validation("productId and storeId are required")
	}
	if quantity <= 0 {
		return apperror.Validation("quantity must be positive")
	}
	return nil
}

// validateOrderReservation merges repeated products and orders the lines by
// product id, which is the order rows are locked in.
func validateOrderReservation(in *dto.OrderReservationInput) ([]dto.ReservationLine, error) {
	if in.OrderID == "" || in.StoreID == "" {
		return nil, apperror.Validation("orderId and storeId are required")
	}
	if len(in.Lines) == 0 {
		return nil, apperror.Validation("order has no lines")
	}

	totals := make(map[string]int, len(in.Lines))
	for _, line := range in.Lines {
		if line.ProductID == "" {
			return nil, apperror.Validation("productId is required")
		}
		if line.Quantity <= 0 {
			return nil, apperror.Validation("quantity must be positive")
		}
		totals[line.ProductID] += line.Quantity
	}

	lines := make([]dto.ReservationLine, 0, len(totals))
	for productID, qty := range totals {
		lines = append(lines, dto.ReservationLine{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func lowStockKey(storeID string) string { return fmt.Sprintf("stock:low:%s", storeID) }
func valueKey(storeID string) string    { return fmt.Sprintf("stock:value:%s", storeID) }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
