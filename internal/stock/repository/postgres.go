package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/cloudpos/inventory-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const stockLevelColumns = `sl.product_id, sl.store_id, sl.location_id, sl.quantity, sl.reserved_quantity, sl.unit_cost, sl.updated_at`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) RunInTx(ctx context.Context, fn func(tx stock.TxRepository) error) error {
	err := postgres.RunInTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		return fn(&txRepository{tx: tx})
	})
	return apperror.Persistence("stock transaction", err)
}

func (r *PGRepository) GetStockLevel(ctx context.Context, productID, storeID, locationID string) (*model.StockLevel, error) {
	var level model.StockLevel
	query := `SELECT ` + stockLevelColumns + ` FROM stock_levels sl
        WHERE sl.product_id = $1 AND sl.store_id = $2 AND sl.location_id = $3`

	err := r.DB.GetContext(ctx, &level, query, productID, storeID, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &level, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.StockLevelFilters) ([]model.StockLevel, error) {
	query := `SELECT ` + stockLevelColumns + `, p.name AS product_name, p.min_stock_level, p.reorder_point
        FROM stock_levels sl
        JOIN products p ON p.id = sl.product_id AND p.store_id = sl.store_id
        WHERE sl.store_id = $1`
	args := []interface{}{f.StoreID}

	if f.LocationID != nil {
		query += ` AND sl.location_id = $2`
		args = append(args, *f.LocationID)
	}
	query += ` ORDER BY p.name, sl.location_id`

	levels := []model.StockLevel{}
	err := r.DB.SelectContext(ctx, &levels, query, args...)
	return levels, err
}

func (r *PGRepository) FindLowStock(ctx context.Context, storeID string) ([]model.StockLevel, error) {
	query := `SELECT ` + stockLevelColumns + `, p.name AS product_name, p.min_stock_level, p.reorder_point
        FROM stock_levels sl
        JOIN products p ON p.id = sl.product_id AND p.store_id = sl.store_id
        WHERE sl.store_id = $1 AND sl.location_id = ''
          AND p.track_stock
          AND sl.quantity <= p.min_stock_level
        ORDER BY (p.min_stock_level - sl.quantity) DESC, p.name`

	levels := []model.StockLevel{}
	err := r.DB.SelectContext(ctx, &levels, query, storeID)
	return levels, err
}

func (r *PGRepository) InventoryValue(ctx context.Context, storeID string) (decimal.Decimal, error) {
	var value decimal.Decimal
	query := `SELECT COALESCE(SUM(sl.quantity * sl.unit_cost), 0)
        FROM stock_levels sl
        JOIN products p ON p.id = sl.product_id AND p.store_id = sl.store_id
        WHERE sl.store_id = $1 AND p.is_active`

	err := r.DB.GetContext(ctx, &value, query, storeID)
	return value, err
}

// Reserve increments reserved_quantity only while enough stock is available.
// The availability check and the increment are one statement, so concurrent
// reservations on the row serialize on its write lock.
func (r *PGRepository) Reserve(ctx context.Context, productID, storeID string, quantity int, now time.Time) (bool, error) {
	return reserve(ctx, r.DB, productID, storeID, quantity, now)
}

func (r *PGRepository) Release(ctx context.Context, productID, storeID string, quantity int, now time.Time) error {
	return release(ctx, r.DB, productID, storeID, quantity, now)
}

func reserve(ctx context.Context, db sqlx.ExecerContext, productID, storeID string, quantity int, now time.Time) (bool, error) {
	query := `UPDATE stock_levels
        SET reserved_quantity = reserved_quantity + $1, updated_at = $2
        WHERE product_id = $3 AND store_id = $4 AND location_id = ''
          AND quantity - reserved_quantity >= $1`

	res, err := db.ExecContext(ctx, query, quantity, now, productID, storeID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func release(ctx context.Context, db sqlx.ExecerContext, productID, storeID string, quantity int, now time.Time) error {
	query := `UPDATE stock_levels
        SET reserved_quantity = GREATEST(0, reserved_quantity - $1), updated_at = $2
        WHERE product_id = $3 AND store_id = $4 AND location_id = ''`

	_, err := db.ExecContext(ctx, query, quantity, now, productID, storeID)
	return err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	conditions := []string{"store_id = :store_id"}
	args := map[string]interface{}{"store_id": f.StoreID}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.Type != "" {
		conditions = append(conditions, "type = :type")
		args["type"] = string(f.Type)
	}
	whereClause := " WHERE " + strings.Join(conditions, " AND ")

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM stock_movements"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := r.DB.GetContext(ctx, &count, r.DB.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	args["limit"] = f.Limit
	args["offset"] = f.Offset
	query, queryArgs, err := sqlx.Named(`SELECT id, product_id, store_id, location_id, type, reason, notes,
            quantity, previous_quantity, new_quantity, unit_cost, total_cost,
            reference_id, performed_by, created_at
        FROM stock_movements`+whereClause+` ORDER BY created_at DESC, id LIMIT :limit OFFSET :offset`, args)
	if err != nil {
		return nil, 0, err
	}

	movements := []model.StockMovement{}
	err = r.DB.SelectContext(ctx, &movements, r.DB.Rebind(query), queryArgs...)
	return movements, count, err
}

type txRepository struct {
	tx *sqlx.Tx
}

func (t *txRepository) GetProduct(ctx context.Context, productID, storeID string) (*model.Product, error) {
	var p model.Product
	query := `SELECT id, store_id, sku, name, min_stock_level, reorder_point, track_stock, is_active, stock_quantity, updated_at
        FROM products WHERE id = $1 AND store_id = $2`

	err := t.tx.GetContext(ctx, &p, query, productID, storeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (t *txRepository) LockStockLevel(ctx context.Context, productID, storeID string, now time.Time) (*model.StockLevel, error) {
	insert := `INSERT INTO stock_levels (product_id, store_id, location_id, quantity, reserved_quantity, unit_cost, updated_at)
        VALUES ($1, $2, '', 0, 0, 0, $3)
        ON CONFLICT (product_id, store_id, location_id) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, insert, productID, storeID, now); err != nil {
		return nil, err
	}

	var level model.StockLevel
	query := `SELECT ` + stockLevelColumns + ` FROM stock_levels sl
        WHERE sl.product_id = $1 AND sl.store_id = $2 AND sl.location_id = ''
        FOR UPDATE`
	if err := t.tx.GetContext(ctx, &level, query, productID, storeID); err != nil {
		return nil, err
	}
	return &level, nil
}

func (t *txRepository) UpdateStockLevel(ctx context.Context, level *model.StockLevel) error {
	query := `UPDATE stock_levels
        SET quantity = :quantity, unit_cost = :unit_cost, updated_at = :updated_at
        WHERE product_id = :product_id AND store_id = :store_id AND location_id = :location_id`
	_, err := t.tx.NamedExecContext(ctx, query, level)
	return err
}

func (t *txRepository) InsertMovement(ctx context.Context, m *model.StockMovement) error {
	query := `
        INSERT INTO stock_movements (
            id, product_id, store_id, location_id, type, reason, notes,
            quantity, previous_quantity, new_quantity, unit_cost, total_cost,
            reference_id, performed_by, created_at
        )
        VALUES (
            :id, :product_id, :store_id, :location_id, :type, :reason, :notes,
            :quantity, :previous_quantity, :new_quantity, :unit_cost, :total_cost,
            :reference_id, :performed_by, :created_at
        )
    `
	_, err := t.tx.NamedExecContext(ctx, query, m)
	return err
}

func (t *txRepository) SyncProductQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) error {
	query := `UPDATE products SET stock_quantity = $1, updated_at = $2 WHERE id = $3 AND store_id = $4`
	_, err := t.tx.ExecContext(ctx, query, quantity, now, productID, storeID)
	return err
}

func (t *txRepository) EnqueueEvent(ctx context.Context, e *model.StockEvent) error {
	query := `
        INSERT INTO stock_events (id, product_id, store_id, movement_id, quantity, created_at)
        VALUES (:id, :product_id, :store_id, :movement_id, :quantity, :created_at)
    `
	_, err := t.tx.NamedExecContext(ctx, query, e)
	return err
}

func (t *txRepository) GetReservations(ctx context.Context, orderID, storeID string) ([]model.Reservation, error) {
	query := `SELECT order_id, product_id, store_id, quantity, created_at
        FROM stock_reservations
        WHERE order_id = $1 AND store_id = $2
        ORDER BY product_id`

	reservations := []model.Reservation{}
	err := t.tx.SelectContext(ctx, &reservations, query, orderID, storeID)
	return reservations, err
}

func (t *txRepository) ReserveQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) (bool, error) {
	return reserve(ctx, t.tx, productID, storeID, quantity, now)
}

func (t *txRepository) ReleaseQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) error {
	return release(ctx, t.tx, productID, storeID, quantity, now)
}

func (t *txRepository) InsertReservation(ctx context.Context, res *model.Reservation) error {
	query := `
        INSERT INTO stock_reservations (order_id, product_id, store_id, quantity, created_at)
        VALUES (:order_id, :product_id, :store_id, :quantity, :created_at)
    `
	_, err := t.tx.NamedExecContext(ctx, query, res)
	return err
}

func (t *txRepository) DeleteReservations(ctx context.Context, orderID, storeID string) ([]model.Reservation, error) {
	query := `DELETE FROM stock_reservations
        WHERE order_id = $1 AND store_id = $2
        RETURNING order_id, product_id, store_id, quantity, created_at`

	reservations := []model.Reservation{}
	err := t.tx.SelectContext(ctx, &reservations, query, orderID, storeID)
	return reservations, err
}
