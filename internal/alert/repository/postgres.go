package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cloudpos/inventory-service/internal/alert"
	"github.com/cloudpos/inventory-service/internal/alert/dto"
	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
)

const alertColumns = `id, product_id, store_id, type, severity, current_quantity, threshold, message, status,
            acknowledged_by, created_at, updated_at, acknowledged_at, resolved_at`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) RunInTx(ctx context.Context, fn func(tx alert.TxRepository) error) error {
	err := postgres.RunInTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		return fn(&txRepository{tx: tx})
	})
	return apperror.Persistence("alert transaction", err)
}

func (r *PGRepository) Acknowledge(ctx context.Context, alertID, storeID, userID string, now time.Time) (bool, error) {
	query := `UPDATE inventory_alerts
        SET status = 'acknowledged', acknowledged_by = $1, acknowledged_at = $2, updated_at = $2
        WHERE id = $3 AND store_id = $4 AND status = 'active'`

	res, err := r.DB.ExecContext(ctx, query, userID, now, alertID, storeID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRepository) List(ctx context.Context, f *dto.AlertFilters) ([]model.InventoryAlert, int, error) {
	conditions := []string{"store_id = :store_id"}
	args := map[string]interface{}{"store_id": f.StoreID}

	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = string(f.Status)
	}
	if f.Type != "" {
		conditions = append(conditions, "type = :type")
		args["type"] = string(f.Type)
	}
	whereClause := " WHERE " + strings.Join(conditions, " AND ")

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM inventory_alerts"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := r.DB.GetContext(ctx, &count, r.DB.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	args["limit"] = f.Limit
	args["offset"] = f.Offset
	query, queryArgs, err := sqlx.Named(`SELECT `+alertColumns+` FROM inventory_alerts`+whereClause+
		` ORDER BY created_at DESC, id LIMIT :limit OFFSET :offset`, args)
	if err != nil {
		return nil, 0, err
	}

	alerts := []model.InventoryAlert{}
	err = r.DB.SelectContext(ctx, &alerts, r.DB.Rebind(query), queryArgs...)
	return alerts, count, err
}

type txRepository struct {
	tx *sqlx.Tx
}

func (t *txRepository) GetSnapshot(ctx context.Context, productID, storeID string) (*model.StockSnapshot, error) {
	var snap model.StockSnapshot
	query := `SELECT p.id AS product_id, p.store_id, p.name AS product_name,
            COALESCE(sl.quantity, 0) AS quantity, p.min_stock_level, p.reorder_point, p.track_stock
        FROM products p
        LEFT JOIN stock_levels sl ON sl.product_id = p.id AND sl.store_id = p.store_id AND sl.location_id = ''
        WHERE p.id = $1 AND p.store_id = $2
        FOR UPDATE OF p`

	err := t.tx.GetContext(ctx, &snap, query, productID, storeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (t *txRepository) GetOpenAlert(ctx context.Context, productID, storeID string) (*model.InventoryAlert, error) {
	var a model.InventoryAlert
	query := `SELECT ` + alertColumns + ` FROM inventory_alerts
        WHERE product_id = $1 AND store_id = $2 AND status IN ('active', 'acknowledged')`

	err := t.tx.GetContext(ctx, &a, query, productID, storeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (t *txRepository) CreateAlert(ctx context.Context, a *model.InventoryAlert) error {
	query := `
        INSERT INTO inventory_alerts (
            id, product_id, store_id, type, severity, current_quantity, threshold, message, status,
            created_at, updated_at
        )
        VALUES (
            :id, :product_id, :store_id, :type, :severity, :current_quantity, :threshold, :message, :status,
            :created_at, :updated_at
        )
    `
	_, err := t.tx.NamedExecContext(ctx, query, a)
	return err
}

func (t *txRepository) UpdateAlert(ctx context.Context, a *model.InventoryAlert) error {
	query := `UPDATE inventory_alerts
        SET type = :type, severity = :severity, current_quantity = :current_quantity, threshold = :threshold,
            message = :message, status = :status, updated_at = :updated_at, resolved_at = :resolved_at
        WHERE id = :id`
	_, err := t.tx.NamedExecContext(ctx, query, a)
	return err
}
