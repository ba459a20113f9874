package repository

import (
	"context"
	"time"

	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) ProcessPending(ctx context.Context, limit int, fn func(events []model.StockEvent) error) (int, error) {
	var processed int
	err := postgres.RunInTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		query := `SELECT id, seq, product_id, store_id, movement_id, quantity, created_at, published_at
            FROM stock_events
            WHERE published_at IS NULL
            ORDER BY seq
            LIMIT $1
            FOR UPDATE SKIP LOCKED`

		events := []model.StockEvent{}
		if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
			return apperror.Persistence("claim stock events", err)
		}
		if len(events) == 0 {
			return nil
		}

		if err := fn(events); err != nil {
			return err
		}

		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		update := `UPDATE stock_events SET published_at = $1 WHERE id = ANY($2)`
		if _, err := tx.ExecContext(ctx, update, time.Now().UTC(), pq.Array(ids)); err != nil {
			return apperror.Persistence("mark stock events published", err)
		}
		processed = len(events)
		return nil
	})
	if err != nil {
		return 0, apperror.Persistence("outbox transaction", err)
	}
	return processed, nil
}
