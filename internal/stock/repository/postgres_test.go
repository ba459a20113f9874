package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/cloudpos/inventory-service/internal/stock/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var levelColumns = []string{"product_id", "store_id", "location_id", "quantity", "reserved_quantity", "unit_cost", "updated_at"}

func setupMockDB(t *testing.T) (*repository.PGRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewPGRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestReserve_Applied(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`SET reserved_quantity = reserved_quantity + $1, updated_at = $2`)).
		WithArgs(3, now, "prod-1", "store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Reserve(context.Background(), "prod-1", "store-1", 3, now)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_NotEnoughAvailable(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`AND quantity - reserved_quantity >= $1`)).
		WithArgs(3, now, "prod-1", "store-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Reserve(context.Background(), "prod-1", "store-1", 3, now)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRelease_FloorsAtZero(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`SET reserved_quantity = GREATEST(0, reserved_quantity - $1)`)).
		WithArgs(10, now, "prod-1", "store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Release(context.Background(), "prod-1", "store-1", 10, now)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStockLevel_NotFound(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM stock_levels sl`)).
		WithArgs("prod-1", "store-1", "").
		WillReturnRows(sqlmock.NewRows(levelColumns))

	level, err := repo.GetStockLevel(context.Background(), "prod-1", "store-1", "")
	assert.NoError(t, err)
	assert.Nil(t, level)
}

func TestGetStockLevel_Found(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM stock_levels sl`)).
		WithArgs("prod-1", "store-1", "").
		WillReturnRows(sqlmock.NewRows(levelColumns).AddRow("prod-1", "store-1", "", 12, 4, "2.50", now))

	level, err := repo.GetStockLevel(context.Background(), "prod-1", "store-1", "")
	require.NoError(t, err)
	require.NotNil(t, level)
	assert.Equal(t, 8, level.AvailableQuantity())
	assert.True(t, decimal.RequireFromString("30").Equal(level.TotalValue()))
}

func TestInventoryValue(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(sl.quantity * sl.unit_cost), 0)`)).
		WithArgs("store-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("1234.56"))

	v, err := repo.InventoryValue(context.Background(), "store-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(v))
}

func TestListMovements_FiltersAndPaging(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM stock_movements WHERE store_id = $1 AND product_id = $2 AND type = $3`)).
		WithArgs("store-1", "prod-1", "out").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	cols := []string{"id", "product_id", "store_id", "location_id", "type", "reason", "notes",
		"quantity", "previous_quantity", "new_quantity", "unit_cost", "total_cost",
		"reference_id", "performed_by", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id LIMIT $4 OFFSET $5`)).
		WithArgs("store-1", "prod-1", "out", 2, 4).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m-1", "prod-1", "store-1", "", "out", "sale", nil, -2, 5, 3, nil, nil, "order-9", "system", now))

	movements, total, err := repo.ListMovements(context.Background(), &dto.MovementFilters{
		StoreID: "store-1", ProductID: "prod-1", Type: model.MovementOut, Limit: 2, Offset: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, movements, 1)
	assert.Equal(t, -2, movements[0].Quantity)
	assert.False(t, movements[0].UnitCost.Valid)
	require.NotNil(t, movements[0].ReferenceID)
	assert.Equal(t, "order-9", *movements[0].ReferenceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_AdjustSequenceCommits(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = $1 AND store_id = $2`)).
		WithArgs("prod-1", "store-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "store_id", "sku", "name", "min_stock_level", "reorder_point",
			"track_stock", "is_active", "stock_quantity", "updated_at"}).
			AddRow("prod-1", "store-1", "SKU-1", "Cola", 10, 5, true, true, 3, now))
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (product_id, store_id, location_id) DO NOTHING`)).
		WithArgs("prod-1", "store-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("prod-1", "store-1").
		WillReturnRows(sqlmock.NewRows(levelColumns).AddRow("prod-1", "store-1", "", 3, 0, "1.00", now))
	mock.ExpectExec(regexp.QuoteMeta(`SET quantity = $1, unit_cost = $2, updated_at = $3`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO stock_movements`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock_quantity = $1`)).
		WithArgs(8, now, "prod-1", "store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO stock_events`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RunInTx(context.Background(), func(tx stock.TxRepository) error {
		p, err := tx.GetProduct(context.Background(), "prod-1", "store-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "Cola", p.Name)

		level, err := tx.LockStockLevel(context.Background(), "prod-1", "store-1", now)
		if err != nil {
			return err
		}
		level.Quantity = 8
		if err := tx.UpdateStockLevel(context.Background(), level); err != nil {
			return err
		}
		if err := tx.InsertMovement(context.Background(), &model.StockMovement{
			ID: "m-1", ProductID: "prod-1", StoreID: "store-1", Type: model.MovementIn,
			Reason: "delivery", Quantity: 5, PreviousQuantity: 3, NewQuantity: 8, PerformedBy: "u", CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.SyncProductQuantity(context.Background(), "prod-1", "store-1", 8, now); err != nil {
			return err
		}
		return tx.EnqueueEvent(context.Background(), &model.StockEvent{
			ID: "e-1", ProductID: "prod-1", StoreID: "store-1", MovementID: "m-1", Quantity: 8, CreatedAt: now,
		})
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO stock_movements`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(tx stock.TxRepository) error {
		return tx.InsertMovement(context.Background(), &model.StockMovement{ID: "m-1"})
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrPersistence))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_KeepsDomainErrors(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(tx stock.TxRepository) error {
		return apperror.InsufficientStock("not enough")
	})
	assert.True(t, errors.Is(err, apperror.ErrInsufficientStock))
	assert.False(t, errors.Is(err, apperror.ErrPersistence))
}

func TestOrderReservationStatements(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	resColumns := []string{"order_id", "product_id", "store_id", "quantity", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM stock_reservations`)).
		WithArgs("order-1", "store-1").
		WillReturnRows(sqlmock.NewRows(resColumns))
	mock.ExpectExec(regexp.QuoteMeta(`AND quantity - reserved_quantity >= $1`)).
		WithArgs(2, now, "prod-1", "store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO stock_reservations`)).
		WithArgs("order-1", "prod-1", "store-1", 2, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RunInTx(context.Background(), func(tx stock.TxRepository) error {
		held, err := tx.GetReservations(context.Background(), "order-1", "store-1")
		require.NoError(t, err)
		assert.Empty(t, held)

		ok, err := tx.ReserveQuantity(context.Background(), "prod-1", "store-1", 2, now)
		require.NoError(t, err)
		assert.True(t, ok)

		return tx.InsertReservation(context.Background(), &model.Reservation{
			OrderID: "order-1", ProductID: "prod-1", StoreID: "store-1", Quantity: 2, CreatedAt: now,
		})
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReservations_ReleasesHeldQuantity(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM stock_reservations`)).
		WithArgs("order-1", "store-1").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_id", "store_id", "quantity", "created_at"}).
			AddRow("order-1", "prod-1", "store-1", 4, now))
	mock.ExpectExec(regexp.QuoteMeta(`SET reserved_quantity = GREATEST(0, reserved_quantity - $1)`)).
		WithArgs(4, now, "prod-1", "store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RunInTx(context.Background(), func(tx stock.TxRepository) error {
		held, err := tx.DeleteReservations(context.Background(), "order-1", "store-1")
		require.NoError(t, err)
		require.Len(t, held, 1)
		return tx.ReleaseQuantity(context.Background(), held[0].ProductID, "store-1", held[0].Quantity, now)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLowStock_TrackedAtOrBelowMinimum(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(`AND p\.track_stock\s+AND sl\.quantity <= p\.min_stock_level`).
		WithArgs("store-1").
		WillReturnRows(sqlmock.NewRows(append(levelColumns, "product_name", "min_stock_level", "reorder_point")).
			AddRow("prod-1", "store-1", "", 1, 0, "2.00", time.Now(), "Cola", 5, 2))

	levels, err := repo.FindLowStock(context.Background(), "store-1")
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, 5, levels[0].MinStockLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}
