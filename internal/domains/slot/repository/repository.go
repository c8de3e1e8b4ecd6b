package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/infras/postgres"
	"github.com/Dis3z/reserve-api/internal/domains/slot/model"
	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/logger"
)

const (
	selectColumns = `id, venue_id, date, start_time, end_time, capacity, remaining_capacity,
		status, duration_minutes, price, currency, held_until, metadata, created_at, updated_at`
)

type Slot interface {
	Get(ctx context.Context, id string) (model.Slot, bool, error)
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (model.Slot, bool, error)
	UpdateTx(ctx context.Context, tx *sqlx.Tx, slot model.Slot) error
	ListAvailable(ctx context.Context, venueID string, date, now time.Time) ([]model.Slot, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Slot, error)
}

type repositoryImpl struct {
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Slot {
	return &repositoryImpl{
		db:   db,
		otel: otel,
	}
}

func (repo *repositoryImpl) Get(ctx context.Context, id string) (model.Slot, bool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".Get")
	defer scope.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var slot model.Slot

	err := repo.db.Read.GetContext(ctx, &slot, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return slot, false, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return slot, false, fmt.Errorf("failed to get data (%s): %w", model.EntityName, err)
	}

	return slot, true, nil
}

// GetForUpdateTx reads the slot under a row-level exclusive lock. The row
// stays locked until the transaction ends.
func (repo *repositoryImpl) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (model.Slot, bool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".GetForUpdateTx")
	defer scope.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 FOR UPDATE", selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var slot model.Slot

	err := tx.GetContext(ctx, &slot, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return slot, false, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return slot, false, fmt.Errorf("failed to get data for update (%s): %w", model.EntityName, err)
	}

	return slot, true, nil
}

func (repo *repositoryImpl) UpdateTx(ctx context.Context, tx *sqlx.Tx, slot model.Slot) error {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".UpdateTx")
	defer scope.End()

	query := fmt.Sprintf(`UPDATE %s
		SET remaining_capacity = :remaining_capacity,
			status = :status,
			held_until = :held_until,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE id = :id`, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	if _, err := tx.NamedExecContext(ctx, query, slot); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return fmt.Errorf("failed to update data (%s): %w", model.EntityName, err)
	}

	return nil
}

// ListAvailable returns the bookable slots of a venue on a date, soonest
// first. This is the storage fallback behind the availability cache.
func (repo *repositoryImpl) ListAvailable(ctx context.Context, venueID string, date, now time.Time) ([]model.Slot, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".ListAvailable")
	defer scope.End()

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE venue_id = $1
			AND date = $2
			AND status = $3
			AND remaining_capacity > 0
			AND start_time > $4
		ORDER BY start_time ASC`, selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	slots := []model.Slot{}

	err := repo.db.Read.SelectContext(ctx, &slots, query, venueID, date, model.StatusAvailable, now)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return nil, fmt.Errorf("failed to list available data (%s): %w", model.EntityName, err)
	}

	return slots, nil
}

// ListExpiredHolds returns HELD slots whose hold lapsed before now.
func (repo *repositoryImpl) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Slot, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".ListExpiredHolds")
	defer scope.End()

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE status = $1 AND held_until < $2
		ORDER BY held_until ASC
		LIMIT $3`, selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	slots := []model.Slot{}

	err := repo.db.Read.SelectContext(ctx, &slots, query, model.StatusHeld, now, limit)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return nil, fmt.Errorf("failed to list expired holds (%s): %w", model.EntityName, err)
	}

	return slots, nil
}
