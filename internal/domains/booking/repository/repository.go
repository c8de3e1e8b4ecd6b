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
	"github.com/Dis3z/reserve-api/internal/domains/booking/model"
	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/logger"
)

const (
	selectColumns = `id, user_id, slot_id, venue_id, confirmation_code, status, guest_count, notes,
		booking_date, cancelled_at, cancellation_reason, confirmed_at, completed_at, total_price,
		metadata, created_at, updated_at`

	insertQuery = `INSERT INTO bookings (id, user_id, slot_id, venue_id, confirmation_code, status, guest_count, notes,
		booking_date, cancelled_at, cancellation_reason, confirmed_at, completed_at, total_price,
		metadata, created_at, updated_at)
	VALUES (:id, :user_id, :slot_id, :venue_id, :confirmation_code, :status, :guest_count, :notes,
		:booking_date, :cancelled_at, :cancellation_reason, :confirmed_at, :completed_at, :total_price,
		:metadata, :created_at, :updated_at)`
)

type Booking interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, booking model.Booking) error
	Get(ctx context.Context, id string) (model.Booking, bool, error)
	CountConfirmedByUserTx(ctx context.Context, tx *sqlx.Tx, userID string) (int, error)
	ExistConfirmedTx(ctx context.Context, tx *sqlx.Tx, userID, slotID string) (bool, error)
	MarkCancelledTx(ctx context.Context, tx *sqlx.Tx, id, fromStatus, reason string, cancelledAt time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
}

type repositoryImpl struct {
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Booking {
	return &repositoryImpl{
		db:   db,
		otel: otel,
	}
}

func (repo *repositoryImpl) InsertTx(ctx context.Context, tx *sqlx.Tx, booking model.Booking) error {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".InsertTx")
	defer scope.End()

	query := insertQuery
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	if _, err := tx.NamedExecContext(ctx, query, booking); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return fmt.Errorf("failed to insert data (%s): %w", model.EntityName, err)
	}

	return nil
}

func (repo *repositoryImpl) Get(ctx context.Context, id string) (model.Booking, bool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".Get")
	defer scope.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var booking model.Booking

	err := repo.db.Read.GetContext(ctx, &booking, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return booking, false, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return booking, false, fmt.Errorf("failed to get data (%s): %w", model.EntityName, err)
	}

	return booking, true, nil
}

// CountConfirmedByUserTx counts the user's live bookings inside the
// transaction, so the per-user cap is enforced against committed truth.
func (repo *repositoryImpl) CountConfirmedByUserTx(ctx context.Context, tx *sqlx.Tx, userID string) (int, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".CountConfirmedByUserTx")
	defer scope.End()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = $1 AND status = $2", model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	count := 0

	if err := tx.GetContext(ctx, &count, query, userID, model.StatusConfirmed); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return 0, fmt.Errorf("failed to count data (%s): %w", model.EntityName, err)
	}

	return count, nil
}

func (repo *repositoryImpl) ExistConfirmedTx(ctx context.Context, tx *sqlx.Tx, userID, slotID string) (bool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".ExistConfirmedTx")
	defer scope.End()

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE user_id = $1 AND slot_id = $2 AND status = $3)", model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	exist := false

	if err := tx.GetContext(ctx, &exist, query, userID, slotID, model.StatusConfirmed); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return false, fmt.Errorf("failed to check exist data (%s): %w", model.EntityName, err)
	}

	return exist, nil
}

// MarkCancelledTx flips the booking to CANCELLED, guarded on the status it
// was loaded with. A false return means a concurrent writer got there first.
func (repo *repositoryImpl) MarkCancelledTx(ctx context.Context, tx *sqlx.Tx, id, fromStatus, reason string, cancelledAt time.Time) (bool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".MarkCancelledTx")
	defer scope.End()

	query := fmt.Sprintf(`UPDATE %s
		SET status = $1, cancelled_at = $2, cancellation_reason = $3, updated_at = $2
		WHERE id = $4 AND status = $5`, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var reasonValue *string
	if reason != constant.Empty {
		reasonValue = &reason
	}

	result, err := tx.ExecContext(ctx, query, model.StatusCancelled, cancelledAt, reasonValue, id, fromStatus)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return false, fmt.Errorf("failed to update data (%s): %w", model.EntityName, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return false, fmt.Errorf("failed to read affected rows (%s): %w", model.EntityName, err)
	}

	return affected > 0, nil
}

func (repo *repositoryImpl) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+"."+model.EntityName+".ListByUser")
	defer scope.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = $1 ORDER BY created_at DESC", selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	bookings := []model.Booking{}

	if err := repo.db.Read.SelectContext(ctx, &bookings, query, userID); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return nil, fmt.Errorf("failed to list data (%s): %w", model.EntityName, err)
	}

	return bookings, nil
}
