package postgres

//go:generate go run go.uber.org/mock/mockgen -source=./tx.go -destination=./mocks/tx_mock.go -package=mocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/shared/constant"
)

// TxRunner runs a function inside a database transaction. The function
// receives the transaction handle and must route every statement through it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	InSerializableTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type txRunnerImpl struct {
	db *Connection
}

func NewTxRunner(db *Connection) TxRunner {
	return &txRunnerImpl{db: db}
}

func (r *txRunnerImpl) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return r.run(ctx, &sql.TxOptions{}, fn)
}

func (r *txRunnerImpl) InSerializableTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return r.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

func (r *txRunnerImpl) run(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.Write.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Msg("failed to roll back transaction")
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// IsSerializationFailure reports whether err is a serialization conflict or
// deadlock the engine raised to keep concurrent transactions serializable.
// Such attempts are safe to retry.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)

		return code == constant.PqErrorCodeSerializationFailure || code == constant.PqErrorCodeDeadlockDetected
	}

	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == constant.PqErrorCodeUniqueViolation
	}

	return false
}
