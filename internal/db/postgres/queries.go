// Package postgres - вспомогательные функции для работы с БД.
// queries.go содержит общие утилиты для выполнения запросов и транзакций.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Querier: общее подмножество *pgxpool.Pool и pgx.Tx.
// Репозитории принимают его, чтобы один и тот же запрос
// работал и вне транзакции, и внутри неё.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// codeSerializationFailure: SQLSTATE конфликта сериализации.
const codeSerializationFailure = "40001"

// ExecMigrationSQL выполняет один SQL-запрос миграции в транзакции.
// Если запрос упадёт - транзакция откатится автоматически.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	return tx.Commit(ctx)
}

// IsSerializationFailure сообщает, что транзакцию можно безопасно повторить.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeSerializationFailure
}

// InSerializableTx выполняет fn в транзакции SERIALIZABLE.
//
// Конкурирующие писатели (майнинг, штрафы, покупки, сбросы) упорядочиваются
// самой базой: при конфликте сериализации транзакция повторяется целиком.
// Любая другая ошибка fn откатывает транзакцию и возвращается как есть.
func InSerializableTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("ошибка начала транзакции: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			if IsSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := tx.Commit(ctx); err != nil {
			if IsSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("ошибка фиксации транзакции: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if attempt > 1 {
		log.WithFields(log.Fields{
			"attempts": attempt,
			"ok":       err == nil,
		}).Debug("Транзакция повторялась из-за конфликта сериализации")
	}
	return err
}
