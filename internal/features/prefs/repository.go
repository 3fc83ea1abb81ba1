// Package prefs - repository.go читает и пишет таблицу preferences.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/faust/internal/db/postgres"
)

// Repository предоставляет доступ к таблице preferences.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий настроек.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Get возвращает значение и признак наличия ключа.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM preferences WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка чтения настройки %s: %w", key, err)
	}
	return value, true, nil
}

// Put записывает значение вне транзакции.
func (r *Repository) Put(ctx context.Context, key, value string) error {
	return r.PutTx(ctx, r.db, key, value)
}

// PutTx записывает значение через переданный querier (пул или транзакцию).
// Используется леджером, чтобы зеркало баланса менялось атомарно с записью.
func (r *Repository) PutTx(ctx context.Context, q postgres.Querier, key, value string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO preferences (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("ошибка записи настройки %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключи.
func (r *Repository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM preferences WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("ошибка удаления настроек: %w", err)
	}
	return nil
}
