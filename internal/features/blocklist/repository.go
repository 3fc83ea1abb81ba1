// Package blocklist - repository.go работает с таблицей blocked_apps.
package blocklist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository предоставляет доступ к списку блокировки.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий списка блокировки.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Add добавляет приложение, если лимит позволяет (limit < 0 - без лимита).
// Повторное добавление обновляет имя и не считается против лимита.
// Возвращает false, если лимит исчерпан.
func (r *Repository) Add(ctx context.Context, pkg, name string, limit int) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// блокировка таблицы сериализует конкурентные добавления
	if _, err := tx.Exec(ctx, `LOCK TABLE blocked_apps IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return false, fmt.Errorf("ошибка блокировки таблицы: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM blocked_apps WHERE package_name = $1)`, pkg,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки приложения: %w", err)
	}

	if !exists && limit >= 0 {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM blocked_apps`).Scan(&count); err != nil {
			return false, fmt.Errorf("ошибка подсчёта приложений: %w", err)
		}
		if count >= limit {
			return false, nil
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO blocked_apps (package_name, app_name, blocked_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (package_name) DO UPDATE SET app_name = EXCLUDED.app_name
	`, pkg, name); err != nil {
		return false, fmt.Errorf("ошибка добавления приложения: %w", err)
	}

	return true, tx.Commit(ctx)
}

// Remove удаляет приложение. false - его не было в списке.
func (r *Repository) Remove(ctx context.Context, pkg string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM blocked_apps WHERE package_name = $1`, pkg)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления приложения: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List возвращает список по времени добавления.
func (r *Repository) List(ctx context.Context) ([]*BlockedApp, error) {
	rows, err := r.db.Query(ctx, `
		SELECT package_name, app_name, blocked_at FROM blocked_apps ORDER BY blocked_at, package_name
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка блокировки: %w", err)
	}
	defer rows.Close()

	var out []*BlockedApp
	for rows.Next() {
		var a BlockedApp
		if err := rows.Scan(&a.PackageName, &a.AppName, &a.BlockedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования приложения: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
