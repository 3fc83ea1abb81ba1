// Package groups - repository.go работает с таблицами app_groups и installed_apps.
package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository предоставляет доступ к группам и инвентарю.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий групп.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Override возвращает явную запись (included, found).
func (r *Repository) Override(ctx context.Context, pkg string, group GroupType) (bool, bool, error) {
	var included bool
	err := r.db.QueryRow(ctx, `
		SELECT is_included FROM app_groups
		WHERE package_name = $1 AND group_type = $2
	`, pkg, string(group)).Scan(&included)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("ошибка чтения группы: %w", err)
	}
	return included, true, nil
}

// SetOverride создаёт или меняет явную запись.
func (r *Repository) SetOverride(ctx context.Context, pkg string, group GroupType, included bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO app_groups (package_name, group_type, is_included)
		VALUES ($1, $2, $3)
		ON CONFLICT (package_name, group_type) DO UPDATE SET is_included = EXCLUDED.is_included
	`, pkg, string(group), included)
	if err != nil {
		return fmt.Errorf("ошибка записи группы: %w", err)
	}
	return nil
}

// InsertOverrideIfAbsent не трогает уже существующую запись пользователя.
func (r *Repository) InsertOverrideIfAbsent(ctx context.Context, pkg string, group GroupType, included bool) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO app_groups (package_name, group_type, is_included)
		VALUES ($1, $2, $3)
		ON CONFLICT (package_name, group_type) DO NOTHING
	`, pkg, string(group), included)
	if err != nil {
		return false, fmt.Errorf("ошибка засева группы: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Installed возвращает строку инвентаря или nil, если пакет неизвестен.
func (r *Repository) Installed(ctx context.Context, pkg string) (*InstalledApp, error) {
	var app InstalledApp
	err := r.db.QueryRow(ctx, `
		SELECT package_name, app_name, category FROM installed_apps WHERE package_name = $1
	`, pkg).Scan(&app.Package, &app.Name, &app.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения инвентаря: %w", err)
	}
	return &app, nil
}

// ReplaceInventory заменяет инвентарь целиком одной транзакцией.
func (r *Repository) ReplaceInventory(ctx context.Context, apps []InstalledApp) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM installed_apps`); err != nil {
		return fmt.Errorf("ошибка очистки инвентаря: %w", err)
	}

	batch := &pgx.Batch{}
	for _, app := range apps {
		batch.Queue(`
			INSERT INTO installed_apps (package_name, app_name, category, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (package_name) DO UPDATE
			SET app_name = EXCLUDED.app_name, category = EXCLUDED.category, updated_at = NOW()
		`, app.Package, app.Name, app.Category)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("ошибка записи инвентаря: %w", err)
	}

	return tx.Commit(ctx)
}
