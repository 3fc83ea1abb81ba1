// Package passes - repository.go работает с free_pass_items и daily_usage_records.
// Методы принимают postgres.Querier, чтобы покупка шла в транзакции леджера.
package passes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/faust/internal/db/postgres"
)

// Repository предоставляет доступ к инвентарю пропусков.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий пропусков.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Pool: пул для транзакций использования.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullable(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// GetItem возвращает строку инвентаря или nil.
func (r *Repository) GetItem(ctx context.Context, q postgres.Querier, item ItemType) (*Item, error) {
	var (
		it           = Item{Type: item}
		lastPurchase *time.Time
		lastUse      *time.Time
	)
	err := q.QueryRow(ctx, `
		SELECT quantity, last_purchase_time, last_use_time
		FROM free_pass_items WHERE item_type = $1
	`, string(item)).Scan(&it.Quantity, &lastPurchase, &lastUse)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пропуска %s: %w", item, err)
	}
	it.LastPurchaseTime = fromNullable(lastPurchase)
	it.LastUseTime = fromNullable(lastUse)
	return &it, nil
}

// UpsertItem записывает строку инвентаря целиком.
func (r *Repository) UpsertItem(ctx context.Context, q postgres.Querier, it *Item) error {
	_, err := q.Exec(ctx, `
		INSERT INTO free_pass_items (item_type, quantity, last_purchase_time, last_use_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_type) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			last_purchase_time = EXCLUDED.last_purchase_time,
			last_use_time = EXCLUDED.last_use_time
	`, string(it.Type), it.Quantity, nullableTime(it.LastPurchaseTime), nullableTime(it.LastUseTime))
	if err != nil {
		return fmt.Errorf("ошибка записи пропуска %s: %w", it.Type, err)
	}
	return nil
}

// ListItems возвращает весь инвентарь.
func (r *Repository) ListItems(ctx context.Context) (map[ItemType]*Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT item_type, quantity, last_purchase_time, last_use_time FROM free_pass_items
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения инвентаря: %w", err)
	}
	defer rows.Close()

	out := make(map[ItemType]*Item)
	for rows.Next() {
		var (
			it           Item
			itemType     string
			lastPurchase *time.Time
			lastUse      *time.Time
		)
		if err := rows.Scan(&itemType, &it.Quantity, &lastPurchase, &lastUse); err != nil {
			return nil, fmt.Errorf("ошибка сканирования инвентаря: %w", err)
		}
		it.Type = ItemType(itemType)
		it.LastPurchaseTime = fromNullable(lastPurchase)
		it.LastUseTime = fromNullable(lastUse)
		out[it.Type] = &it
	}
	return out, rows.Err()
}

// UsageCount: сколько билетов использовано в сутки date.
func (r *Repository) UsageCount(ctx context.Context, q postgres.Querier, date string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT standard_ticket_used_count FROM daily_usage_records WHERE date = $1
	`, date).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения суточного счётчика: %w", err)
	}
	return n, nil
}

// IncrementUsage увеличивает суточный счётчик билетов.
func (r *Repository) IncrementUsage(ctx context.Context, q postgres.Querier, date string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO daily_usage_records (date, standard_ticket_used_count)
		VALUES ($1, 1)
		ON CONFLICT (date) DO UPDATE
		SET standard_ticket_used_count = daily_usage_records.standard_ticket_used_count + 1
	`, date)
	if err != nil {
		return fmt.Errorf("ошибка обновления суточного счётчика: %w", err)
	}
	return nil
}

// ResetUsage обнуляет счётчик суток date.
func (r *Repository) ResetUsage(ctx context.Context, date string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO daily_usage_records (date, standard_ticket_used_count)
		VALUES ($1, 0)
		ON CONFLICT (date) DO UPDATE SET standard_ticket_used_count = 0
	`, date)
	if err != nil {
		return fmt.Errorf("ошибка сброса суточного счётчика: %w", err)
	}
	return nil
}
