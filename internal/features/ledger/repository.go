// Package ledger - repository.go выполняет операции с таблицей point_transactions.
// Методы с суффиксом Tx работают внутри транзакции вызывающего.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/faust/internal/db/postgres"
)

// Repository предоставляет методы для работы с журналом.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий журнала.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Pool нужен сервису для открытия транзакций.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

// Sum возвращает сумму всех записей (Known=false, если журнал пуст).
func (r *Repository) Sum(ctx context.Context) (Balance, error) {
	return r.sum(ctx, r.db)
}

// SumTx: то же внутри транзакции.
func (r *Repository) SumTx(ctx context.Context, tx pgx.Tx) (Balance, error) {
	return r.sum(ctx, tx)
}

func (r *Repository) sum(ctx context.Context, q postgres.Querier) (Balance, error) {
	var total *int64
	if err := q.QueryRow(ctx, `SELECT SUM(amount)::BIGINT FROM point_transactions`).Scan(&total); err != nil {
		return Balance{}, fmt.Errorf("ошибка подсчёта баланса: %w", err)
	}
	if total == nil {
		return Balance{}, nil
	}
	return Balance{Known: true, Points: *total}, nil
}

// InsertTx добавляет запись в журнал.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, amount int64, txType Type, reason string) (*Transaction, error) {
	t := &Transaction{Amount: amount, Type: txType, Reason: reason}
	err := tx.QueryRow(ctx, `
		INSERT INTO point_transactions (amount, type, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, amount, string(txType), reason).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return t, nil
}

// List возвращает последние N записей.
func (r *Repository) List(ctx context.Context, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, amount, type, reason, created_at
		FROM point_transactions
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		var txType string
		if err := rows.Scan(&t.ID, &t.Amount, &txType, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		t.Type = Type(txType)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// DeleteByTypeTx удаляет все записи указанного типа (обслуживание, не штатный путь).
func (r *Repository) DeleteByTypeTx(ctx context.Context, tx pgx.Tx, txType Type) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM point_transactions WHERE type = $1`, string(txType))
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления транзакций: %w", err)
	}
	return tag.RowsAffected(), nil
}
