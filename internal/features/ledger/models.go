// Package ledger ведёт журнал WP: только добавление записей,
// баланс всегда выводится суммой знаковых сумм и не опускается ниже нуля.
// models.go описывает записи журнала и баланс.
package ledger

import "time"

// Type: вид операции в журнале.
type Type string

const (
	TypeMining   Type = "MINING"   // Начисление за использование разрешённых приложений
	TypePenalty  Type = "PENALTY"  // Штраф за «Проход» или «Отступление»
	TypePurchase Type = "PURCHASE" // Покупка пропуска
	TypeReset    Type = "RESET"    // Недельное списание
)

// Transaction: неизменяемая запись журнала.
type Transaction struct {
	ID        int64     `db:"id"`
	Amount    int64     `db:"amount"` // Со знаком: отрицательная для списаний
	Type      Type      `db:"type"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}

// Balance различает «записей ещё нет» и «баланс ноль».
// К числу сводится только на границе чтения через Value.
type Balance struct {
	Known  bool
	Points int64
}

// Value возвращает баланс, считая пустой журнал нулём.
func (b Balance) Value() int64 {
	if !b.Known || b.Points < 0 {
		return 0
	}
	return b.Points
}

// ClampDelta ограничивает списание текущим балансом.
// Начисления проходят без изменений.
//
//	ClampDelta(10, -6) → -6
//	ClampDelta(4, -6)  → -4
//	ClampDelta(0, -6)  → 0
func ClampDelta(balance, amount int64) int64 {
	if balance < 0 {
		balance = 0
	}
	if amount < 0 && -amount > balance {
		return -balance
	}
	return amount
}

// ResetForfeit: сколько WP списать при недельном сбросе:
// всё сверх порога, а если баланс не выше порога - весь баланс.
func ResetForfeit(balance, threshold int64) int64 {
	if balance <= 0 {
		return 0
	}
	if balance > threshold {
		return balance - threshold
	}
	return balance
}
