package passes

import "time"

// Price: цена при текущем количестве в инвентаре.
// Для стандартного билета: 20 + 10·held.
func Price(item ItemType, held int) int64 {
	r, ok := RuleFor(item)
	if !ok {
		return 0
	}
	if held < 0 {
		held = 0
	}
	return r.BasePrice + int64(held)*r.Increment
}

func quantityOf(it *Item) int {
	if it == nil {
		return 0
	}
	return it.Quantity
}

// RemainingPurchaseCooldown: сколько ждать до следующей покупки.
func RemainingPurchaseCooldown(item ItemType, it *Item, now time.Time) time.Duration {
	r, ok := RuleFor(item)
	if !ok || r.Cooldown == 0 || it == nil || it.LastPurchaseTime.IsZero() {
		return 0
	}
	left := r.Cooldown - now.Sub(it.LastPurchaseTime)
	if left < 0 {
		return 0
	}
	return left
}

// CheckPurchase проверяет три условия покупки по порядку:
// баланс, перезарядка, место в инвентаре. nil - покупка возможна.
func CheckPurchase(item ItemType, it *Item, balance int64, now time.Time) *Failure {
	r, _ := RuleFor(item)
	held := quantityOf(it)

	if balance < Price(item, held) {
		return &Failure{Reason: ReasonInsufficientPoints}
	}
	if RemainingPurchaseCooldown(item, it, now) > 0 {
		return &Failure{Reason: ReasonCooldown}
	}
	if r.MaxQuantity > 0 && held >= r.MaxQuantity {
		return &Failure{Reason: ReasonInventoryFull}
	}
	return nil
}

// ApplyPurchase возвращает строку инвентаря после покупки.
// Дофаминовый шот не копится: сразу отмечается использованным.
func ApplyPurchase(item ItemType, it *Item, now time.Time) *Item {
	next := &Item{Type: item, LastPurchaseTime: now}
	if it != nil {
		next.Quantity = it.Quantity
		next.LastUseTime = it.LastUseTime
	}

	switch item {
	case DopamineShot:
		next.Quantity = 0
		next.LastUseTime = now
	default:
		r, _ := RuleFor(item)
		next.Quantity++
		if next.Quantity > r.MaxQuantity {
			next.Quantity = r.MaxQuantity
		}
	}
	return next
}

// CheckUse проверяет владение и гибридную перезарядку билета:
// первые три использования за сутки свободны, дальше не чаще раза в час.
func CheckUse(item ItemType, it *Item, usedToday int, now time.Time) *Failure {
	if it == nil {
		return &Failure{Reason: ReasonNotOwned}
	}
	if it.Quantity <= 0 {
		if item == StandardTicket {
			return &Failure{Reason: ReasonNoTickets}
		}
		return &Failure{Reason: ReasonNotOwned}
	}

	if item == StandardTicket && usedToday >= StandardFreeDailyUses && !it.LastUseTime.IsZero() {
		elapsed := now.Sub(it.LastUseTime)
		if elapsed < StandardUseCooldown {
			return &Failure{Reason: ReasonCooldown, Remaining: StandardUseCooldown - elapsed}
		}
	}
	return nil
}

// ApplyUse возвращает строку инвентаря после использования.
func ApplyUse(it *Item, now time.Time) *Item {
	next := *it
	next.LastUseTime = now
	next.Quantity--
	if next.Quantity < 0 {
		next.Quantity = 0
	}
	return &next
}

// IsExpired: истёк ли пропуск, начатый в start.
func IsExpired(now, start time.Time, d time.Duration) bool {
	if start.IsZero() {
		return true
	}
	return !now.Before(start.Add(d))
}
