// Package passes - покупка и использование пропусков,
// а также активный пропуск, который временно снимает блокировку с группы приложений.
package passes

import (
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/faust/internal/common"
)

// ItemType: вид пропуска.
type ItemType string

const (
	DopamineShot   ItemType = "DOPAMINE_SHOT"   // SNS на 20 минут, тратится при покупке
	StandardTicket ItemType = "STANDARD_TICKET" // Всё, кроме SNS, на час
	CinemaPass     ItemType = "CINEMA_PASS"     // OTT на 4 часа
)

// AllItems: порядок вывода в магазине.
var AllItems = []ItemType{DopamineShot, StandardTicket, CinemaPass}

// ParseItem принимает полное имя или короткий псевдоним.
func ParseItem(s string) (ItemType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DOPAMINE_SHOT", "DOPAMINE", "SHOT":
		return DopamineShot, nil
	case "STANDARD_TICKET", "STANDARD", "TICKET":
		return StandardTicket, nil
	case "CINEMA_PASS", "CINEMA":
		return CinemaPass, nil
	}
	return "", common.ErrUnknownItem
}

// Rule: параметры вида пропуска.
type Rule struct {
	BasePrice   int64
	Increment   int64         // Надбавка за каждый уже имеющийся экземпляр
	Cooldown    time.Duration // От последней покупки; 0 - без ограничения
	MaxQuantity int           // 0: не хранится в инвентаре
	Duration    time.Duration // Длительность активного пропуска
}

var rules = map[ItemType]Rule{
	DopamineShot: {
		BasePrice: 15,
		Cooldown:  30 * time.Minute,
		Duration:  20 * time.Minute,
	},
	StandardTicket: {
		BasePrice:   20,
		Increment:   10,
		MaxQuantity: 3,
		Duration:    time.Hour,
	},
	CinemaPass: {
		BasePrice:   75,
		Cooldown:    18 * time.Hour,
		MaxQuantity: 1,
		Duration:    4 * time.Hour,
	},
}

// Гибридная перезарядка стандартного билета.
const (
	StandardFreeDailyUses = 3
	StandardUseCooldown   = time.Hour
)

// RuleFor возвращает параметры вида.
func RuleFor(item ItemType) (Rule, bool) {
	r, ok := rules[item]
	return r, ok
}

// Item: строка инвентаря. Нулевое время означает «никогда».
type Item struct {
	Type             ItemType
	Quantity         int
	LastPurchaseTime time.Time
	LastUseTime      time.Time
}

// ActivePass: действующий пропуск.
type ActivePass struct {
	Item      ItemType
	StartTime time.Time
	ExpiresAt time.Time
}

// Reason: причина отказа, показывается пользователю как есть.
type Reason string

const (
	ReasonInsufficientPoints Reason = "포인트가 부족합니다"
	ReasonCooldown           Reason = "쿨타임이 남아있습니다"
	ReasonInventoryFull      Reason = "인벤토리 한도에 도달했습니다"
	ReasonNotOwned           Reason = "보유한 아이템이 없습니다"
	ReasonNoTickets          Reason = "보유한 티켓이 없습니다"
	ReasonUnavailable        Reason = "일시적인 오류로 처리하지 못했습니다"
)

// Failure: отказ в покупке или использовании.
// Ошибки базы тоже приходят как Failure с ReasonUnavailable.
type Failure struct {
	Reason    Reason
	Remaining time.Duration // Для ReasonCooldown при использовании билета
	Err       error
}

func (f *Failure) Error() string {
	if f.Reason == ReasonCooldown && f.Remaining > 0 {
		return fmt.Sprintf("%s (%d분)", f.Reason, int(f.Remaining/time.Minute))
	}
	return string(f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
