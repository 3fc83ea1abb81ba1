// Package passes - service.go содержит покупку и использование пропусков.
package passes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/db/postgres"
	"serotonyl.ru/faust/internal/features/ledger"
	"serotonyl.ru/faust/internal/features/prefs"
)

// Service управляет пропусками.
type Service struct {
	repo   *Repository
	ledger *ledger.Service
	prefs  *prefs.Service
	loc    *time.Location
	now    func() time.Time

	mu       sync.Mutex
	expiry   *time.Timer
	onExpire []func(ItemType)
}

// NewService создаёт сервис пропусков.
func NewService(repo *Repository, ledgerService *ledger.Service, prefsService *prefs.Service, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:   repo,
		ledger: ledgerService,
		prefs:  prefsService,
		loc:    loc,
		now:    time.Now,
	}
}

// asFailure приводит любую ошибку к *Failure.
func asFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, common.ErrInsufficientPoints) {
		return &Failure{Reason: ReasonInsufficientPoints, Err: err}
	}
	return &Failure{Reason: ReasonUnavailable, Err: err}
}

// Purchase покупает пропуск: списание и строка инвентаря меняются одной транзакцией.
// Отказ всегда *Failure с причиной.
func (s *Service) Purchase(ctx context.Context, item ItemType) (*Item, error) {
	if _, ok := RuleFor(item); !ok {
		return nil, &Failure{Reason: ReasonUnavailable, Err: common.ErrUnknownItem}
	}

	now := s.now()
	var purchased *Item
	price, err := s.ledger.Spend(ctx, ledger.TypePurchase, fmt.Sprintf("%s 구매", item),
		func(ctx context.Context, tx pgx.Tx, balance int64) (int64, error) {
			current, err := s.repo.GetItem(ctx, tx, item)
			if err != nil {
				return 0, err
			}
			if f := CheckPurchase(item, current, balance, now); f != nil {
				return 0, f
			}
			purchased = ApplyPurchase(item, current, now)
			if err := s.repo.UpsertItem(ctx, tx, purchased); err != nil {
				return 0, err
			}
			return Price(item, quantityOf(current)), nil
		})
	if err != nil {
		f := asFailure(err)
		if f.Reason == ReasonUnavailable {
			log.WithError(err).WithField("item", item).Error("Ошибка покупки пропуска")
		}
		return nil, f
	}

	log.WithFields(log.Fields{
		"item":  item,
		"price": price,
	}).Info("Пропуск куплен")

	if item == DopamineShot {
		if err := s.ActivatePass(ctx, item); err != nil {
			log.WithError(err).Error("Ошибка активации дофаминового шота")
		}
	}
	return purchased, nil
}

// Use использует пропуск из инвентаря и активирует его.
func (s *Service) Use(ctx context.Context, item ItemType) (*Item, error) {
	if _, ok := RuleFor(item); !ok {
		return nil, &Failure{Reason: ReasonUnavailable, Err: common.ErrUnknownItem}
	}

	resetTime, err := s.prefs.DailyResetTime(ctx)
	if err != nil {
		return nil, asFailure(err)
	}
	now := s.now()
	today := common.DayString(now.In(s.loc), resetTime)

	var used *Item
	err = postgres.InSerializableTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		current, err := s.repo.GetItem(ctx, tx, item)
		if err != nil {
			return err
		}
		usedToday := 0
		if item == StandardTicket {
			if usedToday, err = s.repo.UsageCount(ctx, tx, today); err != nil {
				return err
			}
		}
		if f := CheckUse(item, current, usedToday, now); f != nil {
			return f
		}

		used = ApplyUse(current, now)
		if err := s.repo.UpsertItem(ctx, tx, used); err != nil {
			return err
		}
		if item == StandardTicket {
			return s.repo.IncrementUsage(ctx, tx, today)
		}
		return nil
	})
	if err != nil {
		f := asFailure(err)
		if f.Reason == ReasonUnavailable {
			log.WithError(err).WithField("item", item).Error("Ошибка использования пропуска")
		}
		return nil, f
	}

	log.WithField("item", item).Info("Пропуск использован")
	if err := s.ActivatePass(ctx, item); err != nil {
		return used, asFailure(err)
	}
	return used, nil
}

// Inventory возвращает инвентарь по всем видам (отсутствующие - с нулём).
func (s *Service) Inventory(ctx context.Context) (map[ItemType]*Item, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range AllItems {
		if _, ok := items[item]; !ok {
			items[item] = &Item{Type: item}
		}
	}
	return items, nil
}

// PriceNow: цена с учётом текущего инвентаря.
func (s *Service) PriceNow(ctx context.Context, item ItemType) (int64, error) {
	it, err := s.repo.GetItem(ctx, s.repo.Pool(), item)
	if err != nil {
		return 0, err
	}
	return Price(item, quantityOf(it)), nil
}

// RemainingCooldown: сколько ждать до следующей покупки.
func (s *Service) RemainingCooldown(ctx context.Context, item ItemType) (time.Duration, error) {
	it, err := s.repo.GetItem(ctx, s.repo.Pool(), item)
	if err != nil {
		return 0, err
	}
	return RemainingPurchaseCooldown(item, it, s.now()), nil
}

// ResetDailyUsage обнуляет счётчик билетов текущих суток.
func (s *Service) ResetDailyUsage(ctx context.Context) error {
	resetTime, err := s.prefs.DailyResetTime(ctx)
	if err != nil {
		return err
	}
	today := common.DayString(s.now().In(s.loc), resetTime)
	if err := s.repo.ResetUsage(ctx, today); err != nil {
		return err
	}
	log.WithField("date", today).Info("Суточный счётчик билетов сброшен")
	return nil
}
