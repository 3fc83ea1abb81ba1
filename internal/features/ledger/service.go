// Package ledger - service.go содержит бизнес-логику журнала WP.
// Каждая запись, пересчёт суммы и зеркало в настройках меняются
// одной SERIALIZABLE-транзакцией, поэтому баланс никогда не уходит в минус.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/db/postgres"
	"serotonyl.ru/faust/internal/features/prefs"
)

// HistoryLimit: сколько записей показывает /history.
const HistoryLimit = 20

// PriceFunc вызывается внутри транзакции списания с текущим балансом.
// Возвращает цену (≥ 0) или ошибку, откатывающую всю транзакцию.
// Через tx можно изменить и другие таблицы (инвентарь пропусков) атомарно со списанием.
type PriceFunc func(ctx context.Context, tx pgx.Tx, balance int64) (int64, error)

// Service управляет журналом WP.
type Service struct {
	repo   *Repository
	prefs  *prefs.Service
	stream *broadcaster
	now    func() time.Time
}

// NewService создаёт сервис журнала.
func NewService(repo *Repository, prefsService *prefs.Service) *Service {
	return &Service{
		repo:   repo,
		prefs:  prefsService,
		stream: newBroadcaster(),
		now:    time.Now,
	}
}

// TotalPoints возвращает текущий баланс (сумма журнала, не ниже нуля).
func (s *Service) TotalPoints(ctx context.Context) (Balance, error) {
	return s.repo.Sum(ctx)
}

// Subscribe возвращает поток изменений баланса.
// Первое значение - текущий баланс; дальше только изменения.
// Медленный подписчик получает последнее значение, промежуточные теряются.
func (s *Service) Subscribe(ctx context.Context) (<-chan int64, func()) {
	ch, cancel := s.stream.subscribe()
	if b, err := s.repo.Sum(ctx); err == nil {
		s.stream.seed(ch, b.Value())
	} else {
		log.WithError(err).Warn("Не удалось получить начальный баланс для подписчика")
	}
	return ch, cancel
}

// Insert добавляет запись в журнал, ограничивая списание текущим балансом.
// Возвращает фактически применённую сумму (0 - запись не создавалась).
func (s *Service) Insert(ctx context.Context, amount int64, txType Type, reason string) (int64, error) {
	if amount == 0 {
		return 0, nil
	}

	var applied, total int64
	err := postgres.InSerializableTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		bal, err := s.repo.SumTx(ctx, tx)
		if err != nil {
			return err
		}
		current := bal.Value()
		applied = ClampDelta(current, amount)
		total = current
		if applied == 0 {
			return nil
		}
		if _, err := s.repo.InsertTx(ctx, tx, applied, txType, reason); err != nil {
			return err
		}
		total = current + applied
		return s.prefs.MirrorPointsTx(ctx, tx, total)
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка записи в журнал: %w", err)
	}

	if applied != 0 {
		s.stream.publish(total)
		log.WithFields(log.Fields{
			"amount":  applied,
			"type":    txType,
			"balance": total,
		}).Debug("Запись в журнал добавлена")
	}
	return applied, nil
}

// ApplyPenalty списывает штраф не больше текущего баланса.
// Нулевой (после ограничения) штраф не записывается.
func (s *Service) ApplyPenalty(ctx context.Context, points int64, reason string) (int64, error) {
	if points <= 0 {
		return 0, nil
	}
	applied, err := s.Insert(ctx, -points, TypePenalty, reason)
	if err != nil {
		return 0, err
	}
	return -applied, nil
}

// Spend списывает цену, рассчитанную fn по текущему балансу.
//
// Цена больше баланса - ErrInsufficientPoints, ничего не меняется.
// Ошибка fn откатывает и её изменения, и списание.
func (s *Service) Spend(ctx context.Context, txType Type, reason string, fn PriceFunc) (int64, error) {
	var price, total int64
	err := postgres.InSerializableTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		bal, err := s.repo.SumTx(ctx, tx)
		if err != nil {
			return err
		}
		current := bal.Value()

		price, err = fn(ctx, tx, current)
		if err != nil {
			return err
		}
		if price < 0 {
			return common.ErrInvalidAmount
		}
		if price > current {
			return common.ErrInsufficientPoints
		}

		total = current - price
		if price == 0 {
			return nil
		}
		if _, err := s.repo.InsertTx(ctx, tx, -price, txType, reason); err != nil {
			return err
		}
		return s.prefs.MirrorPointsTx(ctx, tx, total)
	})
	if err != nil {
		return 0, err
	}

	if price > 0 {
		s.stream.publish(total)
	}
	return price, nil
}

// WeeklyReset выполняет недельное списание по порогу и отмечает время сброса.
// Отметка пишется даже при нулевом списании, чтобы стартовая проверка не повторяла сброс.
func (s *Service) WeeklyReset(ctx context.Context, threshold int64) (int64, error) {
	var forfeit, total int64
	now := s.now()

	err := postgres.InSerializableTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		bal, err := s.repo.SumTx(ctx, tx)
		if err != nil {
			return err
		}
		current := bal.Value()
		forfeit = ResetForfeit(current, threshold)
		total = current - forfeit

		if forfeit > 0 {
			reason := "주간 정산: 전액 몰수"
			if current > threshold {
				reason = fmt.Sprintf("주간 정산: %d WP 제외 몰수", threshold)
			}
			if _, err := s.repo.InsertTx(ctx, tx, -forfeit, TypeReset, reason); err != nil {
				return err
			}
			if err := s.prefs.MirrorPointsTx(ctx, tx, total); err != nil {
				return err
			}
		}
		return s.prefs.StampResetTx(ctx, tx, now)
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка недельного сброса: %w", err)
	}

	if forfeit > 0 {
		s.stream.publish(total)
	}
	log.WithFields(log.Fields{
		"forfeit": forfeit,
		"balance": total,
	}).Info("Недельный сброс выполнен")
	return forfeit, nil
}

// History возвращает последние записи журнала.
func (s *Service) History(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	return s.repo.List(ctx, limit)
}

// DeleteByType удаляет записи одного типа и пересчитывает зеркало
// в той же транзакции.
func (s *Service) DeleteByType(ctx context.Context, txType Type) (int64, error) {
	var n, total int64
	err := postgres.InSerializableTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var err error
		n, err = s.repo.DeleteByTypeTx(ctx, tx, txType)
		if err != nil {
			return err
		}
		bal, err := s.repo.SumTx(ctx, tx)
		if err != nil {
			return err
		}
		total = bal.Value()
		return s.prefs.MirrorPointsTx(ctx, tx, total)
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления записей журнала: %w", err)
	}

	s.stream.publish(total)
	log.WithFields(log.Fields{
		"type":    txType,
		"deleted": n,
		"balance": total,
	}).Info("Записи журнала удалены")
	return n, nil
}
