// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: недельный сброс WP по понедельникам,
// суточный сброс счётчика билетов по пользовательской границе суток
// и сборку истёкших пропусков.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/features/ledger"
	"serotonyl.ru/faust/internal/features/passes"
	"serotonyl.ru/faust/internal/features/prefs"
)

const (
	weeklySpec = "0 0 * * 1"
	sweepSpec  = "@every 1m"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron      *cron.Cron
	ledger    *ledger.Service
	passes    *passes.Service
	prefs     *prefs.Service
	threshold int64
	notify    func(text string)
	now       func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	dailyID cron.EntryID
}

// NewScheduler создаёт планировщик в часовом поясе приложения.
func NewScheduler(
	ledgerService *ledger.Service,
	passService *passes.Service,
	prefsService *prefs.Service,
	loc *time.Location,
	threshold int64,
	notify func(text string),
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		ledger:    ledgerService,
		passes:    passService,
		prefs:     prefsService,
		threshold: threshold,
		notify:    notify,
		now:       func() time.Time { return time.Now().In(loc) },
		ctx:       context.Background(),
	}
}

// Start регистрирует задачи, догоняет пропущенный недельный сброс и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	// Недельный сброс: понедельник 00:00
	if _, err := s.cron.AddFunc(weeklySpec, func() {
		log.Info("[CRON] Недельный сброс WP")
		s.RunWeeklyReset(ctx)
	}); err != nil {
		return fmt.Errorf("ошибка регистрации недельного сброса: %w", err)
	}

	// Сборка истёкших пропусков
	if _, err := s.cron.AddFunc(sweepSpec, func() {
		if _, err := s.passes.ClearIfExpired(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка проверки активного пропуска")
		}
	}); err != nil {
		return fmt.Errorf("ошибка регистрации проверки пропусков: %w", err)
	}

	s.RearmFromPrefs(ctx)

	if _, err := s.CatchUpWeekly(ctx); err != nil {
		log.WithError(err).Error("Ошибка догоняющего недельного сброса")
	}

	s.cron.Start()
	log.WithField("entries", len(s.cron.Entries())).Info("Планировщик задач запущен")
	return nil
}

// Rearm перевзводит суточный сброс на новую границу суток "HH:mm".
// Некорректное время откатывается на полночь.
func (s *Scheduler) Rearm(hhmm string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dailyID != 0 {
		s.cron.Remove(s.dailyID)
		s.dailyID = 0
	}

	ctx := s.ctx
	job := func() {
		log.Info("[CRON] Суточный сброс счётчика билетов")
		if err := s.passes.ResetDailyUsage(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка суточного сброса")
		}
	}

	spec, err := DailySpec(hhmm)
	if err == nil {
		s.dailyID, err = s.cron.AddFunc(spec, job)
	}
	if err != nil {
		log.WithError(err).WithField("time", hhmm).Warn("Суточный сброс откатывается на полночь")
		s.dailyID, err = s.cron.AddFunc("0 0 * * *", job)
		if err != nil {
			log.WithError(err).Error("Не удалось зарегистрировать суточный сброс")
			return
		}
		spec = "0 0 * * *"
	}
	log.WithField("spec", spec).Info("Суточный сброс взведён")
}

// RearmFromPrefs перевзводит суточный сброс по сохранённой настройке
// (при старте и по сигналу загрузки устройства).
func (s *Scheduler) RearmFromPrefs(ctx context.Context) {
	hhmm, err := s.prefs.DailyResetTime(ctx)
	if err != nil {
		log.WithError(err).Warn("Не удалось прочитать границу суток")
		hhmm = common.DefaultResetTime
	}
	s.Rearm(hhmm)
}

// RunWeeklyReset выполняет недельный сброс и сообщает результат.
func (s *Scheduler) RunWeeklyReset(ctx context.Context) {
	forfeit, err := s.ledger.WeeklyReset(ctx, s.threshold)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка недельного сброса")
		return
	}
	if s.notify != nil {
		if forfeit > 0 {
			s.notify(fmt.Sprintf("🗓 Недельный сброс: списано %s", common.FormatPoints(forfeit)))
		} else {
			s.notify("🗓 Недельный сброс: списывать нечего")
		}
	}
}

// CatchUpWeekly выполняет сброс, если последний был раньше последнего
// понедельника 00:00 (устройство было выключено в момент срабатывания).
func (s *Scheduler) CatchUpWeekly(ctx context.Context) (bool, error) {
	last, err := s.prefs.LastResetTime(ctx)
	if err != nil {
		return false, err
	}
	if !NeedsWeeklyCatchUp(last, s.now()) {
		return false, nil
	}
	log.WithField("last_reset", last).Info("Пропущен недельный сброс: выполняем сейчас")
	s.RunWeeklyReset(ctx)
	return true, nil
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// DailySpec переводит "HH:mm" в cron-выражение.
func DailySpec(hhmm string) (string, error) {
	hour, minute, err := common.ParseResetTime(hhmm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// NeedsWeeklyCatchUp: последний сброс был до последнего понедельника 00:00.
// Сброса ещё не было - тоже догоняем: он же проставит отметку.
func NeedsWeeklyCatchUp(lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return true
	}
	return lastReset.Before(common.LastMondayMidnight(now))
}
