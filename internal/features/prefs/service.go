// Package prefs - service.go даёт типизированный доступ к настройкам.
// Отсутствующий ключ всегда означает значение по умолчанию.
package prefs

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/faust/internal/common"
)

// Service: типизированная обёртка над Repository.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис настроек.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) getString(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (s *Service) getInt(ctx context.Context, key string) (int64, error) {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// битое значение считаем отсутствующим
		return 0, nil
	}
	return n, nil
}

func (s *Service) getBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

func (s *Service) getTime(ctx context.Context, key string) (time.Time, error) {
	ms, err := s.getInt(ctx, key)
	return common.FromMillis(ms), err
}

func (s *Service) putInt(ctx context.Context, key string, v int64) error {
	return s.repo.Put(ctx, key, strconv.FormatInt(v, 10))
}

func (s *Service) putTime(ctx context.Context, key string, t time.Time) error {
	return s.putInt(ctx, key, common.ToMillis(t))
}

// --- Тариф ---

func (s *Service) Tier(ctx context.Context) (Tier, error) {
	v, err := s.getString(ctx, KeyUserTier, string(TierFree))
	if err != nil {
		return TierFree, err
	}
	t, err := ParseTier(v)
	if err != nil {
		return TierFree, nil
	}
	return t, nil
}

func (s *Service) SetTier(ctx context.Context, t Tier) error {
	return s.repo.Put(ctx, KeyUserTier, string(t))
}

// TestModeMaxApps: переопределение лимита блокировки (0 = выключено).
func (s *Service) TestModeMaxApps(ctx context.Context) (int, error) {
	n, err := s.getInt(ctx, KeyTestModeMaxApps)
	return int(n), err
}

func (s *Service) SetTestModeMaxApps(ctx context.Context, n int) error {
	return s.putInt(ctx, KeyTestModeMaxApps, int64(n))
}

// --- Зеркало баланса ---

// CurrentPoints: быстрое чтение баланса (зеркало, пишется леджером).
func (s *Service) CurrentPoints(ctx context.Context) (int64, error) {
	return s.getInt(ctx, KeyCurrentPoints)
}

// MirrorPointsTx пишет зеркало баланса внутри транзакции леджера.
func (s *Service) MirrorPointsTx(ctx context.Context, tx pgx.Tx, points int64) error {
	return s.repo.PutTx(ctx, tx, KeyCurrentPoints, strconv.FormatInt(points, 10))
}

// StampResetTx отмечает время недельного сброса внутри транзакции.
func (s *Service) StampResetTx(ctx context.Context, tx pgx.Tx, at time.Time) error {
	return s.repo.PutTx(ctx, tx, KeyLastResetTime, strconv.FormatInt(common.ToMillis(at), 10))
}

func (s *Service) LastResetTime(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, KeyLastResetTime)
}

// --- Майнинг ---

func (s *Service) LastMining(ctx context.Context) (time.Time, string, error) {
	at, err := s.getTime(ctx, KeyLastMiningTime)
	if err != nil {
		return time.Time{}, "", err
	}
	app, err := s.getString(ctx, KeyLastMiningApp, "")
	return at, app, err
}

func (s *Service) SetLastMining(ctx context.Context, at time.Time, app string) error {
	if err := s.putTime(ctx, KeyLastMiningTime, at); err != nil {
		return err
	}
	return s.repo.Put(ctx, KeyLastMiningApp, app)
}

func (s *Service) SetServiceRunning(ctx context.Context, running bool) error {
	return s.repo.Put(ctx, KeyServiceRunning, strconv.FormatBool(running))
}

func (s *Service) ServiceRunning(ctx context.Context) (bool, error) {
	return s.getBool(ctx, KeyServiceRunning)
}

// --- Экран ---

// ScreenOff возвращает время выключения экрана и флаг «играло аудио блокируемого приложения».
func (s *Service) ScreenOff(ctx context.Context) (time.Time, bool, error) {
	at, err := s.getTime(ctx, KeyLastScreenOffTime)
	if err != nil {
		return time.Time{}, false, err
	}
	audio, err := s.getBool(ctx, KeyAudioBlockedOnScreenOff)
	return at, audio, err
}

func (s *Service) SetScreenOff(ctx context.Context, at time.Time, audioBlocked bool) error {
	if err := s.putTime(ctx, KeyLastScreenOffTime, at); err != nil {
		return err
	}
	return s.SetAudioBlockedOnScreenOff(ctx, audioBlocked)
}

func (s *Service) SetAudioBlockedOnScreenOff(ctx context.Context, blocked bool) error {
	return s.repo.Put(ctx, KeyAudioBlockedOnScreenOff, strconv.FormatBool(blocked))
}

func (s *Service) SetLastScreenOn(ctx context.Context, at time.Time) error {
	return s.putTime(ctx, KeyLastScreenOnTime, at)
}

func (s *Service) LastScreenOn(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, KeyLastScreenOnTime)
}

// --- Персона ---

func (s *Service) PersonaType(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyPersonaType, "")
}

func (s *Service) SetPersonaType(ctx context.Context, name string) error {
	return s.repo.Put(ctx, KeyPersonaType, name)
}

// --- Граница суток ---

// DailyResetTime возвращает "HH:mm"; некорректное значение заменяется на полночь.
func (s *Service) DailyResetTime(ctx context.Context) (string, error) {
	v, err := s.getString(ctx, KeyCustomDailyResetTime, common.DefaultResetTime)
	if err != nil {
		return common.DefaultResetTime, err
	}
	if _, _, perr := common.ParseResetTime(v); perr != nil {
		return common.DefaultResetTime, nil
	}
	return v, nil
}

func (s *Service) SetDailyResetTime(ctx context.Context, hhmm string) error {
	if _, _, err := common.ParseResetTime(hhmm); err != nil {
		return err
	}
	return s.repo.Put(ctx, KeyCustomDailyResetTime, hhmm)
}

// --- Активный пропуск ---

// ActivePass возвращает сохранённый тип и время старта ("" если пропуска нет).
func (s *Service) ActivePass(ctx context.Context) (string, time.Time, error) {
	item, err := s.getString(ctx, KeyActivePassItemType, "")
	if err != nil || item == "" {
		return "", time.Time{}, err
	}
	start, err := s.getTime(ctx, KeyActivePassStartTime)
	return item, start, err
}

func (s *Service) SetActivePass(ctx context.Context, item string, start time.Time) error {
	if err := s.repo.Put(ctx, KeyActivePassItemType, item); err != nil {
		return err
	}
	return s.putTime(ctx, KeyActivePassStartTime, start)
}

// ClearActivePass удаляет оба поля пропуска.
func (s *Service) ClearActivePass(ctx context.Context) error {
	return s.repo.Delete(ctx, KeyActivePassItemType, KeyActivePassStartTime)
}
