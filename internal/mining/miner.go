// Package mining начисляет WP за время, проведённое вне заблокированных приложений:
// 1 WP за интервал при включённом экране и состоянии ALLOWED,
// плюс компенсация за время с выключенным экраном.
package mining

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/blocking"
	"serotonyl.ru/faust/internal/bot/middleware"
	"serotonyl.ru/faust/internal/features/ledger"
	"serotonyl.ru/faust/internal/features/prefs"
	"serotonyl.ru/faust/internal/metrics"
)

const (
	tickReason    = "앱 사용 시간 채굴"
	catchUpReason = "화면 꺼짐 보상"
	pointsPerTick = 1
)

// Settings: параметры майнинга.
type Settings struct {
	Interval          time.Duration
	CatchUpMaxMinutes int64
	CatchUpEnabled    bool
}

// Miner: таймер майнинга и компенсация за выключенный экран.
type Miner struct {
	ledger     *ledger.Service
	prefs      *prefs.Service
	machine    *blocking.MiningMachine
	foreground func() string
	settings   Settings
	now        func() time.Time

	mu       sync.Mutex
	screenOn bool
}

// NewMiner создаёт майнер. foreground возвращает текущее приложение для last_mining_app.
func NewMiner(
	ledgerService *ledger.Service,
	prefsService *prefs.Service,
	machine *blocking.MiningMachine,
	foreground func() string,
	settings Settings,
) *Miner {
	m := &Miner{
		ledger:     ledgerService,
		prefs:      prefsService,
		machine:    machine,
		foreground: foreground,
		settings:   settings,
		now:        time.Now,
		screenOn:   true,
	}
	machine.OnChange(m.onStateChange)
	return m
}

// Run тикает до отмены контекста.
func (m *Miner) Run(ctx context.Context) error {
	log.WithField("interval", m.settings.Interval).Info("Майнинг запущен")
	if err := m.prefs.SetServiceRunning(ctx, true); err != nil {
		log.WithError(err).Warn("Не удалось отметить запуск майнинга")
	}
	defer func() {
		if err := m.prefs.SetServiceRunning(context.WithoutCancel(ctx), false); err != nil {
			log.WithError(err).Warn("Не удалось отметить остановку майнинга")
		}
		log.Info("Майнинг остановлен")
	}()

	ticker := time.NewTicker(m.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick начисляет одну порцию, если экран включён и майнинг разрешён.
func (m *Miner) tick(ctx context.Context) {
	defer middleware.RecoverFromPanic()

	if !m.isScreenOn() || m.machine.Effective() != blocking.Allowed {
		return
	}

	applied, err := m.ledger.Insert(ctx, pointsPerTick, ledger.TypeMining, tickReason)
	if err != nil {
		log.WithError(err).Error("Ошибка начисления майнинга")
		return
	}
	metrics.MinedPoints.WithLabelValues("tick").Add(float64(applied))

	app := ""
	if m.foreground != nil {
		app = m.foreground()
	}
	if err := m.prefs.SetLastMining(ctx, m.now(), app); err != nil {
		log.WithError(err).Warn("Не удалось сохранить время майнинга")
	}
}

// ScreenOff запоминает время выключения и то, стоял ли майнинг на паузе.
func (m *Miner) ScreenOff(ctx context.Context) {
	m.mu.Lock()
	m.screenOn = false
	m.mu.Unlock()

	paused := m.machine.Effective() == blocking.Blocked
	if err := m.prefs.SetScreenOff(ctx, m.now(), paused); err != nil {
		log.WithError(err).Error("Не удалось сохранить выключение экрана")
		return
	}
	log.WithField("paused", paused).Debug("Экран выключен")
}

// ScreenOn начисляет компенсацию за выключенный экран, если за это время
// майнинг не стоял на паузе и не играло заблокированное аудио.
func (m *Miner) ScreenOn(ctx context.Context) {
	m.mu.Lock()
	m.screenOn = true
	m.mu.Unlock()

	now := m.now()
	if err := m.prefs.SetLastScreenOn(ctx, now); err != nil {
		log.WithError(err).Warn("Не удалось сохранить включение экрана")
	}

	offAt, tainted, err := m.prefs.ScreenOff(ctx)
	if err != nil {
		log.WithError(err).Error("Не удалось прочитать выключение экрана")
		return
	}
	defer func() {
		if err := m.prefs.SetAudioBlockedOnScreenOff(ctx, false); err != nil {
			log.WithError(err).Warn("Не удалось сбросить флаг аудио")
		}
	}()

	if !m.settings.CatchUpEnabled {
		return
	}
	if tainted {
		log.Info("Компенсация за выключенный экран не начислена: майнинг был на паузе")
		return
	}

	minutes := CatchUpMinutes(offAt, now, m.settings.CatchUpMaxMinutes)
	if minutes <= 0 {
		return
	}
	applied, err := m.ledger.Insert(ctx, minutes, ledger.TypeMining, catchUpReason)
	if err != nil {
		log.WithError(err).Error("Ошибка начисления компенсации")
		return
	}
	metrics.MinedPoints.WithLabelValues("catchup").Add(float64(applied))
	log.WithFields(log.Fields{
		"minutes": minutes,
		"points":  applied,
	}).Info("Начислена компенсация за выключенный экран")
}

// onStateChange: пауза при выключенном экране лишает компенсации.
func (m *Miner) onStateChange(state blocking.MiningState) {
	if state != blocking.Blocked || m.isScreenOn() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.prefs.SetAudioBlockedOnScreenOff(ctx, true); err != nil {
		log.WithError(err).Warn("Не удалось отметить паузу при выключенном экране")
	}
}

func (m *Miner) isScreenOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenOn
}

// CatchUpMinutes: целые минуты между выключением и включением экрана,
// не больше max (0 - без ограничения).
func CatchUpMinutes(offAt, onAt time.Time, max int64) int64 {
	if offAt.IsZero() || !onAt.After(offAt) {
		return 0
	}
	minutes := int64(onAt.Sub(offAt) / time.Minute)
	if max > 0 && minutes > max {
		return max
	}
	return minutes
}
