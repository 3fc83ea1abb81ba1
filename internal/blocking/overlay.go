package blocking

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/metrics"
)

// Instance: живой оверлей.
type Instance struct {
	ID      string
	Package string
	AppName string
	ShownAt time.Time
}

// OverlayMachine владеет единственным экземпляром оверлея.
// Состояние меняется под мьютексом синхронно, до любой асинхронной работы.
type OverlayMachine struct {
	mu        sync.Mutex
	state     OverlayState
	current   *Instance
	countdown time.Duration
	now       func() time.Time
}

// NewOverlayMachine создаёт машину с заданной длительностью отсчёта.
func NewOverlayMachine(countdown time.Duration) *OverlayMachine {
	return &OverlayMachine{countdown: countdown, now: time.Now}
}

func (m *OverlayMachine) State() OverlayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current возвращает копию живого экземпляра или nil.
func (m *OverlayMachine) Current() *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	c := *m.current
	return &c
}

// Live: есть экземпляр или машина не в IDLE.
func (m *OverlayMachine) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != OverlayIdle || m.current != nil
}

// Countdown: длительность отсчёта до разблокировки кнопок.
func (m *OverlayMachine) Countdown() time.Duration { return m.countdown }

// Begin резервирует оверлей для пакета. Возвращает false, если оверлей
// уже есть или машина не в IDLE: вторая попытка показа - no-op.
func (m *OverlayMachine) Begin(pkg, appName string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != OverlayIdle || m.current != nil {
		log.WithFields(log.Fields{
			"package": pkg,
			"state":   m.state,
		}).Debug("Оверлей уже активен: повторный показ пропущен")
		return nil, false
	}

	m.state = OverlayShowing
	m.current = &Instance{
		ID:      uuid.NewString(),
		Package: pkg,
		AppName: appName,
		ShownAt: m.now(),
	}
	metrics.OverlayState.Set(float64(m.state))
	c := *m.current
	return &c, true
}

// Take забирает живой экземпляр и переводит машину в next
// (IDLE или DISMISSING). Без force действие принимается только для
// текущего id и только после окончания отсчёта. С force и пустым id
// забирается любой живой экземпляр.
func (m *OverlayMachine) Take(id string, next OverlayState, force bool) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || (id != "" && m.current.ID != id) || (id == "" && !force) {
		return nil, common.ErrStaleOverlay
	}
	if !force && m.now().Sub(m.current.ShownAt) < m.countdown {
		return nil, common.ErrCountdownRunning
	}

	taken := m.current
	m.current = nil
	m.state = next
	metrics.OverlayState.Set(float64(m.state))
	return taken, nil
}

// Settle завершает DISMISSING → IDLE. Возвращает true, если был переход.
func (m *OverlayMachine) Settle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != OverlayDismissing || m.current != nil {
		return false
	}
	m.state = OverlayIdle
	metrics.OverlayState.Set(float64(m.state))
	return true
}
