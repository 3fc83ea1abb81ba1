package blocking

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/metrics"
)

// MiningMachine хранит два независимых флага паузы.
// Майнинг идёт только когда сняты оба: флаг приложения пишет координатор,
// флаг аудио пишет аудио-эвристика, и они не затирают друг друга.
type MiningMachine struct {
	mu            sync.Mutex
	pausedByApp   bool
	pausedByAudio bool
	listeners     []func(MiningState)
}

// NewMiningMachine создаёт машину в состоянии ALLOWED.
func NewMiningMachine() *MiningMachine {
	metrics.MiningState.Set(1)
	return &MiningMachine{}
}

// OnChange регистрирует слушателя смены эффективного состояния.
func (m *MiningMachine) OnChange(fn func(MiningState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Effective: ALLOWED тогда и только тогда, когда оба флага сняты.
func (m *MiningMachine) Effective() MiningState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return effective(m.pausedByApp, m.pausedByAudio)
}

func (m *MiningMachine) PausedByApp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pausedByApp
}

func (m *MiningMachine) PausedByAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pausedByAudio
}

// PauseByApp ставит флаг приложения.
func (m *MiningMachine) PauseByApp() { m.set(&m.pausedByApp, true, "app") }

// ResumeByApp снимает флаг приложения.
func (m *MiningMachine) ResumeByApp() { m.set(&m.pausedByApp, false, "app") }

// SetAudioBlocked ставит или снимает флаг аудио.
func (m *MiningMachine) SetAudioBlocked(blocked bool) { m.set(&m.pausedByAudio, blocked, "audio") }

func (m *MiningMachine) set(flag *bool, v bool, source string) {
	m.mu.Lock()
	before := effective(m.pausedByApp, m.pausedByAudio)
	*flag = v
	after := effective(m.pausedByApp, m.pausedByAudio)
	listeners := m.listeners
	m.mu.Unlock()

	if before == after {
		return
	}
	log.WithFields(log.Fields{
		"source": source,
		"from":   before,
		"to":     after,
	}).Info("Состояние майнинга изменено")
	metrics.BoolGauge(metrics.MiningState, after == Allowed)
	for _, fn := range listeners {
		fn(after)
	}
}

func effective(byApp, byAudio bool) MiningState {
	if byApp || byAudio {
		return Blocked
	}
	return Allowed
}
