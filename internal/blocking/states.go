// Package blocking - ядро блокировки: машина состояний майнинга,
// машина состояний оверлея, конвейер фильтров и координатор,
// который превращает поток событий окна в решения ALLOWED/BLOCKED.
package blocking

import (
	"time"

	"serotonyl.ru/faust/internal/features/persona"
)

// MiningState: эффективное состояние майнинга.
type MiningState int

const (
	Allowed MiningState = iota
	Blocked
)

func (s MiningState) String() string {
	if s == Blocked {
		return "BLOCKED"
	}
	return "ALLOWED"
}

// OverlayState: состояние оверлея.
type OverlayState int

const (
	OverlayIdle OverlayState = iota
	OverlayShowing
	OverlayDismissing
)

func (s OverlayState) String() string {
	switch s {
	case OverlayShowing:
		return "SHOWING"
	case OverlayDismissing:
		return "DISMISSING"
	default:
		return "IDLE"
	}
}

// Action: действие пользователя на оверлее.
type Action string

const (
	ActionProceed Action = "proceed" // 강행
	ActionCancel  Action = "cancel"  // 철회
)

// WindowEvent: смена окна переднего плана.
// WindowID = -1, если ОС не сообщила идентификатор окна.
type WindowEvent struct {
	Package   string
	ClassName string
	WindowID  int
	At        time.Time
}

// OverlayRequest: команда устройству показать оверлей.
type OverlayRequest struct {
	ID        string
	Package   string
	AppName   string
	Countdown time.Duration
	Persona   persona.Profile
}
