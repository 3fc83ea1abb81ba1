// Package bridge - WebSocket-мост к оболочке на устройстве.
// protocol.go описывает конверт {type, ts, payload} и полезные нагрузки.
package bridge

import (
	"encoding/json"

	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/features/persona"
)

// Входящие типы сообщений.
const (
	TypeWindow        = "window"
	TypeAudio         = "audio"
	TypeScreen        = "screen"
	TypeBoot          = "boot"
	TypeInventory     = "inventory"
	TypeOverlayAction = "overlay_action"
	TypeRinger        = "ringer"
)

// Исходящие типы сообщений.
const (
	TypeShowOverlay    = "show_overlay"
	TypeDismissOverlay = "dismiss_overlay"
	TypeNavigateHome   = "navigate_home"
)

// Envelope: конверт любого сообщения. ts - миллисекунды Unix.
type Envelope struct {
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WindowPayload struct {
	Package   string `json:"package"`
	ClassName string `json:"className"`
	WindowID  *int   `json:"windowId,omitempty"` // нет: значит -1
}

type AudioPayload struct {
	Active bool `json:"active"`
}

type ScreenPayload struct {
	On bool `json:"on"`
}

type InventoryPayload struct {
	Apps []groups.InstalledApp `json:"apps"`
}

type OverlayActionPayload struct {
	OverlayID string `json:"overlayId"`
	Action    string `json:"action"`
}

type RingerPayload struct {
	Silent bool `json:"silent"`
}

type ShowOverlayPayload struct {
	OverlayID        string          `json:"overlayId"`
	Package          string          `json:"package"`
	AppName          string          `json:"appName"`
	CountdownSeconds int             `json:"countdownSeconds"`
	Persona          persona.Profile `json:"persona"`
}

type DismissOverlayPayload struct {
	OverlayID string `json:"overlayId"`
}
