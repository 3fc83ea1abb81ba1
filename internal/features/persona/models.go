// Package persona описывает «характер» оверлея: фразу, которую нужно перепечатать,
// вибрацию и звук. Воспроизведение - дело устройства, здесь только профиль.
package persona

import (
	"strings"

	"serotonyl.ru/faust/internal/common"
)

// Type: персона, выбранная пользователем.
type Type string

const (
	Street      Type = "STREET"      // Резкая, неровный ритм
	Calm        Type = "CALM"        // Медленная и спокойная
	Diplomatic  Type = "DIPLOMATIC"  // Ровный, настойчивый ритм
	Comfortable Type = "COMFORTABLE" // Мягкая, без вибрации
)

// DefaultType используется, если персона не выбрана или сохранена с ошибкой.
const DefaultType = Street

// ParseType разбирает имя персоны без учёта регистра.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case Street, Calm, Diplomatic, Comfortable:
		return t, nil
	}
	return "", common.ErrUnknownPersona
}

// FeedbackMode: какие каналы обратной связи включать.
type FeedbackMode string

const (
	ModeText          FeedbackMode = "TEXT"
	ModeVibration     FeedbackMode = "VIBRATION"
	ModeAudio         FeedbackMode = "AUDIO"
	ModeTextVibration FeedbackMode = "TEXT_VIBRATION"
	ModeTextAudio     FeedbackMode = "TEXT_AUDIO"
	ModeAll           FeedbackMode = "ALL"
)

// HasVibration сообщает, включена ли вибрация.
func (m FeedbackMode) HasVibration() bool {
	return m == ModeVibration || m == ModeTextVibration || m == ModeAll
}

// HasAudio сообщает, включён ли звук.
func (m FeedbackMode) HasAudio() bool {
	return m == ModeAudio || m == ModeTextAudio || m == ModeAll
}

// Profile уходит на устройство вместе с командой показа оверлея.
type Profile struct {
	Type      Type         `json:"type"`
	Prompt    string       `json:"prompt"`
	Vibration []int64      `json:"vibration,omitempty"` // мс: вибрация, пауза, вибрация...
	Audio     string       `json:"audio,omitempty"`
	Mode      FeedbackMode `json:"mode"`
}
