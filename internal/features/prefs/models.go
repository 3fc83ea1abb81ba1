// Package prefs хранит настройки «ключ-значение» вне реляционной схемы:
// тариф, зеркало баланса, отметки майнинга, экрана, активного пропуска и т.д.
package prefs

import (
	"strings"

	"serotonyl.ru/faust/internal/common"
)

// Ключи настроек.
const (
	KeyUserTier                = "user_tier"
	KeyCurrentPoints           = "current_points"
	KeyLastMiningTime          = "last_mining_time"
	KeyLastMiningApp           = "last_mining_app"
	KeyLastResetTime           = "last_reset_time"
	KeyServiceRunning          = "is_service_running"
	KeyPersonaType             = "persona_type"
	KeyLastScreenOffTime       = "last_screen_off_time"
	KeyLastScreenOnTime        = "last_screen_on_time"
	KeyTestModeMaxApps         = "test_mode_max_apps"
	KeyAudioBlockedOnScreenOff = "audio_blocked_on_screen_off"
	KeyCustomDailyResetTime    = "custom_daily_reset_time"
	KeyActivePassItemType      = "active_pass_item_type"
	KeyActivePassStartTime     = "active_pass_start_time"
)

// Tier: уровень подписки пользователя.
type Tier string

const (
	TierFree     Tier = "FREE"
	TierStandard Tier = "STANDARD"
	TierPro      Tier = "FAUST_PRO"
)

// ParseTier разбирает тариф без учёта регистра ("pro" тоже принимается).
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FREE":
		return TierFree, nil
	case "STANDARD":
		return TierStandard, nil
	case "FAUST_PRO", "PRO":
		return TierPro, nil
	}
	return "", common.ErrUnknownTier
}
