// Package blocklist - список блокируемых приложений и лимит по тарифу.
package blocklist

import (
	"time"

	"serotonyl.ru/faust/internal/features/prefs"
)

// BlockedApp: приложение, запуск которого вызывает переговоры.
type BlockedApp struct {
	PackageName string    `db:"package_name"`
	AppName     string    `db:"app_name"`
	BlockedAt   time.Time `db:"blocked_at"`
}

// Unlimited: лимит тарифа FAUST_PRO.
const Unlimited = -1

// MaxForTier возвращает лимит тарифа; testMode > 0 имеет приоритет.
func MaxForTier(tier prefs.Tier, testMode int) int {
	if testMode > 0 {
		return testMode
	}
	switch tier {
	case prefs.TierStandard:
		return 3
	case prefs.TierPro:
		return Unlimited
	default:
		return 1
	}
}

// PackageNames возвращает имена пакетов списка.
func PackageNames(apps []*BlockedApp) []string {
	out := make([]string, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.PackageName)
	}
	return out
}
