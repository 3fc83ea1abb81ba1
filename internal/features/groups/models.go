// Package groups относит приложения к группам SNS и OTT.
// Явная запись в app_groups решает всегда; без неё работает категория,
// которую устройство сообщило в инвентаре установленных приложений.
package groups

import (
	"strings"

	"serotonyl.ru/faust/internal/common"
)

// GroupType: группа приложений, которую может покрывать пропуск.
type GroupType string

const (
	GroupSNS GroupType = "SNS"
	GroupOTT GroupType = "OTT"
)

// ParseGroup разбирает имя группы без учёта регистра.
func ParseGroup(s string) (GroupType, error) {
	switch GroupType(strings.ToUpper(strings.TrimSpace(s))) {
	case GroupSNS:
		return GroupSNS, nil
	case GroupOTT:
		return GroupOTT, nil
	}
	return "", common.ErrUnknownGroup
}

// Категории приложений, как их передаёт устройство.
const (
	CategorySocial  = "SOCIAL"
	CategoryVideo   = "VIDEO"
	CategoryBrowser = "BROWSER"
)

// browserPackage всегда считается браузером: внутри него открываются соцсети,
// но сам процесс к SNS не относится.
const browserPackage = "com.android.chrome"

// InstalledApp: строка инвентаря устройства.
type InstalledApp struct {
	Package  string `json:"package" db:"package_name"`
	Name     string `json:"name" db:"app_name"`
	Category string `json:"category" db:"category"`
}

// EffectiveCategory возвращает категорию с учётом исключения для браузера.
func EffectiveCategory(pkg, reported string) string {
	if pkg == browserPackage {
		return CategoryBrowser
	}
	return strings.ToUpper(strings.TrimSpace(reported))
}

// CategoryMatches: попадает ли категория в группу.
func CategoryMatches(category string, group GroupType) bool {
	switch group {
	case GroupSNS:
		return category == CategorySocial
	case GroupOTT:
		return category == CategoryVideo
	}
	return false
}

// Встроенные списки, которые засеваются как явные включения
// для установленных приложений без собственной записи.
var defaultMembers = map[GroupType][]string{
	GroupSNS: {
		"com.instagram.android",
		"com.facebook.katana",
		"com.twitter.android",
		"com.zhiliaoapp.musically",
		"com.snapchat.android",
		"com.kakao.talk",
		"com.nhn.android.band",
		"com.everytime.v2",
		"com.reddit.frontpage",
		"com.pinterest",
		"org.telegram.messenger",
		"com.discord",
	},
	GroupOTT: {
		"com.netflix.mediaclient",
		"com.google.android.youtube",
		"com.disney.disneyplus",
		"com.wavve.player",
		"net.cj.cjhv.gs.tving",
		"com.coupang.mobile.play",
		"com.frograms.wplay",
		"tv.twitch.android.app",
		"com.amazon.avod.thirdpartyclient",
	},
}

// DefaultMembers возвращает встроенный список группы.
func DefaultMembers(group GroupType) []string {
	return defaultMembers[group]
}
