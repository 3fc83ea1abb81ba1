package blocking

import (
	"slices"
	"strings"
)

// Пакеты, события которых никогда не доходят до координатора.
var ignoredPackages = []string{
	"com.android.systemui",
	"com.android.keyguard",
}

// selfPackage: пакет оболочки на устройстве, рисующей оверлей.
const selfPackage = "com.faust"

// Stage: этап конвейера, отбросивший событие (метка метрики).
type Stage string

const (
	StageIgnored   Stage = "ignored"
	StageSelf      Stage = "self"
	StageClass     Stage = "class"
	StageDuplicate Stage = "duplicate"
	StageOverlay   Stage = "overlay"
	StageStale     Stage = "stale"
	StageDropped   Stage = "dropped"
)

// Launchers: пакеты домашнего экрана.
type Launchers map[string]struct{}

func NewLaunchers(pkgs []string) Launchers {
	l := make(Launchers, len(pkgs))
	for _, p := range pkgs {
		if p = strings.TrimSpace(p); p != "" {
			l[p] = struct{}{}
		}
	}
	return l
}

func (l Launchers) Contains(pkg string) bool {
	_, ok := l[pkg]
	return ok
}

// IsIgnored: системный UI и экран блокировки.
func IsIgnored(pkg string) bool {
	return slices.Contains(ignoredPackages, pkg)
}

// IsSelfRepaint: перерисовка собственного оверлея.
func IsSelfRepaint(pkg, className string) bool {
	return pkg == selfPackage && strings.Contains(className, "FrameLayout")
}

// IsValidClass пропускает только Activity/Dialog/Fragment.
// Layout и View сыплются часто и бесконечно сбрасывали бы дебаунс.
// Пустой класс и лаунчер пропускаются всегда.
func IsValidClass(className string, home bool) bool {
	if home || className == "" {
		return true
	}
	return strings.Contains(className, "Activity") ||
		strings.Contains(className, "Dialog") ||
		strings.Contains(className, "Fragment")
}

// IsDuplicate: повтор того же окна того же пакета, пока оверлей не IDLE.
// После закрытия оверлея повторный запуск того же приложения разрешён.
func IsDuplicate(ev WindowEvent, lastWindowID int, lastProcessed string, state OverlayState) bool {
	if state == OverlayIdle {
		return false
	}
	if ev.WindowID != -1 {
		return ev.WindowID == lastWindowID && ev.Package == lastProcessed
	}
	return ev.Package == lastProcessed
}

// IsStale: после дебаунса пакет уже не совпадает с последним увиденным.
// Переход с домашнего экрана пропускается всегда.
func IsStale(pkg, latest string, launchers Launchers) bool {
	if latest == "" || latest == pkg {
		return false
	}
	return !launchers.Contains(latest)
}

// prefilter: первые этапы без состояния, до постановки в очередь.
func prefilter(ev WindowEvent, launchers Launchers) (Stage, bool) {
	if ev.Package == "" || IsIgnored(ev.Package) {
		return StageIgnored, false
	}
	if IsSelfRepaint(ev.Package, ev.ClassName) {
		return StageSelf, false
	}
	if !IsValidClass(ev.ClassName, launchers.Contains(ev.Package)) {
		return StageClass, false
	}
	return "", true
}
