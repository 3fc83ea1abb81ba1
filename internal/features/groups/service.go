// Package groups - service.go содержит правила классификации.
package groups

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
)

// store: то, что сервису нужно от хранилища.
type store interface {
	Override(ctx context.Context, pkg string, group GroupType) (bool, bool, error)
	SetOverride(ctx context.Context, pkg string, group GroupType, included bool) error
	InsertOverrideIfAbsent(ctx context.Context, pkg string, group GroupType, included bool) (bool, error)
	Installed(ctx context.Context, pkg string) (*InstalledApp, error)
	ReplaceInventory(ctx context.Context, apps []InstalledApp) error
}

// Service классифицирует приложения.
type Service struct {
	repo store
}

// NewService создаёт сервис групп.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// IsAppInGroup: входит ли пакет в группу.
// Любая ошибка означает «не входит»: блокировка важнее пропуска.
func (s *Service) IsAppInGroup(ctx context.Context, pkg string, group GroupType) bool {
	included, found, err := s.repo.Override(ctx, pkg, group)
	if err != nil {
		log.WithError(err).WithField("package", pkg).Warn("Не удалось прочитать группу приложения")
		return false
	}
	if found {
		return included
	}

	app, err := s.repo.Installed(ctx, pkg)
	if err != nil {
		log.WithError(err).WithField("package", pkg).Warn("Не удалось прочитать категорию приложения")
		return false
	}
	if app == nil {
		return false
	}
	return CategoryMatches(EffectiveCategory(pkg, app.Category), group)
}

// AppName возвращает имя приложения, а при любой проблеме - сам пакет.
func (s *Service) AppName(ctx context.Context, pkg string) string {
	app, err := s.repo.Installed(ctx, pkg)
	if err != nil || app == nil || strings.TrimSpace(app.Name) == "" {
		return pkg
	}
	return app.Name
}

// SetOverride явно включает или исключает пакет из группы.
func (s *Service) SetOverride(ctx context.Context, pkg string, group GroupType, included bool) error {
	if strings.TrimSpace(pkg) == "" {
		return common.ErrEmptyPackage
	}
	return s.repo.SetOverride(ctx, pkg, group, included)
}

// SyncInventory сохраняет инвентарь устройства и досеивает встроенные списки.
func (s *Service) SyncInventory(ctx context.Context, apps []InstalledApp) error {
	clean := make([]InstalledApp, 0, len(apps))
	for _, app := range apps {
		if app.Package == "" {
			continue
		}
		if app.Name == "" {
			app.Name = app.Package
		}
		app.Category = strings.ToUpper(app.Category)
		clean = append(clean, app)
	}
	if err := s.repo.ReplaceInventory(ctx, clean); err != nil {
		return err
	}
	log.WithField("apps", len(clean)).Info("Инвентарь приложений обновлён")
	return s.SeedDefaults(ctx)
}

// SeedDefaults включает установленные приложения из встроенных списков,
// если у них ещё нет явной записи.
func (s *Service) SeedDefaults(ctx context.Context) error {
	seeded := 0
	for _, group := range []GroupType{GroupSNS, GroupOTT} {
		for _, pkg := range DefaultMembers(group) {
			app, err := s.repo.Installed(ctx, pkg)
			if err != nil {
				return err
			}
			if app == nil {
				continue
			}
			inserted, err := s.repo.InsertOverrideIfAbsent(ctx, pkg, group, true)
			if err != nil {
				return err
			}
			if inserted {
				seeded++
			}
		}
	}
	if seeded > 0 {
		log.WithField("count", seeded).Info("Встроенные группы засеяны")
	}
	return nil
}
