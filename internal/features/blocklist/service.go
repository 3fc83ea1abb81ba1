// Package blocklist - service.go применяет лимит тарифа и рассылает список подписчикам.
package blocklist

import (
	"context"
	"slices"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/features/prefs"
)

// Service управляет списком блокировки.
type Service struct {
	repo  *Repository
	prefs *prefs.Service

	mu   sync.Mutex
	subs map[chan []string]struct{}
	last []string
}

// NewService создаёт сервис списка блокировки.
func NewService(repo *Repository, prefsService *prefs.Service) *Service {
	return &Service{
		repo:  repo,
		prefs: prefsService,
		subs:  make(map[chan []string]struct{}),
	}
}

// MaxBlockedApps: лимит с учётом тарифа и тестового режима (-1 - без лимита).
func (s *Service) MaxBlockedApps(ctx context.Context) (int, error) {
	tier, err := s.prefs.Tier(ctx)
	if err != nil {
		return 0, err
	}
	testMode, err := s.prefs.TestModeMaxApps(ctx)
	if err != nil {
		return 0, err
	}
	return MaxForTier(tier, testMode), nil
}

// Add добавляет приложение в список.
func (s *Service) Add(ctx context.Context, pkg, name string) error {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return common.ErrEmptyPackage
	}
	if strings.TrimSpace(name) == "" {
		name = pkg
	}

	limit, err := s.MaxBlockedApps(ctx)
	if err != nil {
		return err
	}
	ok, err := s.repo.Add(ctx, pkg, name, limit)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrBlockLimitReached
	}

	log.WithFields(log.Fields{
		"package": pkg,
		"limit":   limit,
	}).Info("Приложение добавлено в список блокировки")
	s.refresh(ctx)
	return nil
}

// Remove удаляет приложение из списка.
func (s *Service) Remove(ctx context.Context, pkg string) error {
	removed, err := s.repo.Remove(ctx, strings.TrimSpace(pkg))
	if err != nil {
		return err
	}
	if !removed {
		return common.ErrAppNotBlocked
	}
	log.WithField("package", pkg).Info("Приложение убрано из списка блокировки")
	s.refresh(ctx)
	return nil
}

// List возвращает текущий список.
func (s *Service) List(ctx context.Context) ([]*BlockedApp, error) {
	return s.repo.List(ctx)
}

// Subscribe возвращает поток списков пакетов: сначала текущий, дальше после каждого изменения.
// Каждое значение - полный список, а не разница.
func (s *Service) Subscribe(ctx context.Context) (<-chan []string, func()) {
	ch := make(chan []string, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}

	apps, err := s.repo.List(ctx)
	if err != nil {
		log.WithError(err).Warn("Не удалось получить список блокировки для подписчика")
		return ch, cancel
	}
	names := PackageNames(apps)
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		offer(ch, names)
	}
	s.last = names
	s.mu.Unlock()
	return ch, cancel
}

// refresh перечитывает список и рассылает его при изменении.
func (s *Service) refresh(ctx context.Context) {
	apps, err := s.repo.List(ctx)
	if err != nil {
		log.WithError(err).Warn("Не удалось перечитать список блокировки")
		return
	}
	names := PackageNames(apps)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && slices.Equal(s.last, names) {
		return
	}
	s.last = names
	for ch := range s.subs {
		offer(ch, names)
	}
}

// offer кладёт значение, вытесняя непрочитанное.
func offer(ch chan []string, v []string) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
