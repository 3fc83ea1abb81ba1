package passes

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/features/groups"
)

// OnExpire регистрирует обработчик окончания пропуска.
func (s *Service) OnExpire(fn func(ItemType)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = append(s.onExpire, fn)
}

// ActivatePass запускает пропуск с текущего момента и взводит таймер окончания.
// Минутная проверка планировщика страхует таймер после перезапуска.
func (s *Service) ActivatePass(ctx context.Context, item ItemType) error {
	r, _ := RuleFor(item)
	now := s.now()
	if err := s.prefs.SetActivePass(ctx, string(item), now); err != nil {
		return err
	}

	s.mu.Lock()
	if s.expiry != nil {
		s.expiry.Stop()
	}
	s.expiry = time.AfterFunc(r.Duration, func() {
		if _, err := s.ClearIfExpired(context.Background()); err != nil {
			log.WithError(err).Warn("Не удалось снять истёкший пропуск")
		}
	})
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"item":       item,
		"expires_at": now.Add(r.Duration).Format(time.RFC3339),
	}).Info("Пропуск активирован")
	return nil
}

// GetActivePass возвращает действующий пропуск или nil.
// Истёкший пропуск снимается прямо здесь.
func (s *Service) GetActivePass(ctx context.Context) (*ActivePass, error) {
	raw, start, err := s.prefs.ActivePass(ctx)
	if err != nil || raw == "" {
		return nil, err
	}
	item, perr := ParseItem(raw)
	if perr != nil {
		log.WithField("item", raw).Warn("Сохранён неизвестный пропуск, снимаю")
		return nil, s.prefs.ClearActivePass(ctx)
	}

	r, _ := RuleFor(item)
	if IsExpired(s.now(), start, r.Duration) {
		_, err := s.ClearIfExpired(ctx)
		return nil, err
	}
	return &ActivePass{Item: item, StartTime: start, ExpiresAt: start.Add(r.Duration)}, nil
}

// ClearIfExpired снимает пропуск, только если он истёк. Повторный вызов ничего не делает.
func (s *Service) ClearIfExpired(ctx context.Context) (bool, error) {
	item, cleared, err := s.clearIfExpired(ctx)
	if err != nil || !cleared {
		return false, err
	}

	s.mu.Lock()
	hooks := append([]func(ItemType){}, s.onExpire...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(item)
	}
	return true, nil
}

func (s *Service) clearIfExpired(ctx context.Context) (ItemType, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, start, err := s.prefs.ActivePass(ctx)
	if err != nil || raw == "" {
		return "", false, err
	}
	item, _ := ParseItem(raw)
	r, ok := RuleFor(item)
	if ok && !IsExpired(s.now(), start, r.Duration) {
		return "", false, nil
	}
	if err := s.prefs.ClearActivePass(ctx); err != nil {
		return "", false, err
	}
	log.WithField("item", raw).Info("Пропуск истёк")
	return item, true, nil
}

// IsPassActiveForGroup: SNS покрывает дофаминовый шот, OTT - кинопропуск.
func (s *Service) IsPassActiveForGroup(ctx context.Context, group groups.GroupType) (bool, error) {
	pass, err := s.GetActivePass(ctx)
	if err != nil || pass == nil {
		return false, err
	}
	switch group {
	case groups.GroupSNS:
		return pass.Item == DopamineShot, nil
	case groups.GroupOTT:
		return pass.Item == CinemaPass, nil
	}
	return false, nil
}

// IsStandardTicketActive: действует ли билет (покрывает всё, кроме SNS).
func (s *Service) IsStandardTicketActive(ctx context.Context) (bool, error) {
	pass, err := s.GetActivePass(ctx)
	if err != nil || pass == nil {
		return false, err
	}
	return pass.Item == StandardTicket, nil
}

// Stop останавливает таймер окончания.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
	}
}
