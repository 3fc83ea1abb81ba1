// Package penalty начисляет штрафы за исход переговоров:
// «강행» (проход) и «철회» (отступление). Сумма зависит от тарифа.
package penalty

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/features/ledger"
	"serotonyl.ru/faust/internal/features/prefs"
)

// Kind: вид штрафа.
type Kind string

const (
	KindLaunch Kind = "launch"
	KindQuit   Kind = "quit"
)

// Notice сообщает о применённом штрафе.
type Notice struct {
	Kind    Kind
	Package string
	AppName string
	Points  int64 // Фактически списано (после ограничения балансом)
}

// Service применяет штрафы через журнал.
type Service struct {
	ledger *ledger.Service
	prefs  *prefs.Service
	launch int64
	quit   int64

	mu       sync.Mutex
	handlers []func(Notice)
}

// NewService создаёт сервис штрафов с суммами из конфигурации.
func NewService(ledgerService *ledger.Service, prefsService *prefs.Service, launch, quit int64) *Service {
	return &Service{
		ledger: ledgerService,
		prefs:  prefsService,
		launch: launch,
		quit:   quit,
	}
}

// OnPenalty регистрирует получателя уведомлений о штрафах.
func (s *Service) OnPenalty(fn func(Notice)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// LaunchAmount: штраф за проход, одинаковый для всех тарифов.
func LaunchAmount(base int64, _ prefs.Tier) int64 {
	return base
}

// QuitAmount: штраф за отступление: для FAUST_PRO ноль.
func QuitAmount(base int64, tier prefs.Tier) int64 {
	if tier == prefs.TierPro {
		return 0
	}
	return base
}

// ApplyLaunchPenalty списывает штраф за проход.
func (s *Service) ApplyLaunchPenalty(ctx context.Context, pkg, appName string) (int64, error) {
	tier, err := s.prefs.Tier(ctx)
	if err != nil {
		return 0, err
	}
	return s.apply(ctx, KindLaunch, pkg, appName, LaunchAmount(s.launch, tier),
		fmt.Sprintf("앱 강행 실행: %s", appName))
}

// ApplyQuitPenalty списывает штраф за отступление (может быть нулевым).
func (s *Service) ApplyQuitPenalty(ctx context.Context, pkg, appName string) (int64, error) {
	tier, err := s.prefs.Tier(ctx)
	if err != nil {
		return 0, err
	}
	return s.apply(ctx, KindQuit, pkg, appName, QuitAmount(s.quit, tier),
		fmt.Sprintf("앱 철회: %s", appName))
}

func (s *Service) apply(ctx context.Context, kind Kind, pkg, appName string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	applied, err := s.ledger.ApplyPenalty(ctx, amount, reason)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"kind":    kind,
		"package": pkg,
		"amount":  amount,
		"applied": applied,
	}).Info("Штраф применён")

	if applied > 0 {
		n := Notice{Kind: kind, Package: pkg, AppName: appName, Points: applied}
		s.mu.Lock()
		hooks := append([]func(Notice){}, s.handlers...)
		s.mu.Unlock()
		for _, fn := range hooks {
			fn(n)
		}
	}
	return applied, nil
}
