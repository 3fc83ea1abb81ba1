// Package app инициализирует все компоненты демона.
// app.go собирает БД-пул, репозитории, сервисы, ядро блокировки,
// мост устройства, майнинг, планировщик и бота владельца, а затем
// запускает их под одной группой errgroup.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/faust/internal/blocking"
	"serotonyl.ru/faust/internal/bot"
	"serotonyl.ru/faust/internal/bridge"
	"serotonyl.ru/faust/internal/config"
	"serotonyl.ru/faust/internal/db/postgres"
	"serotonyl.ru/faust/internal/features/blocklist"
	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/features/ledger"
	"serotonyl.ru/faust/internal/features/owner"
	"serotonyl.ru/faust/internal/features/passes"
	"serotonyl.ru/faust/internal/features/penalty"
	"serotonyl.ru/faust/internal/features/persona"
	"serotonyl.ru/faust/internal/features/prefs"
	"serotonyl.ru/faust/internal/jobs"
	"serotonyl.ru/faust/internal/metrics"
	"serotonyl.ru/faust/internal/mining"
)

// App содержит все компоненты демона.
type App struct {
	DB          *pgxpool.Pool
	Bridge      *bridge.Bridge
	Coordinator *blocking.Coordinator
	Miner       *mining.Miner
	Scheduler   *jobs.Scheduler
	Bot         *bot.Bot // nil, если бот выключен

	ledger    *ledger.Service
	blocklist *blocklist.Service
	passes    *passes.Service
	groups    *groups.Service
	blocked   *blocking.BlockedSet
}

// New создаёт и связывает компоненты.
// Порядок инициализации важен - компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	loc := cfg.Location()

	// === 2. Сервисы ===
	prefsService := prefs.NewService(prefs.NewRepository(pool))
	ledgerService := ledger.NewService(ledger.NewRepository(pool), prefsService)
	passService := passes.NewService(passes.NewRepository(pool), ledgerService, prefsService, loc)
	groupService := groups.NewService(groups.NewRepository(pool))
	blocklistService := blocklist.NewService(blocklist.NewRepository(pool), prefsService)
	personaProvider := persona.NewProvider(prefsService)
	penaltyService := penalty.NewService(ledgerService, prefsService, cfg.PenaltyLaunch, cfg.PenaltyQuit)
	ownerService := owner.NewService(owner.NewRepository(pool), cfg.OwnerIDs, cfg.OwnerPasswordHash)

	// === 3. Ядро блокировки и мост устройства ===
	machine := blocking.NewMiningMachine()
	blocked := blocking.NewBlockedSet()

	a := &App{
		DB:        pool,
		ledger:    ledgerService,
		blocklist: blocklistService,
		passes:    passService,
		groups:    groupService,
		blocked:   blocked,
	}

	// Планировщик нужен хуку загрузки моста, уведомления подключим ниже
	var notify func(string)
	a.Scheduler = jobs.NewScheduler(ledgerService, passService, prefsService, loc,
		cfg.WeeklyResetThreshold, func(text string) {
			if notify != nil {
				notify(text)
			}
		})

	a.Bridge = bridge.New(bridge.Settings{
		ListenAddr:      cfg.BridgeListenAddr,
		EventsPerSecond: cfg.BridgeEventsPerSecond,
		EventBurst:      cfg.BridgeEventBurst,
	}, bridge.Hooks{
		OnBoot: func(ctx context.Context) {
			a.Scheduler.RearmFromPrefs(ctx)
			if _, err := a.Scheduler.CatchUpWeekly(ctx); err != nil {
				log.WithError(err).Error("Ошибка догоняющего недельного сброса после загрузки")
			}
		},
		OnInventory: groupService.SyncInventory,
		OnRinger:    personaProvider.SetRinger,
	})

	var foreground func() string
	a.Miner = mining.NewMiner(ledgerService, prefsService, machine, func() string {
		if foreground == nil {
			return ""
		}
		return foreground()
	}, mining.Settings{
		Interval:          cfg.MiningInterval,
		CatchUpMaxMinutes: cfg.MiningCatchUpMaxMinutes,
		CatchUpEnabled:    cfg.FeatureCatchUpEnabled,
	})

	a.Coordinator = blocking.NewCoordinator(blocking.Deps{
		Mining:    machine,
		Overlay:   blocking.NewOverlayMachine(cfg.OverlayCountdown),
		Blocked:   blocked,
		Device:    a.Bridge,
		Passes:    passService,
		Groups:    groupService,
		Penalties: penaltyService,
		Personas:  personaProvider,
		Screen:    a.Miner,
	}, blocking.Settings{
		Launchers:         cfg.HomeLaunchers,
		Debounce:          cfg.DebounceWindow,
		HomeCooldown:      cfg.HomeCooldown,
		HomeDetectTimeout: cfg.HomeDetectTimeout,
		DismissDelay:      cfg.DismissDelay,
		Workers:           cfg.WorkerPoolSize,
	})
	foreground = a.Coordinator.Foreground
	a.Bridge.Attach(a.Coordinator)

	// === 4. Бот владельца ===
	if cfg.FeatureBotEnabled {
		b, err := newBot(ctx, cfg, loc, ownerService, prefsService, ledgerService,
			blocklistService, passService, groupService, personaProvider, a.Scheduler)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.Bot = b
		notify = b.Notify
		penaltyService.OnPenalty(b.NotifyPenalty)
		passService.OnExpire(b.NotifyPassExpired)
	} else {
		log.Info("Бот владельца выключен (FEATURE_BOT_ENABLED=false)")
	}

	return a, nil
}

func newBot(
	ctx context.Context,
	cfg *config.Config,
	loc *time.Location,
	ownerService *owner.Service,
	prefsService *prefs.Service,
	ledgerService *ledger.Service,
	blocklistService *blocklist.Service,
	passService *passes.Service,
	groupService *groups.Service,
	personaProvider *persona.Provider,
	scheduler *jobs.Scheduler,
) (*bot.Bot, error) {
	api, err := telego.NewBot(cfg.TelegramBotToken, telego.WithDefaultLogger(cfg.AppEnv == "development", true))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := api.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	return bot.New(api, bot.Settings{
		MaxInflight:          cfg.BotMaxInflight,
		UpdateTimeoutSeconds: cfg.BotUpdateTimeoutSeconds,
		RateLimitRequests:    cfg.RateLimitRequests,
		RateLimitWindow:      cfg.RateLimitWindow,
	}, ownerService, bot.Handlers{
		Ledger:    ledger.NewHandler(ledgerService, api, loc),
		Blocklist: blocklist.NewHandler(blocklistService, api),
		Passes:    passes.NewHandler(passService, api, loc),
		Groups:    groups.NewHandler(groupService, api),
		Persona:   persona.NewHandler(personaProvider, api),
		Owner:     owner.NewHandler(ownerService, prefsService, api, scheduler.Rearm),
	}), nil
}

// Run запускает все компоненты и ждёт отмены контекста
// или первой фатальной ошибки.
func (a *App) Run(ctx context.Context) error {
	if err := a.groups.SeedDefaults(ctx); err != nil {
		log.WithError(err).Warn("Не удалось засеять группы по умолчанию")
	}

	g, ctx := errgroup.WithContext(ctx)

	// Кэш блокировок следует за таблицей blocked_apps
	updates, unsubscribe := a.blocklist.Subscribe(ctx)
	defer unsubscribe()
	g.Go(func() error {
		a.blocked.Follow(ctx, updates)
		return nil
	})

	balances, stopBalances := a.ledger.Subscribe(ctx)
	defer stopBalances()
	g.Go(func() error {
		followBalance(ctx, balances)
		return nil
	})

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()
	defer a.passes.Stop()

	g.Go(func() error { return a.Coordinator.Run(ctx) })
	g.Go(func() error { return a.Miner.Run(ctx) })
	g.Go(func() error { return a.Bridge.Run(ctx) })
	if a.Bot != nil {
		g.Go(func() error { return a.Bot.Start(ctx) })
	}

	log.Info("=== faustd готов к работе ===")
	return g.Wait()
}

// Close освобождает пул соединений.
func (a *App) Close() {
	a.DB.Close()
}

func followBalance(ctx context.Context, balances <-chan int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-balances:
			if !ok {
				return
			}
			metrics.Balance.Set(float64(v))
		}
	}
}

// Migrate применяет миграции и закрывает пул.
func Migrate(ctx context.Context, cfg *config.Config) error {
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	defer pool.Close()
	return postgres.RunMigrations(ctx, pool)
}
