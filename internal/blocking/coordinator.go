package blocking

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/bot/middleware"
	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/features/persona"
	"serotonyl.ru/faust/internal/metrics"
)

// Device исполняет команды на устройстве.
type Device interface {
	ShowOverlay(ctx context.Context, req OverlayRequest) error
	DismissOverlay(ctx context.Context, overlayID string) error
	NavigateHome(ctx context.Context) error
}

// PassChecker отвечает, снимает ли активный пропуск блокировку.
type PassChecker interface {
	IsPassActiveForGroup(ctx context.Context, group groups.GroupType) (bool, error)
	IsStandardTicketActive(ctx context.Context) (bool, error)
}

// Classifier относит пакет к группе и выдаёт его имя.
type Classifier interface {
	IsAppInGroup(ctx context.Context, pkg string, group groups.GroupType) bool
	AppName(ctx context.Context, pkg string) string
}

// Penalizer списывает штрафы за исход переговоров.
type Penalizer interface {
	ApplyLaunchPenalty(ctx context.Context, pkg, appName string) (int64, error)
	ApplyQuitPenalty(ctx context.Context, pkg, appName string) (int64, error)
}

type PersonaSource interface {
	Profile(ctx context.Context) persona.Profile
}

// ScreenObserver получает переходы экрана после того, как координатор
// разобрался с оверлеем.
type ScreenObserver interface {
	ScreenOff(ctx context.Context)
	ScreenOn(ctx context.Context)
}

// Deps: зависимости координатора.
type Deps struct {
	Mining    *MiningMachine
	Overlay   *OverlayMachine
	Blocked   *BlockedSet
	Device    Device
	Passes    PassChecker
	Groups    Classifier
	Penalties Penalizer
	Personas  PersonaSource
	Screen    ScreenObserver // может быть nil
}

// Settings: тайминги и размеры.
type Settings struct {
	Launchers         []string
	Debounce          time.Duration
	HomeCooldown      time.Duration
	HomeDetectTimeout time.Duration
	DismissDelay      time.Duration
	QueueSize         int
	Workers           int
}

// Внутренние сообщения очереди координатора.
type (
	windowMsg struct{ ev WindowEvent }
	audioMsg  struct{ active bool }
	screenMsg struct{ on bool }
	actionMsg struct {
		id     string
		action Action
	}
	settledMsg struct{}
	homeMsg    struct {
		pkg      string
		cooldown bool
	}
	watchdogMsg struct{}
)

// Coordinator: единственный потребитель событий устройства.
// Всё состояние ниже (кроме атомиков) трогает только горутина Run.
type Coordinator struct {
	deps      Deps
	settings  Settings
	launchers Launchers
	events    chan any
	pool      pond.Pool
	now       func() time.Time

	latest     atomic.Value // string: последний пакет после фильтров без состояния
	foreground atomic.Value // string: последний обработанный пакет

	debounce *time.Timer
	pending  *WindowEvent

	lastWindowID  int
	lastProcessed string
	grace         string // пакет, за который уже заплачен штраф «강행»
	blockedBy     string // пакет, поставивший майнинг на паузу
	cooldownPkg   string
	cooldownAt    time.Time
	audioSuspect  bool // последнее решение по приложению было BLOCKED
}

// NewCoordinator создаёт координатор. Запуск - Run.
func NewCoordinator(deps Deps, settings Settings) *Coordinator {
	if settings.QueueSize <= 0 {
		settings.QueueSize = 256
	}
	if settings.Workers <= 0 {
		settings.Workers = 4
	}
	c := &Coordinator{
		deps:         deps,
		settings:     settings,
		launchers:    NewLaunchers(settings.Launchers),
		events:       make(chan any, settings.QueueSize),
		pool:         pond.NewPool(settings.Workers),
		now:          time.Now,
		lastWindowID: -1,
	}
	c.latest.Store("")
	c.foreground.Store("")
	c.debounce = time.NewTimer(time.Hour)
	c.debounce.Stop()
	return c
}

// Foreground: последний пакет, по которому принято решение.
func (c *Coordinator) Foreground() string {
	return c.foreground.Load().(string)
}

// IsHome: пакет домашнего экрана.
func (c *Coordinator) IsHome(pkg string) bool {
	return c.launchers.Contains(pkg)
}

// HandleWindow принимает смену окна. Этапы без состояния выполняются сразу,
// остальное: в горутине Run. При переполненной очереди событие теряется:
// после дебаунса важно только последнее.
func (c *Coordinator) HandleWindow(ev WindowEvent) {
	if stage, ok := prefilter(ev, c.launchers); !ok {
		c.filtered(stage, ev.Package)
		return
	}
	c.latest.Store(ev.Package)
	select {
	case c.events <- windowMsg{ev: ev}:
	default:
		c.filtered(StageDropped, ev.Package)
		log.WithField("package", ev.Package).Warn("Очередь координатора переполнена: событие потеряно")
	}
}

// HandleAudio принимает изменение аудиосессий.
func (c *Coordinator) HandleAudio(ctx context.Context, active bool) {
	c.post(ctx, audioMsg{active: active})
}

// HandleScreen принимает включение/выключение экрана.
func (c *Coordinator) HandleScreen(ctx context.Context, on bool) {
	c.post(ctx, screenMsg{on: on})
}

// HandleOverlayAction принимает нажатие кнопки оверлея.
func (c *Coordinator) HandleOverlayAction(ctx context.Context, overlayID string, action Action) {
	c.post(ctx, actionMsg{id: overlayID, action: action})
}

func (c *Coordinator) post(ctx context.Context, msg any) {
	select {
	case c.events <- msg:
	case <-ctx.Done():
	}
}

// Run обрабатывает очередь до отмены контекста.
func (c *Coordinator) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"debounce":  c.settings.Debounce,
		"launchers": len(c.launchers),
		"workers":   c.settings.Workers,
	}).Info("Координатор блокировки запущен")
	defer func() {
		c.debounce.Stop()
		c.pool.StopAndWait()
		log.Info("Координатор блокировки остановлен")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.events:
			c.dispatch(ctx, msg)
		case <-c.debounce.C:
			c.step(ctx, c.onDebounced)
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case windowMsg:
		c.step(ctx, func(context.Context) { c.onWindow(m.ev) })
	case audioMsg:
		c.step(ctx, func(context.Context) { c.onAudio(m.active) })
	case screenMsg:
		c.step(ctx, func(ctx context.Context) { c.onScreen(ctx, m.on) })
	case actionMsg:
		c.step(ctx, func(ctx context.Context) { c.onAction(ctx, m.id, m.action) })
	case settledMsg:
		if c.deps.Overlay.Settle() {
			log.Debug("Оверлей закрыт: DISMISSING → IDLE")
		}
	case homeMsg:
		if m.cooldown && m.pkg != "" {
			c.cooldownPkg = m.pkg
			c.cooldownAt = c.now()
		} else {
			c.cooldownPkg = ""
			c.cooldownAt = time.Time{}
		}
	case watchdogMsg:
		if c.deps.Mining.PausedByApp() {
			log.Warn("Домашний экран не обнаружен вовремя: принудительно ALLOWED")
			c.step(ctx, c.transitionAllowed)
		}
	}
}

// step выполняет обработчик, не давая панике остановить координатор.
func (c *Coordinator) step(ctx context.Context, fn func(context.Context)) {
	defer middleware.RecoverFromPanic()
	fn(ctx)
}

func (c *Coordinator) onWindow(ev WindowEvent) {
	if IsDuplicate(ev, c.lastWindowID, c.lastProcessed, c.deps.Overlay.State()) {
		c.filtered(StageDuplicate, ev.Package)
		return
	}
	if c.deps.Overlay.Live() {
		c.filtered(StageOverlay, ev.Package)
		return
	}
	c.lastWindowID = ev.WindowID
	c.pending = &ev
	c.debounce.Reset(c.settings.Debounce)
}

func (c *Coordinator) onDebounced(ctx context.Context) {
	ev := c.pending
	c.pending = nil
	if ev == nil {
		return
	}
	if c.deps.Overlay.Live() {
		c.filtered(StageOverlay, ev.Package)
		return
	}
	if IsStale(ev.Package, c.latest.Load().(string), c.launchers) {
		c.filtered(StageStale, ev.Package)
		return
	}

	if !c.handleLaunch(ctx, ev.Package) {
		return
	}
	c.lastProcessed = ev.Package
	c.foreground.Store(ev.Package)
}

// handleLaunch: правила решения по порядку. false, если событие
// устарело и решение не принято.
func (c *Coordinator) handleLaunch(ctx context.Context, pkg string) bool {
	entry := log.WithField("package", pkg)

	if c.launchers.Contains(pkg) {
		c.decide("home")
		entry.Debug("Домашний экран: ALLOWED")
		c.transitionAllowed(ctx)
		return true
	}

	if !c.deps.Blocked.Contains(pkg) {
		c.decide("allowed")
		c.audioSuspect = false
		c.grace = ""
		c.transitionAllowed(ctx)
		return true
	}

	if pkg == c.grace {
		c.decide("grace")
		entry.Debug("Льготный период: BLOCKED без оверлея")
		c.audioSuspect = true
		c.transitionBlocked(ctx, pkg, false, "")
		return true
	}

	if c.passCovers(ctx, pkg) {
		c.decide("pass")
		entry.Info("Активный пропуск снимает блокировку")
		c.audioSuspect = false
		c.transitionAllowed(ctx)
		return true
	}

	if pkg == c.cooldownPkg && c.now().Sub(c.cooldownAt) < c.settings.HomeCooldown {
		c.decide("cooldown")
		entry.Debug("Кулдаун после возврата домой: оверлей не показываем")
		return true
	}

	// Пока шли запросы, пользователь мог уйти дальше.
	if IsStale(pkg, c.latest.Load().(string), c.launchers) {
		c.filtered(StageStale, pkg)
		return false
	}

	appName := c.deps.Groups.AppName(ctx, pkg)
	c.decide("overlay")
	c.audioSuspect = true
	c.transitionBlocked(ctx, pkg, true, appName)
	return true
}

// passCovers: SNS снимается Dopamine Shot, OTT - Cinema Pass,
// всё, кроме SNS, - Standard Ticket. Ошибки означают «не покрыто».
func (c *Coordinator) passCovers(ctx context.Context, pkg string) bool {
	entry := log.WithField("package", pkg)

	isSNS := c.deps.Groups.IsAppInGroup(ctx, pkg, groups.GroupSNS)
	if isSNS {
		active, err := c.deps.Passes.IsPassActiveForGroup(ctx, groups.GroupSNS)
		if err != nil {
			entry.WithError(err).Error("Ошибка проверки пропуска SNS")
		} else if active {
			return true
		}
	}

	if c.deps.Groups.IsAppInGroup(ctx, pkg, groups.GroupOTT) {
		active, err := c.deps.Passes.IsPassActiveForGroup(ctx, groups.GroupOTT)
		if err != nil {
			entry.WithError(err).Error("Ошибка проверки пропуска OTT")
		} else if active {
			return true
		}
	}

	if !isSNS {
		active, err := c.deps.Passes.IsStandardTicketActive(ctx)
		if err != nil {
			entry.WithError(err).Error("Ошибка проверки стандартного билета")
		} else if active {
			return true
		}
	}
	return false
}

// transitionAllowed снимает паузу приложения. Флаг аудио не трогается:
// пока играет заблокированное аудио, майнинг стоит.
func (c *Coordinator) transitionAllowed(ctx context.Context) {
	if !c.deps.Mining.PausedByApp() {
		return
	}
	c.deps.Mining.ResumeByApp()
	c.grace = ""
	c.blockedBy = ""
	if inst, err := c.deps.Overlay.Take("", OverlayIdle, true); err == nil {
		metrics.Overlays.WithLabelValues("dismissed").Inc()
		c.hide(ctx, inst, false, false)
	}
}

// transitionBlocked ставит паузу и при необходимости показывает оверлей.
func (c *Coordinator) transitionBlocked(ctx context.Context, pkg string, trigger bool, appName string) {
	wasPaused := c.deps.Mining.PausedByApp()
	if !wasPaused {
		c.deps.Mining.PauseByApp()
	}
	prevBy := c.blockedBy
	c.blockedBy = pkg

	if pkg == c.grace || !trigger || c.deps.Overlay.Live() {
		return
	}
	// Повторное событие того же приложения без выхода из BLOCKED.
	if wasPaused && prevBy == pkg {
		return
	}
	c.showOverlay(ctx, pkg, appName)
}

func (c *Coordinator) showOverlay(ctx context.Context, pkg, appName string) {
	inst, ok := c.deps.Overlay.Begin(pkg, appName)
	if !ok {
		return
	}

	req := OverlayRequest{
		ID:        inst.ID,
		Package:   pkg,
		AppName:   appName,
		Countdown: c.deps.Overlay.Countdown(),
		Persona:   c.deps.Personas.Profile(ctx),
	}
	if err := c.deps.Device.ShowOverlay(ctx, req); err != nil {
		// Нет устройства или права рисовать поверх: оверлей молча не показывается.
		log.WithError(err).WithField("package", pkg).Warn("Оверлей не показан")
		_, _ = c.deps.Overlay.Take(inst.ID, OverlayIdle, true)
		c.blockedBy = ""
		metrics.Overlays.WithLabelValues("failed").Inc()
		return
	}

	metrics.Overlays.WithLabelValues("shown").Inc()
	log.WithFields(log.Fields{
		"package":    pkg,
		"app_name":   appName,
		"overlay_id": inst.ID,
	}).Info("Оверлей показан")
}

func (c *Coordinator) onAction(ctx context.Context, id string, action Action) {
	entry := log.WithFields(log.Fields{"overlay_id": id, "action": action})

	switch action {
	case ActionProceed:
		inst, err := c.deps.Overlay.Take(id, OverlayIdle, false)
		if err != nil {
			entry.WithError(err).Debug("Действие оверлея отклонено")
			return
		}
		c.grace = inst.Package
		c.penalize(ctx, ActionProceed, inst)
		metrics.Overlays.WithLabelValues("proceed").Inc()
		entry.WithField("package", inst.Package).Info("강행: штраф и льготный период")
		c.hide(ctx, inst, false, false)

	case ActionCancel:
		inst, err := c.deps.Overlay.Take(id, OverlayDismissing, false)
		if err != nil {
			entry.WithError(err).Debug("Действие оверлея отклонено")
			return
		}
		if c.grace == inst.Package {
			c.grace = ""
		}
		c.penalize(ctx, ActionCancel, inst)
		metrics.Overlays.WithLabelValues("cancel").Inc()
		entry.WithField("package", inst.Package).Info("철회: штраф и возврат домой")
		c.hide(ctx, inst, true, false)

	default:
		entry.Warn("Неизвестное действие оверлея")
	}
}

func (c *Coordinator) onScreen(ctx context.Context, on bool) {
	if on {
		if c.deps.Screen != nil {
			c.deps.Screen.ScreenOn(ctx)
		}
		return
	}

	// Выключение экрана с живым оверлеем - неявный 철회.
	if inst, err := c.deps.Overlay.Take("", OverlayDismissing, true); err == nil {
		log.WithField("package", inst.Package).Info("Экран выключен при оверлее: неявный 철회")
		c.penalize(ctx, ActionCancel, inst)
		metrics.Overlays.WithLabelValues("screen_off").Inc()
		c.hide(ctx, inst, true, true)
		c.deps.Mining.ResumeByApp()
		c.grace = ""
		c.blockedBy = ""
	}

	if c.deps.Screen != nil {
		c.deps.Screen.ScreenOff(ctx)
	}
}

// onAudio: эвристика: ОС не сообщает, чьё это аудио, поэтому считаем его
// заблокированным, если последнее решение по приложению было BLOCKED.
// Оверлей аудио никогда не показывает.
func (c *Coordinator) onAudio(active bool) {
	blocked := active && c.audioSuspect
	if blocked != c.deps.Mining.PausedByAudio() {
		log.WithFields(log.Fields{
			"audio_active": active,
			"suspect":      c.audioSuspect,
		}).Info("Флаг аудио изменён")
	}
	c.deps.Mining.SetAudioBlocked(blocked)
}

// penalize списывает штраф в пуле, не задерживая очередь событий.
func (c *Coordinator) penalize(ctx context.Context, action Action, inst *Instance) {
	ctx = context.WithoutCancel(ctx)
	c.pool.Submit(func() {
		defer middleware.RecoverFromPanic()

		var (
			applied int64
			err     error
			kind    = "launch"
		)
		if action == ActionProceed {
			applied, err = c.deps.Penalties.ApplyLaunchPenalty(ctx, inst.Package, inst.AppName)
		} else {
			kind = "quit"
			applied, err = c.deps.Penalties.ApplyQuitPenalty(ctx, inst.Package, inst.AppName)
		}
		if err != nil {
			log.WithError(err).WithField("package", inst.Package).Error("Ошибка применения штрафа")
			return
		}
		metrics.PenaltyPoints.WithLabelValues(kind).Add(float64(applied))
	})
}

// hide закрывает уже забранный экземпляр. Состояние очищено синхронно,
// дальше: асинхронно: закрыть на устройстве, выждать, при необходимости
// увести домой и через таймаут проверить, что домашний экран замечен.
func (c *Coordinator) hide(ctx context.Context, inst *Instance, goHome, applyCooldown bool) {
	c.lastWindowID = -1
	c.lastProcessed = ""

	go func() {
		defer middleware.RecoverFromPanic()

		if err := c.deps.Device.DismissOverlay(ctx, inst.ID); err != nil {
			log.WithError(err).WithField("overlay_id", inst.ID).Warn("Не удалось закрыть оверлей на устройстве")
		}
		if !sleepCtx(ctx, c.settings.DismissDelay) {
			return
		}
		c.post(ctx, settledMsg{})
		if !goHome {
			return
		}

		if err := c.deps.Device.NavigateHome(ctx); err != nil {
			log.WithError(err).Warn("Не удалось вернуться на домашний экран")
		}
		c.post(ctx, homeMsg{pkg: inst.Package, cooldown: applyCooldown})
		if !sleepCtx(ctx, c.settings.HomeDetectTimeout) {
			return
		}
		c.post(ctx, watchdogMsg{})
	}()
}

func (c *Coordinator) decide(decision string) {
	metrics.Decisions.WithLabelValues(decision).Inc()
}

func (c *Coordinator) filtered(stage Stage, pkg string) {
	metrics.EventsFiltered.WithLabelValues(string(stage)).Inc()
	log.WithFields(log.Fields{
		"stage":   stage,
		"package": pkg,
	}).Debug("Событие окна отброшено")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
