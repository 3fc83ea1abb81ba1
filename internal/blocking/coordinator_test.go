package blocking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/features/persona"
)

const (
	home    = "com.android.launcher3"
	youtube = "com.google.android.youtube"
	insta   = "com.instagram.android"
	notes   = "com.example.notes"
	calc    = "com.example.calculator"
)

type fakeDevice struct {
	mu        sync.Mutex
	shown     []OverlayRequest
	dismissed []string
	homes     int
	showErr   error
}

func (d *fakeDevice) ShowOverlay(_ context.Context, req OverlayRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.showErr != nil {
		return d.showErr
	}
	d.shown = append(d.shown, req)
	return nil
}

func (d *fakeDevice) DismissOverlay(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed = append(d.dismissed, id)
	return nil
}

func (d *fakeDevice) NavigateHome(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.homes++
	return nil
}

func (d *fakeDevice) counts() (shown, dismissed, homes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown), len(d.dismissed), d.homes
}

func (d *fakeDevice) last() OverlayRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown[len(d.shown)-1]
}

type fakePasses struct {
	mu      sync.Mutex
	active  map[groups.GroupType]bool
	ticket  bool
	err     error
	onCheck func() // вызывается при каждой проверке пропуска группы
}

func (p *fakePasses) IsPassActiveForGroup(_ context.Context, g groups.GroupType) (bool, error) {
	p.mu.Lock()
	onCheck := p.onCheck
	active, err := p.active[g], p.err
	p.mu.Unlock()
	if onCheck != nil {
		onCheck()
	}
	return active, err
}

func (p *fakePasses) IsStandardTicketActive(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticket, p.err
}

type fakeGroups map[string]groups.GroupType

func (g fakeGroups) IsAppInGroup(_ context.Context, pkg string, group groups.GroupType) bool {
	return g[pkg] == group
}

func (g fakeGroups) AppName(_ context.Context, pkg string) string {
	return "name:" + pkg
}

type fakePenalties struct {
	mu     sync.Mutex
	launch []string
	quit   []string
}

func (p *fakePenalties) ApplyLaunchPenalty(_ context.Context, pkg, _ string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.launch = append(p.launch, pkg)
	return 6, nil
}

func (p *fakePenalties) ApplyQuitPenalty(_ context.Context, pkg, _ string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quit = append(p.quit, pkg)
	return 3, nil
}

func (p *fakePenalties) counts() (launch, quit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.launch), len(p.quit)
}

type fakePersona struct{}

func (fakePersona) Profile(context.Context) persona.Profile {
	return persona.Profile{Type: persona.Street, Prompt: "test"}
}

type fakeScreen struct {
	mu       sync.Mutex
	offs     int
	ons      int
	pausedAt []bool
	mining   *MiningMachine
}

func (s *fakeScreen) ScreenOff(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offs++
	s.pausedAt = append(s.pausedAt, s.mining.Effective() == Blocked)
}

func (s *fakeScreen) ScreenOn(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ons++
}

type env struct {
	c         *Coordinator
	device    *fakeDevice
	passes    *fakePasses
	penalties *fakePenalties
	screen    *fakeScreen
	mining    *MiningMachine
	overlay   *OverlayMachine
	blocked   *BlockedSet
}

func newEnv(t *testing.T, countdown time.Duration) *env {
	t.Helper()

	e := &env{
		device:    &fakeDevice{},
		passes:    &fakePasses{active: map[groups.GroupType]bool{}},
		penalties: &fakePenalties{},
		mining:    NewMiningMachine(),
		overlay:   NewOverlayMachine(countdown),
		blocked:   NewBlockedSet(),
	}
	e.screen = &fakeScreen{mining: e.mining}
	e.blocked.Replace([]string{youtube, insta})

	e.c = NewCoordinator(Deps{
		Mining:    e.mining,
		Overlay:   e.overlay,
		Blocked:   e.blocked,
		Device:    e.device,
		Passes:    e.passes,
		Groups:    fakeGroups{insta: groups.GroupSNS, youtube: groups.GroupOTT},
		Penalties: e.penalties,
		Personas:  fakePersona{},
		Screen:    e.screen,
	}, Settings{
		Launchers:         []string{home},
		Debounce:          10 * time.Millisecond,
		HomeCooldown:      time.Second,
		HomeDetectTimeout: 30 * time.Millisecond,
		DismissDelay:      5 * time.Millisecond,
		Workers:           2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func (e *env) open(t *testing.T, pkg string) {
	t.Helper()
	e.c.HandleWindow(WindowEvent{Package: pkg, ClassName: pkg + ".MainActivity", WindowID: -1})
	require.Eventually(t, func() bool { return e.c.Foreground() == pkg }, time.Second, 2*time.Millisecond)
}

func (e *env) waitShown(t *testing.T, n int) OverlayRequest {
	t.Helper()
	require.Eventually(t, func() bool {
		shown, _, _ := e.device.counts()
		return shown == n
	}, time.Second, 2*time.Millisecond)
	return e.device.last()
}

func TestBlockedAppTriggersOverlay(t *testing.T) {
	e := newEnv(t, 30*time.Second)

	e.open(t, youtube)
	req := e.waitShown(t, 1)

	assert.Equal(t, youtube, req.Package)
	assert.Equal(t, "name:"+youtube, req.AppName)
	assert.Equal(t, 30*time.Second, req.Countdown)
	assert.Equal(t, persona.Street, req.Persona.Type)
	assert.Equal(t, Blocked, e.mining.Effective())
	assert.Equal(t, OverlayShowing, e.overlay.State())
}

func TestNonBlockedAppKeepsMining(t *testing.T) {
	e := newEnv(t, 0)

	e.open(t, notes)
	shown, _, _ := e.device.counts()
	assert.Zero(t, shown)
	assert.Equal(t, Allowed, e.mining.Effective())
}

func TestActivePassCoversGroup(t *testing.T) {
	e := newEnv(t, 0)
	e.passes.active[groups.GroupSNS] = true

	e.open(t, insta)
	shown, _, _ := e.device.counts()
	assert.Zero(t, shown, "Dopamine Shot снимает блокировку SNS")
	assert.Equal(t, Allowed, e.mining.Effective())

	// Dopamine Shot не покрывает OTT.
	e.open(t, youtube)
	e.waitShown(t, 1)
}

func TestStandardTicketSkipsSNS(t *testing.T) {
	e := newEnv(t, 0)
	e.passes.ticket = true

	e.open(t, youtube)
	shown, _, _ := e.device.counts()
	assert.Zero(t, shown)

	e.open(t, insta)
	e.waitShown(t, 1)
}

func TestPassLookupErrorStillBlocks(t *testing.T) {
	e := newEnv(t, 0)
	e.passes.err = errors.New("db down")
	e.passes.active[groups.GroupSNS] = true

	e.open(t, insta)
	e.waitShown(t, 1)
}

func TestProceedGrantsGracePeriod(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()

	e.open(t, youtube)
	req := e.waitShown(t, 1)

	e.c.HandleOverlayAction(ctx, req.ID, ActionProceed)
	require.Eventually(t, func() bool {
		launch, _ := e.penalties.counts()
		return launch == 1 && e.overlay.State() == OverlayIdle
	}, time.Second, 2*time.Millisecond)

	// Повторное событие того же приложения: ни оверлея, ни штрафа.
	e.c.HandleOverlayAction(ctx, req.ID, ActionProceed)
	e.c.HandleWindow(WindowEvent{Package: youtube, ClassName: "WatchActivity", WindowID: 9})
	time.Sleep(50 * time.Millisecond)

	shown, _, homes := e.device.counts()
	launch, quit := e.penalties.counts()
	assert.Equal(t, 1, shown)
	assert.Equal(t, 1, launch)
	assert.Zero(t, quit)
	assert.Zero(t, homes, "강행 не уводит домой")
	assert.Equal(t, Blocked, e.mining.Effective())

	// Через незаблокированное приложение льгота снимается.
	e.open(t, notes)
	assert.Equal(t, Allowed, e.mining.Effective())
	e.open(t, youtube)
	e.waitShown(t, 2)
}

func TestDirectSwitchBetweenBlockedApps(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()

	e.open(t, youtube)
	first := e.waitShown(t, 1)
	e.c.HandleOverlayAction(ctx, first.ID, ActionProceed)
	require.Eventually(t, func() bool { return e.overlay.State() == OverlayIdle }, time.Second, 2*time.Millisecond)

	// Повтор того же приложения: оверлея нет.
	e.c.HandleWindow(WindowEvent{Package: youtube, ClassName: "WatchActivity", WindowID: 5})
	time.Sleep(50 * time.Millisecond)
	shown, _, _ := e.device.counts()
	require.Equal(t, 1, shown)

	// Сразу в другое заблокированное приложение, минуя домашний экран.
	e.open(t, insta)
	second := e.waitShown(t, 2)
	assert.Equal(t, insta, second.Package)
	assert.Equal(t, Blocked, e.mining.Effective())

	launch, quit := e.penalties.counts()
	assert.Equal(t, 1, launch)
	assert.Zero(t, quit)
}

func TestStaleDecisionKeepsForeground(t *testing.T) {
	e := newEnv(t, 0)

	e.open(t, notes)

	// Пока идёт проверка пропуска, пользователь уже ушёл в другое приложение.
	var once sync.Once
	checked := make(chan struct{})
	e.passes.mu.Lock()
	e.passes.onCheck = func() {
		once.Do(func() {
			e.c.latest.Store(calc)
			close(checked)
		})
	}
	e.passes.mu.Unlock()

	e.c.HandleWindow(WindowEvent{Package: insta, ClassName: "FeedActivity", WindowID: 7})
	select {
	case <-checked:
	case <-time.After(time.Second):
		t.Fatal("проверка пропуска не вызвана")
	}
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, notes, e.c.Foreground(), "устаревшее событие не меняет передний план")
	shown, _, _ := e.device.counts()
	assert.Zero(t, shown)
	assert.Equal(t, Allowed, e.mining.Effective())
}

func TestCancelGoesHomeWithoutCooldown(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()

	e.open(t, youtube)
	req := e.waitShown(t, 1)

	e.c.HandleOverlayAction(ctx, req.ID, ActionCancel)
	require.Eventually(t, func() bool {
		_, quit := e.penalties.counts()
		_, dismissed, homes := e.device.counts()
		return quit == 1 && dismissed == 1 && homes == 1
	}, time.Second, 2*time.Millisecond)

	// Домашний экран не пришёл: сторож переводит в ALLOWED.
	require.Eventually(t, func() bool {
		return e.mining.Effective() == Allowed && e.overlay.State() == OverlayIdle
	}, time.Second, 2*time.Millisecond)

	// Кулдаун не взведён: повторный запуск сразу снова блокируется.
	e.c.HandleWindow(WindowEvent{Package: youtube, ClassName: "WatchActivity", WindowID: 3})
	e.waitShown(t, 2)

	launch, _ := e.penalties.counts()
	assert.Zero(t, launch)
}

func TestActionBeforeCountdownIgnored(t *testing.T) {
	e := newEnv(t, time.Hour)
	ctx := context.Background()

	e.open(t, youtube)
	req := e.waitShown(t, 1)

	e.c.HandleOverlayAction(ctx, req.ID, ActionProceed)
	e.c.HandleOverlayAction(ctx, "stale-id", ActionCancel)
	time.Sleep(30 * time.Millisecond)

	launch, quit := e.penalties.counts()
	assert.Zero(t, launch)
	assert.Zero(t, quit)
	assert.Equal(t, OverlayShowing, e.overlay.State())
}

func TestScreenOffWithOverlayIsImplicitCancel(t *testing.T) {
	e := newEnv(t, time.Hour)
	ctx := context.Background()

	e.open(t, youtube)
	e.waitShown(t, 1)
	require.Equal(t, Blocked, e.mining.Effective())

	e.c.HandleScreen(ctx, false)
	require.Eventually(t, func() bool {
		_, dismissed, homes := e.device.counts()
		return dismissed == 1 && homes == 1
	}, time.Second, 2*time.Millisecond)

	_, quit := e.penalties.counts()
	assert.Equal(t, 1, quit, "штраф за отступление ровно один раз")
	assert.Equal(t, Allowed, e.mining.Effective())

	e.screen.mu.Lock()
	assert.Equal(t, 1, e.screen.offs)
	assert.Equal(t, []bool{false}, e.screen.pausedAt)
	e.screen.mu.Unlock()

	// Кулдаун после возврата домой гасит эхо-запуск того же приложения.
	require.Eventually(t, func() bool { return e.overlay.State() == OverlayIdle }, time.Second, 2*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	e.c.HandleWindow(WindowEvent{Package: youtube, ClassName: "WatchActivity", WindowID: 4})
	time.Sleep(50 * time.Millisecond)
	shown, _, _ := e.device.counts()
	assert.Equal(t, 1, shown)

	e.c.HandleScreen(ctx, true)
	require.Eventually(t, func() bool {
		e.screen.mu.Lock()
		defer e.screen.mu.Unlock()
		return e.screen.ons == 1
	}, time.Second, 2*time.Millisecond)
	_, quit = e.penalties.counts()
	assert.Equal(t, 1, quit)
}

func TestScreenOffWithoutOverlayRecordsPause(t *testing.T) {
	e := newEnv(t, 0)
	e.device.showErr = errors.New("нет устройства")

	e.open(t, youtube)
	require.Equal(t, Blocked, e.mining.Effective())
	assert.Equal(t, OverlayIdle, e.overlay.State(), "оверлей не показан, машина вернулась в IDLE")

	e.c.HandleScreen(context.Background(), false)
	require.Eventually(t, func() bool {
		e.screen.mu.Lock()
		defer e.screen.mu.Unlock()
		return e.screen.offs == 1
	}, time.Second, 2*time.Millisecond)

	e.screen.mu.Lock()
	assert.Equal(t, []bool{true}, e.screen.pausedAt)
	e.screen.mu.Unlock()
	_, _, homes := e.device.counts()
	assert.Zero(t, homes, "без оверлея домой не уводим")
}

func TestDebounceLatestWins(t *testing.T) {
	e := newEnv(t, 0)

	e.c.HandleWindow(WindowEvent{Package: youtube, ClassName: "WatchActivity", WindowID: 1})
	e.c.HandleWindow(WindowEvent{Package: insta, ClassName: "FeedActivity", WindowID: 2})
	e.c.HandleWindow(WindowEvent{Package: notes, ClassName: "NoteActivity", WindowID: 3})

	require.Eventually(t, func() bool { return e.c.Foreground() == notes }, time.Second, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	shown, _, _ := e.device.counts()
	assert.Zero(t, shown)
	assert.Equal(t, Allowed, e.mining.Effective())
}

func TestHomeLauncherAllows(t *testing.T) {
	e := newEnv(t, 0)
	e.device.showErr = errors.New("нет устройства")

	e.open(t, youtube)
	require.Equal(t, Blocked, e.mining.Effective())

	e.c.HandleWindow(WindowEvent{Package: home, ClassName: "android.widget.FrameLayout", WindowID: 1})
	require.Eventually(t, func() bool { return e.mining.Effective() == Allowed }, time.Second, 2*time.Millisecond)
}

func TestAudioHeuristic(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.device.showErr = errors.New("нет устройства")

	// Заблокированное приложение в переднем плане, потом домой, звук продолжает играть.
	e.open(t, youtube)
	e.open(t, home)
	require.Equal(t, Allowed, e.mining.Effective())

	e.c.HandleAudio(ctx, true)
	require.Eventually(t, func() bool { return e.mining.PausedByAudio() }, time.Second, 2*time.Millisecond)
	assert.Equal(t, Blocked, e.mining.Effective())
	assert.False(t, e.mining.PausedByApp())
	assert.Equal(t, OverlayIdle, e.overlay.State(), "аудио никогда не показывает оверлей")

	e.c.HandleAudio(ctx, false)
	require.Eventually(t, func() bool { return e.mining.Effective() == Allowed }, time.Second, 2*time.Millisecond)

	// После незаблокированного приложения звук не считается заблокированным.
	e.open(t, notes)
	e.c.HandleAudio(ctx, true)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, e.mining.PausedByAudio())
}
