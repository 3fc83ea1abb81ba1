package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/faust/internal/blocking"
	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/features/persona"
)

type fakeSink struct {
	mu      sync.Mutex
	windows []blocking.WindowEvent
	audio   []bool
	screen  []bool
	actions []string
}

func (s *fakeSink) HandleWindow(ev blocking.WindowEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, ev)
}

func (s *fakeSink) HandleAudio(_ context.Context, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, active)
}

func (s *fakeSink) HandleScreen(_ context.Context, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen = append(s.screen, on)
}

func (s *fakeSink) HandleOverlayAction(_ context.Context, id string, action blocking.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, id+":"+string(action))
}

func (s *fakeSink) snapshot() ([]blocking.WindowEvent, []bool, []bool, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blocking.WindowEvent(nil), s.windows...),
		append([]bool(nil), s.audio...),
		append([]bool(nil), s.screen...),
		append([]string(nil), s.actions...)
}

type env struct {
	bridge *Bridge
	sink   *fakeSink
	server *httptest.Server

	mu        sync.Mutex
	inventory []groups.InstalledApp
	booted    int
	silent    *bool
}

func newEnv(t *testing.T, perSecond float64, burst int) *env {
	t.Helper()
	e := &env{sink: &fakeSink{}}
	e.bridge = New(Settings{EventsPerSecond: perSecond, EventBurst: burst}, Hooks{
		OnBoot: func(context.Context) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.booted++
		},
		OnInventory: func(_ context.Context, apps []groups.InstalledApp) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.inventory = apps
			return nil
		},
		OnRinger: func(silent bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.silent = &silent
		},
	})
	e.bridge.Attach(e.sink)
	e.server = httptest.NewServer(e.bridge.Handler())
	t.Cleanup(e.server.Close)
	return e
}

func (e *env) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Type: msgType, TS: 1767225600000, Payload: raw}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestInboundEventsReachSink(t *testing.T) {
	e := newEnv(t, 1000, 100)
	conn := e.dial(t)

	id := 42
	sendEnvelope(t, conn, TypeWindow, WindowPayload{Package: "com.instagram.android", ClassName: "MainActivity", WindowID: &id})
	sendEnvelope(t, conn, TypeWindow, WindowPayload{Package: "com.example.notes", ClassName: "NoteActivity"})
	sendEnvelope(t, conn, TypeAudio, AudioPayload{Active: true})
	sendEnvelope(t, conn, TypeScreen, ScreenPayload{On: false})
	sendEnvelope(t, conn, TypeOverlayAction, OverlayActionPayload{OverlayID: "ov-1", Action: "cancel"})
	sendEnvelope(t, conn, TypeOverlayAction, OverlayActionPayload{OverlayID: "ov-1", Action: "snooze"})

	require.Eventually(t, func() bool {
		_, _, _, actions := e.sink.snapshot()
		return len(actions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	windows, audio, screen, actions := e.sink.snapshot()
	require.Len(t, windows, 2)
	assert.Equal(t, 42, windows[0].WindowID)
	assert.Equal(t, common.FromMillis(1767225600000), windows[0].At)
	assert.Equal(t, -1, windows[1].WindowID, "нет идентификатора окна")
	assert.Equal(t, []bool{true}, audio)
	assert.Equal(t, []bool{false}, screen)
	assert.Equal(t, []string{"ov-1:cancel"}, actions, "неизвестное действие отброшено")
}

func TestHooks(t *testing.T) {
	e := newEnv(t, 1000, 100)
	conn := e.dial(t)

	sendEnvelope(t, conn, TypeBoot, struct{}{})
	sendEnvelope(t, conn, TypeInventory, InventoryPayload{Apps: []groups.InstalledApp{
		{Package: "com.netflix.mediaclient", Name: "Netflix", Category: "video"},
	}})
	sendEnvelope(t, conn, TypeRinger, RingerPayload{Silent: true})

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.silent != nil
	}, 2*time.Second, 10*time.Millisecond)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Equal(t, 1, e.booted)
	require.Len(t, e.inventory, 1)
	assert.Equal(t, "Netflix", e.inventory[0].Name)
	assert.True(t, *e.silent)
}

func TestRateLimitDropsFlood(t *testing.T) {
	e := newEnv(t, 0.001, 2)
	conn := e.dial(t)

	for i := 0; i < 5; i++ {
		sendEnvelope(t, conn, TypeAudio, AudioPayload{Active: i%2 == 0})
	}
	sendEnvelope(t, conn, TypeWindow, WindowPayload{Package: "com.instagram.android"})
	// Маркер: экран идёт после потока и должен дойти.
	sendEnvelope(t, conn, TypeScreen, ScreenPayload{On: true})

	require.Eventually(t, func() bool {
		_, _, screen, _ := e.sink.snapshot()
		return len(screen) == 1
	}, 2*time.Second, 10*time.Millisecond)
	windows, audio, _, _ := e.sink.snapshot()
	assert.Len(t, audio, 2)
	assert.Empty(t, windows)
}

func TestControlEventsSurviveWindowFlood(t *testing.T) {
	e := newEnv(t, 5, 5)
	conn := e.dial(t)

	for i := 0; i < 20; i++ {
		sendEnvelope(t, conn, TypeWindow, WindowPayload{Package: "com.instagram.android", ClassName: "MainActivity"})
	}
	sendEnvelope(t, conn, TypeScreen, ScreenPayload{On: false})
	sendEnvelope(t, conn, TypeOverlayAction, OverlayActionPayload{OverlayID: "ov-3", Action: "cancel"})
	sendEnvelope(t, conn, TypeBoot, struct{}{})

	require.Eventually(t, func() bool {
		_, _, _, actions := e.sink.snapshot()
		return len(actions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	windows, _, screen, actions := e.sink.snapshot()
	assert.Less(t, len(windows), 20, "поток окон ограничен")
	assert.Equal(t, []bool{false}, screen, "выключение экрана дошло")
	assert.Equal(t, []string{"ov-3:cancel"}, actions)

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.booted == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCommandsWithoutDevice(t *testing.T) {
	b := New(Settings{EventsPerSecond: 10, EventBurst: 10}, Hooks{})
	ctx := context.Background()

	assert.ErrorIs(t, b.ShowOverlay(ctx, blocking.OverlayRequest{ID: "x"}), common.ErrNoDevice)
	assert.ErrorIs(t, b.DismissOverlay(ctx, "x"), common.ErrNoDevice)
	assert.ErrorIs(t, b.NavigateHome(ctx), common.ErrNoDevice)
}

func TestShowOverlayReachesDevice(t *testing.T) {
	e := newEnv(t, 1000, 100)
	conn := e.dial(t)
	require.Eventually(t, e.bridge.Connected, 2*time.Second, 10*time.Millisecond)

	err := e.bridge.ShowOverlay(context.Background(), blocking.OverlayRequest{
		ID:        "ov-7",
		Package:   "com.google.android.youtube",
		AppName:   "YouTube",
		Countdown: 5 * time.Second,
		Persona:   persona.Profile{Type: persona.Street},
	})
	require.NoError(t, err)

	msg := readEnvelope(t, conn)
	assert.Equal(t, TypeShowOverlay, msg.Type)
	var p ShowOverlayPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "ov-7", p.OverlayID)
	assert.Equal(t, "YouTube", p.AppName)
	assert.Equal(t, 5, p.CountdownSeconds)
	assert.Equal(t, persona.Street, p.Persona.Type)

	require.NoError(t, e.bridge.NavigateHome(context.Background()))
	assert.Equal(t, TypeNavigateHome, readEnvelope(t, conn).Type)
}

func TestNewConnectionReplacesOld(t *testing.T) {
	e := newEnv(t, 1000, 100)
	first := e.dial(t)
	require.Eventually(t, e.bridge.Connected, 2*time.Second, 10*time.Millisecond)

	second := e.dial(t)

	// Старое соединение закрывается сервером.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	require.NoError(t, e.bridge.DismissOverlay(context.Background(), "ov-9"))
	msg := readEnvelope(t, second)
	assert.Equal(t, TypeDismissOverlay, msg.Type)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, 10, 10)

	resp, err := http.Get(e.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["connected"])
}
