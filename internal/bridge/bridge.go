// Package bridge - bridge.go держит единственную сессию устройства:
// принимает события ОС и отправляет команды оверлея.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"serotonyl.ru/faust/internal/blocking"
	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 32
)

// Sink получает события устройства (координатор блокировки).
type Sink interface {
	HandleWindow(ev blocking.WindowEvent)
	HandleAudio(ctx context.Context, active bool)
	HandleScreen(ctx context.Context, on bool)
	HandleOverlayAction(ctx context.Context, overlayID string, action blocking.Action)
}

// Hooks: обработчики событий, которые идут мимо координатора.
type Hooks struct {
	OnBoot      func(ctx context.Context)
	OnInventory func(ctx context.Context, apps []groups.InstalledApp) error
	OnRinger    func(silent bool)
}

// Settings: параметры моста.
type Settings struct {
	ListenAddr      string
	EventsPerSecond float64
	EventBurst      int
}

type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Bridge: HTTP-сервер с /ws, /metrics и /healthz.
type Bridge struct {
	settings Settings
	hooks    Hooks
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	sink    Sink
	current *session
}

// New создаёт мост. Получатель событий подключается через Attach:
// координатору сам мост нужен как Device.
func New(settings Settings, hooks Hooks) *Bridge {
	burst := settings.EventBurst
	if burst <= 0 {
		burst = 1
	}
	return &Bridge{
		settings: settings,
		hooks:    hooks,
		limiter:  rate.NewLimiter(rate.Limit(settings.EventsPerSecond), burst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Оболочка: не браузер, заголовка Origin может не быть.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Attach подключает получателя событий.
func (b *Bridge) Attach(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

// Connected: подключено ли устройство.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

// Handler возвращает роутер chi со всеми маршрутами.
func (b *Bridge) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"connected": b.Connected(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", b.serveWS)
	return r
}

// Run слушает адрес до отмены контекста.
func (b *Bridge) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              b.settings.ListenAddr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", b.settings.ListenAddr).Info("Мост устройства запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("ошибка моста: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.mu.Lock()
	if b.current != nil {
		b.current.close()
	}
	b.mu.Unlock()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Мост остановлен с ошибкой")
	}
	log.Info("Мост устройства остановлен")
	return nil
}

func (b *Bridge) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Не удалось открыть WebSocket")
		return
	}

	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	// Новое подключение вытесняет старое.
	b.mu.Lock()
	old := b.current
	b.current = s
	b.mu.Unlock()
	if old != nil {
		log.WithField("session", old.id).Info("Сессия устройства вытеснена новым подключением")
		old.close()
	}
	metrics.DeviceConnected.Set(1)
	log.WithFields(log.Fields{
		"session": s.id,
		"remote":  r.RemoteAddr,
	}).Info("Устройство подключено")

	go b.writeLoop(s)
	b.readLoop(r.Context(), s)

	s.close()
	b.mu.Lock()
	if b.current == s {
		b.current = nil
		metrics.DeviceConnected.Set(0)
	}
	b.mu.Unlock()
	log.WithField("session", s.id).Info("Устройство отключено")
}

func (b *Bridge) readLoop(ctx context.Context, s *session) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Соединение с устройством оборвано")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.WithError(err).Warn("Некорректное сообщение устройства")
			continue
		}

		// Управляющие события (экран, действия оверлея, загрузка) не режем.
		if throttled(env.Type) && !b.limiter.Allow() {
			metrics.EventsFiltered.WithLabelValues("rate_limited").Inc()
			log.WithField("type", env.Type).Warn("Поток событий устройства превысил лимит: событие отброшено")
			continue
		}
		b.dispatch(ctx, env)
	}
}

// throttled: типы событий, которые устройство может слать потоком.
func throttled(msgType string) bool {
	return msgType == TypeWindow || msgType == TypeAudio
}

func (b *Bridge) writeLoop(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).Warn("Ошибка отправки на устройство")
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.close()
				return
			}
		}
	}
}

// dispatch разбирает входящее сообщение.
func (b *Bridge) dispatch(ctx context.Context, env Envelope) {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()

	metrics.DeviceEvents.WithLabelValues(env.Type).Inc()
	entry := log.WithField("type", env.Type)

	switch env.Type {
	case TypeWindow:
		var p WindowPayload
		if !decode(env, &p) || sink == nil {
			return
		}
		windowID := -1
		if p.WindowID != nil {
			windowID = *p.WindowID
		}
		at := b.now()
		if env.TS > 0 {
			at = common.FromMillis(env.TS)
		}
		sink.HandleWindow(blocking.WindowEvent{
			Package:   p.Package,
			ClassName: p.ClassName,
			WindowID:  windowID,
			At:        at,
		})

	case TypeAudio:
		var p AudioPayload
		if decode(env, &p) && sink != nil {
			sink.HandleAudio(ctx, p.Active)
		}

	case TypeScreen:
		var p ScreenPayload
		if decode(env, &p) && sink != nil {
			sink.HandleScreen(ctx, p.On)
		}

	case TypeOverlayAction:
		var p OverlayActionPayload
		if !decode(env, &p) || sink == nil {
			return
		}
		action := blocking.Action(p.Action)
		if action != blocking.ActionProceed && action != blocking.ActionCancel {
			entry.WithField("action", p.Action).Warn("Неизвестное действие оверлея")
			return
		}
		sink.HandleOverlayAction(ctx, p.OverlayID, action)

	case TypeBoot:
		entry.Info("Устройство загрузилось")
		if b.hooks.OnBoot != nil {
			b.hooks.OnBoot(ctx)
		}

	case TypeInventory:
		var p InventoryPayload
		if !decode(env, &p) || b.hooks.OnInventory == nil {
			return
		}
		if err := b.hooks.OnInventory(ctx, p.Apps); err != nil {
			entry.WithError(err).Error("Ошибка синхронизации списка приложений")
		}

	case TypeRinger:
		var p RingerPayload
		if decode(env, &p) && b.hooks.OnRinger != nil {
			b.hooks.OnRinger(p.Silent)
		}

	default:
		entry.Warn("Неизвестный тип сообщения устройства")
	}
}

func decode(env Envelope, v any) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		log.WithError(err).WithField("type", env.Type).Warn("Некорректная нагрузка сообщения")
		return false
	}
	return true
}

// --- Device: команды устройству ---

// ShowOverlay отправляет команду показать оверлей.
func (b *Bridge) ShowOverlay(_ context.Context, req blocking.OverlayRequest) error {
	return b.send(TypeShowOverlay, ShowOverlayPayload{
		OverlayID:        req.ID,
		Package:          req.Package,
		AppName:          req.AppName,
		CountdownSeconds: int(req.Countdown / time.Second),
		Persona:          req.Persona,
	})
}

// DismissOverlay отправляет команду закрыть оверлей.
func (b *Bridge) DismissOverlay(_ context.Context, overlayID string) error {
	return b.send(TypeDismissOverlay, DismissOverlayPayload{OverlayID: overlayID})
}

// NavigateHome отправляет команду перейти на домашний экран.
func (b *Bridge) NavigateHome(context.Context) error {
	return b.send(TypeNavigateHome, struct{}{})
}

// send ставит сообщение в очередь текущей сессии.
// Без устройства команда теряется: возможности рисовать поверх нет.
func (b *Bridge) send(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, TS: common.ToMillis(b.now()), Payload: raw})
	if err != nil {
		return fmt.Errorf("ошибка сериализации конверта: %w", err)
	}

	b.mu.Lock()
	s := b.current
	b.mu.Unlock()
	if s == nil {
		log.WithField("type", msgType).Warn("Устройство не подключено: команда отброшена")
		return common.ErrNoDevice
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return common.ErrNoDevice
	default:
		return fmt.Errorf("очередь отправки переполнена: %s", msgType)
	}
}
