// Package bot - пульт владельца в Telegram.
// bot.go принимает апдейты через long polling, пропускает их через фильтр
// владельца и ограничитель частоты, маршрутизирует команды и рассылает
// уведомления о штрафах, сбросах и окончании пропусков.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/bot/filters"
	"serotonyl.ru/faust/internal/bot/middleware"
	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/features/blocklist"
	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/features/ledger"
	"serotonyl.ru/faust/internal/features/owner"
	"serotonyl.ru/faust/internal/features/passes"
	"serotonyl.ru/faust/internal/features/penalty"
	"serotonyl.ru/faust/internal/features/persona"
)

const helpText = `Команды:
/balance — баланс WP
/history — последние операции
/list, /limit — заблокированные приложения и лимит
/shop, /pass — магазин и активный пропуск
/login <пароль>, /logout

После входа:
/block <pkg> [имя], /unblock <pkg>
/buy <item>, /use <item>
/persona <тип>, /resettime HH:mm, /tier <тариф>
/group <pkg> <SNS|OTT> <on|off>`

// Handlers: обработчики команд по фичам.
type Handlers struct {
	Ledger    *ledger.Handler
	Blocklist *blocklist.Handler
	Passes    *passes.Handler
	Groups    *groups.Handler
	Persona   *persona.Handler
	Owner     *owner.Handler
}

// Settings: параметры опроса.
type Settings struct {
	MaxInflight          int
	UpdateTimeoutSeconds int
	RateLimitRequests    int
	RateLimitWindow      time.Duration
}

// Bot: главная структура бота.
type Bot struct {
	api      *telego.Bot
	settings Settings

	owners      *owner.Service
	ownerFilter *filters.OwnerFilter
	rateLimiter *middleware.RateLimiter
	handlers    Handlers
	parser      *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New собирает бота.
func New(api *telego.Bot, settings Settings, owners *owner.Service, handlers Handlers) *Bot {
	maxInFlight := settings.MaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}

	return &Bot{
		api:         api,
		settings:    settings,
		owners:      owners,
		ownerFilter: filters.NewOwnerFilter(owners, api),
		rateLimiter: middleware.NewRateLimiter(settings.RateLimitRequests, settings.RateLimitWindow),
		handlers:    handlers,
		parser:      NewCommandParser(),
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start принимает апдейты до отмены контекста.
func (b *Bot) Start(ctx context.Context) error {
	defer b.rateLimiter.Close()

	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.settings.UpdateTimeoutSeconds,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("ошибка запуска long polling: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.settings.UpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}

			// лимит параллелизма
			select {
			case b.inflight <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			go func(upd telego.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic()

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.ownerFilter.CheckAccess(ctx, message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	b.routeCommand(ctx, message.Chat.ID, message.From.ID, message.MessageID, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, messageID int, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": len(args),
	}).Debug("routing command")

	if RequiresSession(cmd, args) && !b.owners.HasActiveSession(ctx, userID) {
		b.sendMessage(ctx, chatID, "🔐 Сначала войдите: /login <пароль>")
		return
	}

	h := b.handlers
	switch cmd {
	case "start", "help":
		b.sendMessage(ctx, chatID, helpText)

	case "login":
		h.Owner.HandleLogin(ctx, chatID, userID, messageID, args)
	case "logout":
		h.Owner.HandleLogout(ctx, chatID, userID)

	case "balance":
		h.Ledger.HandleBalance(ctx, chatID)
	case "history":
		h.Ledger.HandleHistory(ctx, chatID)

	case "list":
		h.Blocklist.HandleList(ctx, chatID)
	case "limit":
		h.Blocklist.HandleLimit(ctx, chatID)
	case "block":
		h.Blocklist.HandleBlock(ctx, chatID, args)
	case "unblock":
		h.Blocklist.HandleUnblock(ctx, chatID, args)

	case "shop":
		h.Passes.HandleShop(ctx, chatID)
	case "buy":
		h.Passes.HandleBuy(ctx, chatID, args)
	case "use":
		h.Passes.HandleUse(ctx, chatID, args)
	case "pass":
		h.Passes.HandlePass(ctx, chatID)

	case "persona":
		h.Persona.HandlePersona(ctx, chatID, args)
	case "resettime":
		h.Owner.HandleResetTime(ctx, chatID, args)
	case "tier":
		h.Owner.HandleTier(ctx, chatID, args)
	case "group":
		h.Groups.HandleGroup(ctx, chatID, args)

	default:
		b.sendMessage(ctx, chatID, "🤷 Неизвестная команда, см. /help")
	}
}

// RequiresSession: команды, меняющие состояние, требуют входа.
// Команды настроек без аргументов только показывают значение.
func RequiresSession(cmd string, args []string) bool {
	switch cmd {
	case "block", "unblock", "buy", "use":
		return true
	case "persona", "resettime", "tier", "group":
		return len(args) > 0
	}
	return false
}

// Notify рассылает текст всем владельцам.
func (b *Bot) Notify(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, id := range b.owners.OwnerIDs() {
		if _, err := b.api.SendMessage(ctx, tu.Message(tu.ID(id), text)); err != nil {
			log.WithError(err).WithField("user_id", id).Debug("Не удалось отправить уведомление")
		}
	}
}

// NotifyPenalty: уведомление о списании за исход переговоров.
func (b *Bot) NotifyPenalty(n penalty.Notice) {
	b.Notify(FormatPenalty(n))
}

// NotifyPassExpired: уведомление об окончании пропуска.
func (b *Bot) NotifyPassExpired(item passes.ItemType) {
	b.Notify(FormatPassExpired(item))
}

// FormatPenalty собирает текст уведомления о штрафе.
func FormatPenalty(n penalty.Notice) string {
	name := n.AppName
	if name == "" {
		name = n.Package
	}
	switch n.Kind {
	case penalty.KindLaunch:
		return fmt.Sprintf("⚠️ Проход в %s: списано %s", name, common.FormatPoints(n.Points))
	case penalty.KindQuit:
		return fmt.Sprintf("↩️ Отступление от %s: списано %s", name, common.FormatPoints(n.Points))
	}
	return fmt.Sprintf("Штраф %s: %s", name, common.FormatPoints(n.Points))
}

// FormatPassExpired собирает текст об окончании пропуска.
func FormatPassExpired(item passes.ItemType) string {
	return fmt.Sprintf("⏰ Пропуск %s закончился, блокировка снова действует", item)
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser разбирает команды с префиксами / и !.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @botname у команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
