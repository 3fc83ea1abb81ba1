// Package blocklist - handlers.go обрабатывает команды:
// /list, /limit, /block <pkg> [name], /unblock <pkg>.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
)

// Handler обрабатывает команды списка блокировки.
type Handler struct {
	service *Service
	bot     *telego.Bot
}

// NewHandler создаёт обработчик команд списка блокировки.
func NewHandler(service *Service, bot *telego.Bot) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleList: /list.
func (h *Handler) HandleList(ctx context.Context, chatID int64) {
	apps, err := h.service.List(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения списка блокировки")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения списка")
		return
	}
	if len(apps) == 0 {
		h.sendMessage(ctx, chatID, "📭 Список блокировки пуст")
		return
	}
	var sb strings.Builder
	sb.WriteString("🚫 Заблокированы:\n")
	for i, a := range apps {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, a.AppName, a.PackageName)
	}
	h.sendMessage(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleLimit: /limit.
func (h *Handler) HandleLimit(ctx context.Context, chatID int64) {
	limit, err := h.service.MaxBlockedApps(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения лимита")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения лимита")
		return
	}
	if limit == Unlimited {
		h.sendMessage(ctx, chatID, "Лимит: без ограничений")
		return
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("Лимит: %d", limit))
}

// HandleBlock: /block <pkg> [name].
func (h *Handler) HandleBlock(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(ctx, chatID, "❌ Формат: /block <пакет> [название]")
		return
	}
	name := strings.Join(args[1:], " ")

	err := h.service.Add(ctx, args[0], name)
	switch {
	case err == nil:
		h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s заблокирован", args[0]))
	case errors.Is(err, common.ErrBlockLimitReached):
		h.sendMessage(ctx, chatID, "❌ Достигнут лимит тарифа")
	default:
		log.WithError(err).Error("Ошибка добавления в список блокировки")
		h.sendMessage(ctx, chatID, "❌ Не удалось заблокировать")
	}
}

// HandleUnblock: /unblock <pkg>.
func (h *Handler) HandleUnblock(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(ctx, chatID, "❌ Формат: /unblock <пакет>")
		return
	}
	err := h.service.Remove(ctx, args[0])
	switch {
	case err == nil:
		h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s разблокирован", args[0]))
	case errors.Is(err, common.ErrAppNotBlocked):
		h.sendMessage(ctx, chatID, "❌ Приложения нет в списке")
	default:
		log.WithError(err).Error("Ошибка удаления из списка блокировки")
		h.sendMessage(ctx, chatID, "❌ Не удалось разблокировать")
	}
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
