// Package groups - handlers.go обрабатывает команду /group <pkg> <SNS|OTT> <on|off>.
package groups

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Handler обрабатывает команды групп.
type Handler struct {
	service *Service
	bot     *telego.Bot
}

// NewHandler создаёт обработчик команд групп.
func NewHandler(service *Service, bot *telego.Bot) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleGroup без флага показывает членство, с флагом - меняет его.
func (h *Handler) HandleGroup(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(ctx, chatID, "❌ Формат: /group <пакет> <SNS|OTT> [on|off]")
		return
	}
	pkg := args[0]
	group, err := ParseGroup(args[1])
	if err != nil {
		h.sendMessage(ctx, chatID, "❌ Группа: SNS или OTT")
		return
	}

	if len(args) == 2 {
		state := "нет"
		if h.service.IsAppInGroup(ctx, pkg, group) {
			state = "да"
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("%s в %s: %s", pkg, group, state))
		return
	}

	var included bool
	switch strings.ToLower(args[2]) {
	case "on", "1", "true":
		included = true
	case "off", "0", "false":
		included = false
	default:
		h.sendMessage(ctx, chatID, "❌ Флаг: on или off")
		return
	}

	if err := h.service.SetOverride(ctx, pkg, group, included); err != nil {
		log.WithError(err).Error("Ошибка изменения группы")
		h.sendMessage(ctx, chatID, "❌ Не удалось изменить группу")
		return
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s: %s → %v", pkg, group, included))
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
