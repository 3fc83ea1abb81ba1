// Package persona - handlers.go обрабатывает команду /persona [type].
package persona

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Handler обрабатывает команды персоны.
type Handler struct {
	provider *Provider
	bot      *telego.Bot
}

// NewHandler создаёт обработчик команд персоны.
func NewHandler(provider *Provider, bot *telego.Bot) *Handler {
	return &Handler{provider: provider, bot: bot}
}

// HandlePersona без аргумента показывает текущую персону, с аргументом - меняет.
func (h *Handler) HandlePersona(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		h.sendMessage(ctx, chatID, fmt.Sprintf("🎭 Персона: %s", h.provider.CurrentType(ctx)))
		return
	}
	t, err := ParseType(args[0])
	if err != nil {
		h.sendMessage(ctx, chatID, "❌ Персоны: STREET, CALM, DIPLOMATIC, COMFORTABLE")
		return
	}
	if err := h.provider.SetType(ctx, t); err != nil {
		log.WithError(err).Error("Ошибка сохранения персоны")
		h.sendMessage(ctx, chatID, "❌ Не удалось сохранить персону")
		return
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("✅ Персона: %s", t))
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
