// Package ledger - handlers.go обрабатывает команды владельца:
// /balance (баланс) и /history (последние записи журнала).
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
)

// Handler обрабатывает команды журнала.
type Handler struct {
	service *Service
	bot     *telego.Bot
	loc     *time.Location
}

// NewHandler создаёт обработчик команд журнала.
func NewHandler(service *Service, bot *telego.Bot, loc *time.Location) *Handler {
	return &Handler{service: service, bot: bot, loc: loc}
}

// HandleBalance: /balance.
//
//	💰 Баланс: 42 WP
func (h *Handler) HandleBalance(ctx context.Context, chatID int64) {
	bal, err := h.service.TotalPoints(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения баланса")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения баланса")
		return
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("💰 Баланс: %s", common.FormatPoints(bal.Value())))
}

// HandleHistory: /history, последние записи сверху.
func (h *Handler) HandleHistory(ctx context.Context, chatID int64) {
	txs, err := h.service.History(ctx, HistoryLimit)
	if err != nil {
		log.WithError(err).Error("Ошибка получения истории")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения истории")
		return
	}
	h.sendMessage(ctx, chatID, FormatHistory(txs, h.loc))
}

// FormatHistory собирает текст истории.
func FormatHistory(txs []*Transaction, loc *time.Location) string {
	if len(txs) == 0 {
		return "📭 Журнал пуст"
	}
	var sb strings.Builder
	sb.WriteString("📜 Последние операции:\n")
	for _, t := range txs {
		fmt.Fprintf(&sb, "%s  %s  %s  %s\n",
			common.FormatDateTime(t.CreatedAt, loc),
			common.FormatPointsAmount(t.Amount),
			t.Type,
			t.Reason,
		)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
