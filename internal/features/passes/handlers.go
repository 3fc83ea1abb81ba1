// Package passes - handlers.go обрабатывает команды:
// /shop (витрина), /buy <item>, /use <item>, /pass (активный пропуск).
package passes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
)

// Handler обрабатывает команды магазина.
type Handler struct {
	service *Service
	bot     *telego.Bot
	loc     *time.Location
}

// NewHandler создаёт обработчик команд магазина.
func NewHandler(service *Service, bot *telego.Bot, loc *time.Location) *Handler {
	return &Handler{service: service, bot: bot, loc: loc}
}

// HandleShop показывает цены, запас и перезарядку.
//
//	🛒 Магазин
//	DOPAMINE_SHOT: 15 WP, в наличии 0
//	STANDARD_TICKET: 30 WP, в наличии 1/3
func (h *Handler) HandleShop(ctx context.Context, chatID int64) {
	items, err := h.service.Inventory(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения инвентаря")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения магазина")
		return
	}

	var sb strings.Builder
	sb.WriteString("🛒 Магазин\n")
	for _, item := range AllItems {
		it := items[item]
		r, _ := RuleFor(item)
		fmt.Fprintf(&sb, "%s — %s", item, common.FormatPoints(Price(item, it.Quantity)))
		if r.MaxQuantity > 0 {
			fmt.Fprintf(&sb, ", в наличии %d/%d", it.Quantity, r.MaxQuantity)
		}
		if left := RemainingPurchaseCooldown(item, it, time.Now()); left > 0 {
			fmt.Fprintf(&sb, ", перезарядка %d мин", int(left.Minutes())+1)
		}
		sb.WriteString("\n")
	}
	h.sendMessage(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleBuy: /buy <item>.
func (h *Handler) HandleBuy(ctx context.Context, chatID int64, args []string) {
	item, ok := h.parseItem(ctx, chatID, args, "/buy")
	if !ok {
		return
	}
	it, err := h.service.Purchase(ctx, item)
	if err != nil {
		h.sendFailure(ctx, chatID, err)
		return
	}
	text := fmt.Sprintf("✅ Куплено: %s", item)
	if r, _ := RuleFor(item); r.MaxQuantity > 0 {
		text += fmt.Sprintf(" (в наличии %d)", it.Quantity)
	}
	h.sendMessage(ctx, chatID, text)
}

// HandleUse: /use <item>.
func (h *Handler) HandleUse(ctx context.Context, chatID int64, args []string) {
	item, ok := h.parseItem(ctx, chatID, args, "/use")
	if !ok {
		return
	}
	if _, err := h.service.Use(ctx, item); err != nil {
		h.sendFailure(ctx, chatID, err)
		return
	}
	r, _ := RuleFor(item)
	h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s активирован на %s", item, r.Duration))
}

// HandlePass: /pass.
func (h *Handler) HandlePass(ctx context.Context, chatID int64) {
	pass, err := h.service.GetActivePass(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения активного пропуска")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения пропуска")
		return
	}
	if pass == nil {
		h.sendMessage(ctx, chatID, "Активного пропуска нет")
		return
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("🎫 %s до %s",
		pass.Item, common.FormatDateTime(pass.ExpiresAt, h.loc)))
}

func (h *Handler) parseItem(ctx context.Context, chatID int64, args []string, cmd string) (ItemType, bool) {
	if len(args) < 1 {
		h.sendMessage(ctx, chatID, fmt.Sprintf("❌ Формат: %s <dopamine|standard|cinema>", cmd))
		return "", false
	}
	item, err := ParseItem(args[0])
	if err != nil {
		h.sendMessage(ctx, chatID, "❌ Неизвестный пропуск")
		return "", false
	}
	return item, true
}

func (h *Handler) sendFailure(ctx context.Context, chatID int64, err error) {
	var f *Failure
	if errors.As(err, &f) {
		h.sendMessage(ctx, chatID, "❌ "+f.Error())
		return
	}
	h.sendMessage(ctx, chatID, "❌ "+string(ReasonUnavailable))
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
