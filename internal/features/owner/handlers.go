// Package owner - handlers.go обрабатывает вход и настройки владельца:
// /login <пароль>, /logout, /tier [tier], /resettime [HH:mm].
package owner

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/features/prefs"
)

// Handler обрабатывает команды владельца.
type Handler struct {
	service *Service
	prefs   *prefs.Service
	bot     *telego.Bot
	rearm   func(hhmm string) // Перевзвод суточного сброса после смены границы суток
}

// NewHandler создаёт обработчик команд владельца.
func NewHandler(service *Service, prefsService *prefs.Service, bot *telego.Bot, rearm func(string)) *Handler {
	return &Handler{service: service, prefs: prefsService, bot: bot, rearm: rearm}
}

// HandleLogin: /login <пароль>. Сообщение с паролем удаляется из чата.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64, messageID int, args []string) {
	if messageID != 0 {
		if err := h.bot.DeleteMessage(ctx, tu.Delete(tu.ID(chatID), messageID)); err != nil {
			log.WithError(err).Debug("Не удалось удалить сообщение с паролем")
		}
	}
	if len(args) < 1 {
		h.sendMessage(ctx, chatID, "🔐 Формат: /login <пароль>")
		return
	}

	err := h.service.Login(ctx, userID, args[0])
	switch {
	case err == nil:
		h.sendMessage(ctx, chatID, "✅ Вход выполнен на 24 часа")
	case errors.Is(err, common.ErrWrongPassword), errors.Is(err, common.ErrTooManyAttempts),
		errors.Is(err, common.ErrNotOwner):
		h.sendMessage(ctx, chatID, "❌ "+err.Error())
	default:
		log.WithError(err).Error("Ошибка входа владельца")
		h.sendMessage(ctx, chatID, "❌ Ошибка входа")
	}
}

// HandleLogout: /logout.
func (h *Handler) HandleLogout(ctx context.Context, chatID, userID int64) {
	if err := h.service.Logout(ctx, userID); err != nil {
		log.WithError(err).Error("Ошибка выхода владельца")
		h.sendMessage(ctx, chatID, "❌ Ошибка выхода")
		return
	}
	h.sendMessage(ctx, chatID, "👋 Сессия завершена")
}

// HandleTier: /tier [FREE|STANDARD|PRO].
func (h *Handler) HandleTier(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		tier, err := h.prefs.Tier(ctx)
		if err != nil {
			log.WithError(err).Error("Ошибка чтения тарифа")
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("Тариф: %s", tier))
		return
	}
	tier, err := prefs.ParseTier(args[0])
	if err != nil {
		h.sendMessage(ctx, chatID, "❌ Тарифы: FREE, STANDARD, PRO")
		return
	}
	if err := h.prefs.SetTier(ctx, tier); err != nil {
		log.WithError(err).Error("Ошибка смены тарифа")
		h.sendMessage(ctx, chatID, "❌ Не удалось сменить тариф")
		return
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("✅ Тариф: %s", tier))
}

// HandleResetTime: /resettime [HH:mm].
func (h *Handler) HandleResetTime(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		v, err := h.prefs.DailyResetTime(ctx)
		if err != nil {
			log.WithError(err).Error("Ошибка чтения границы суток")
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("Граница суток: %s", v))
		return
	}
	if err := h.prefs.SetDailyResetTime(ctx, args[0]); err != nil {
		if errors.Is(err, common.ErrInvalidResetTime) {
			h.sendMessage(ctx, chatID, "❌ "+err.Error())
			return
		}
		log.WithError(err).Error("Ошибка сохранения границы суток")
		h.sendMessage(ctx, chatID, "❌ Не удалось сохранить")
		return
	}
	if h.rearm != nil {
		h.rearm(args[0])
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("✅ Граница суток: %s", args[0]))
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
