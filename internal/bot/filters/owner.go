// Package filters решает, отвечает ли бот на сообщение.
package filters

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// OwnerChecker: источник списка владельцев.
type OwnerChecker interface {
	IsOwner(userID int64) bool
}

// OwnerFilter пропускает только личные сообщения владельцев устройства.
type OwnerFilter struct {
	owners OwnerChecker
	bot    *telego.Bot
}

func NewOwnerFilter(owners OwnerChecker, bot *telego.Bot) *OwnerFilter {
	return &OwnerFilter{owners: owners, bot: bot}
}

func (f *OwnerFilter) CheckAccess(ctx context.Context, message *telego.Message) bool {
	if message == nil {
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "OwnerFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("deny: нет отправителя (канал или служебное сообщение)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "OwnerFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	// Группы игнорируем молча
	if message.Chat.Type != telego.ChatTypePrivate {
		logger.Debug("deny: не личный чат")
		return false
	}

	if f.owners.IsOwner(message.From.ID) {
		return true
	}

	logger.Info("deny: не владелец")
	if f.bot != nil {
		deny := tu.Message(tu.ID(message.Chat.ID), "❌ Бот отвечает только владельцу устройства")
		if _, err := f.bot.SendMessage(ctx, deny); err != nil {
			logger.WithError(err).Warn("Не удалось отправить отказ")
		}
	}
	return false
}
