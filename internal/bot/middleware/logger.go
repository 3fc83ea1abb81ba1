// Package middleware содержит промежуточные обработчики бота:
// логирование входящих сообщений, восстановление после паники
// и ограничение частоты команд.
package middleware

import (
	"unicode/utf8"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

const maxLoggedRunes = 50

// LogMessage логирует входящее сообщение.
// Аргументы /login не попадают в лог.
func LogMessage(message *telego.Message) {
	if message == nil || message.From == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.Username,
		"text":     Redact(message.Text),
	}).Debug("Входящее сообщение")
}

// Redact обрезает текст и прячет пароль из /login.
func Redact(text string) string {
	if len(text) >= 6 && text[:6] == "/login" {
		return "/login ***"
	}
	if utf8.RuneCountInString(text) > maxLoggedRunes {
		runes := []rune(text)
		return string(runes[:maxLoggedRunes]) + "..."
	}
	return text
}
