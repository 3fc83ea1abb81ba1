package middleware

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic гасит панику в обработчике и пишет стек в лог.
// Вызывается через defer в начале горутины: апдейта бота,
// шага цикла координатора, тика майнинга.
func RecoverFromPanic() {
	if r := recover(); r != nil {
		log.WithFields(log.Fields{
			"component": "panic_recovery",
			"panic":     fmt.Sprintf("%v", r),
			"stack":     string(debug.Stack()),
		}).Error("ПАНИКА перехвачена, процесс продолжает работу")
	}
}
