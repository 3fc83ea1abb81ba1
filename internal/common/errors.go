// Package common - errors.go определяет ошибки,
// которые используются во всех модулях демона.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки экономики (WP)
var (
	// ErrInsufficientPoints: недостаточно WP для списания
	ErrInsufficientPoints = errors.New("недостаточно WP")
	// ErrInvalidAmount: некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
)

// Ошибки списка блокировки
var (
	// ErrBlockLimitReached: достигнут лимит приложений для текущего тарифа
	ErrBlockLimitReached = errors.New("достигнут лимит блокируемых приложений")
	// ErrEmptyPackage: пустое имя пакета
	ErrEmptyPackage = errors.New("имя пакета не задано")
	// ErrAppNotBlocked: приложение не найдено в списке блокировки
	ErrAppNotBlocked = errors.New("приложение не в списке блокировки")
)

// Ошибки настроек
var (
	// ErrInvalidResetTime: время сброса не в формате HH:mm
	ErrInvalidResetTime = errors.New("время должно быть в формате HH:mm")
	// ErrUnknownTier: неизвестный тариф
	ErrUnknownTier = errors.New("неизвестный тариф")
	// ErrUnknownPersona: неизвестная персона
	ErrUnknownPersona = errors.New("неизвестная персона")
	// ErrUnknownItem: неизвестный тип предмета
	ErrUnknownItem = errors.New("неизвестный предмет")
	// ErrUnknownGroup: неизвестная группа приложений
	ErrUnknownGroup = errors.New("неизвестная группа приложений")
)

// Ошибки владельца (бот)
var (
	// ErrNotOwner: пользователь не является владельцем устройства
	ErrNotOwner = errors.New("у вас нет доступа")
	// ErrWrongPassword: неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts: слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired: сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// Ошибки устройства
var (
	// ErrNoDevice: к мосту не подключено ни одно устройство
	ErrNoDevice = errors.New("устройство не подключено")
)

// Ошибки оверлея (защитные no-op, наружу не показываются)
var (
	// ErrStaleOverlay: действие для оверлея, которого уже нет
	ErrStaleOverlay = errors.New("оверлей уже закрыт")
	// ErrCountdownRunning: кнопки ещё заблокированы отсчётом
	ErrCountdownRunning = errors.New("отсчёт ещё не завершён")
)
