// Package owner - вход владельца устройства в бота по паролю.
// models.go описывает сессии и попытки входа.
package owner

import "time"

// Session: активная сессия владельца.
type Session struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
}

// Параметры защиты входа.
const (
	MaxFailedAttempts = 3
	AttemptWindow     = time.Hour
	SessionTTL        = 24 * time.Hour
)

// Параметры Argon2id для новых хешей.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLen     = 16
	argonKeyLen      = 32
)
