// Package owner - repository.go работает с таблицами owner_sessions и owner_login_attempts.
package owner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository работает с таблицами владельца.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession создаёт новую сессию.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO owner_sessions (user_id, session_token, expires_at)
		VALUES ($1, $2, $3)
	`, s.UserID, s.SessionToken, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// ActiveSession возвращает действующую сессию или nil.
func (r *Repository) ActiveSession(ctx context.Context, userID int64) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, session_token, authenticated_at, expires_at
		FROM owner_sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY authenticated_at DESC
		LIMIT 1
	`, userID).Scan(&s.ID, &s.UserID, &s.SessionToken, &s.AuthenticatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return &s, nil
}

// DeleteSessions завершает все сессии пользователя.
func (r *Repository) DeleteSessions(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM owner_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("ошибка удаления сессий: %w", err)
	}
	return nil
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool) error {
	_, err := r.db.Exec(ctx, `INSERT INTO owner_login_attempts (user_id, success) VALUES ($1, $2)`, userID, success)
	if err != nil {
		return fmt.Errorf("ошибка записи попытки входа: %w", err)
	}
	return nil
}

// FailedAttempts: число неудачных попыток за период.
func (r *Repository) FailedAttempts(ctx context.Context, userID int64, period time.Duration) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM owner_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempted_at >= $2
	`, userID, time.Now().Add(-period)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта попыток: %w", err)
	}
	return count, nil
}
