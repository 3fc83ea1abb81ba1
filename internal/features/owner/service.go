// Package owner - service.go содержит аутентификацию владельца и управление сессиями.
package owner

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/faust/internal/common"
)

// Service проверяет, кто может управлять устройством через бота.
type Service struct {
	repo         *Repository
	ownerIDs     []int64
	passwordHash string
}

// NewService создаёт сервис владельца.
func NewService(repo *Repository, ownerIDs []int64, passwordHash string) *Service {
	return &Service{
		repo:         repo,
		ownerIDs:     ownerIDs,
		passwordHash: passwordHash,
	}
}

// IsOwner: входит ли пользователь в список владельцев.
func (s *Service) IsOwner(userID int64) bool {
	return slices.Contains(s.ownerIDs, userID)
}

// OwnerIDs возвращает владельцев (для уведомлений).
func (s *Service) OwnerIDs() []int64 {
	return slices.Clone(s.ownerIDs)
}

// Login проверяет пароль и открывает сессию на 24 часа.
// 3 неудачные попытки за час блокируют вход.
func (s *Service) Login(ctx context.Context, userID int64, password string) error {
	if !s.IsOwner(userID) {
		return common.ErrNotOwner
	}

	attempts, err := s.repo.FailedAttempts(ctx, userID, AttemptWindow)
	if err != nil {
		return err
	}
	if attempts >= MaxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	match := VerifyArgon2id(password, s.passwordHash)
	if err := s.repo.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль владельца")
		return common.ErrWrongPassword
	}

	return s.repo.CreateSession(ctx, &Session{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    time.Now().Add(SessionTTL),
	})
}

// Logout завершает сессии пользователя.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.repo.DeleteSessions(ctx, userID)
}

// HasActiveSession: есть ли у владельца действующая сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.repo.ActiveSession(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("Не удалось проверить сессию")
		return false
	}
	return session != nil
}

// --- Криптографические утилиты ---

// HashPassword возвращает хеш в формате
// $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyArgon2id проверяет пароль по хешу Argon2id.
func VerifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	// сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// generateSecureToken генерирует токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
