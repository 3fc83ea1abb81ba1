package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter ограничивает частоту команд на пользователя:
// не больше limit запросов за window, с пополнением равномерно по окну.
type RateLimiter struct {
	mu    sync.Mutex
	users map[int64]*userLimiter
	every rate.Limit
	burst int
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	rl := &RateLimiter{
		users:  make(map[int64]*userLimiter),
		every:  rate.Every(window / time.Duration(limit)),
		burst:  limit,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую очистку.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.users[userID] = u
	}
	u.lastSeen = now
	return u.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-idleTTL)
			for userID, u := range rl.users {
				if u.lastSeen.Before(cutoff) {
					delete(rl.users, userID)
				}
			}
			rl.mu.Unlock()
		}
	}
}
