package middleware

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "/login ***", Redact("/login hunter2"))
	assert.Equal(t, "/balance", Redact("/balance"))

	long := strings.Repeat("가", 60)
	assert.Equal(t, strings.Repeat("가", 50)+"...", Redact(long))
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1), "лимит исчерпан")
	assert.True(t, rl.Allow(2), "другой пользователь не затронут")

	now = now.Add(31 * time.Second)
	assert.True(t, rl.Allow(1), "пополнение равномерно по окну")
	assert.False(t, rl.Allow(1))
}

func TestRecoverFromPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverFromPanic()
		panic("boom")
	})
}
