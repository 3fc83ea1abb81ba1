package owner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/db/postgres/pgtest"
)

var testDB *pgtest.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := pgtest.Start(ctx)
	if err != nil {
		fmt.Printf("PostgreSQL недоступен, интеграционные тесты пропущены: %v\n", err)
	}
	testDB = db

	code := m.Run()
	testDB.Close(ctx)
	os.Exit(code)
}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$"))

	assert.True(t, VerifyArgon2id("s3cret", hash))
	assert.False(t, VerifyArgon2id("wrong", hash))
	assert.False(t, VerifyArgon2id("s3cret", "not-a-hash"))
}

func TestIsOwner(t *testing.T) {
	s := NewService(nil, []int64{42}, "")
	assert.True(t, s.IsOwner(42))
	assert.False(t, s.IsOwner(7))
}

func TestLoginLocksAfterThreeFailures(t *testing.T) {
	if testDB == nil {
		t.Skip("нет тестовой базы")
	}
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx, "owner_sessions", "owner_login_attempts"))

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	s := NewService(NewRepository(testDB.Pool), []int64{42}, hash)

	require.ErrorIs(t, s.Login(ctx, 7, "s3cret"), common.ErrNotOwner)
	assert.False(t, s.HasActiveSession(ctx, 42))

	require.NoError(t, s.Login(ctx, 42, "s3cret"))
	assert.True(t, s.HasActiveSession(ctx, 42))

	require.NoError(t, s.Logout(ctx, 42))
	assert.False(t, s.HasActiveSession(ctx, 42))

	for i := 0; i < MaxFailedAttempts; i++ {
		require.ErrorIs(t, s.Login(ctx, 42, "nope"), common.ErrWrongPassword)
	}
	require.ErrorIs(t, s.Login(ctx, 42, "s3cret"), common.ErrTooManyAttempts)
}
