package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/faust/internal/common"
	"serotonyl.ru/faust/internal/db/postgres/pgtest"
	"serotonyl.ru/faust/internal/features/prefs"
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

func newService(t *testing.T) (*Service, *prefs.Service) {
	t.Helper()
	if testDB == nil {
		t.Skip("нет тестовой базы")
	}
	require.NoError(t, testDB.Truncate(context.Background(), "point_transactions", "preferences"))
	ps := prefs.NewService(prefs.NewRepository(testDB.Pool))
	return NewService(NewRepository(testDB.Pool), ps), ps
}

func seed(t *testing.T, s *Service, points int64) {
	t.Helper()
	_, err := s.Insert(context.Background(), points, TypeMining, "seed")
	require.NoError(t, err)
}

func TestEmptyLedgerIsUnknown(t *testing.T) {
	s, _ := newService(t)

	bal, err := s.TotalPoints(context.Background())
	require.NoError(t, err)
	assert.False(t, bal.Known)
	assert.Equal(t, int64(0), bal.Value())
}

func TestPenaltyWithinBalance(t *testing.T) {
	s, ps := newService(t)
	ctx := context.Background()
	seed(t, s, 10)

	applied, err := s.ApplyPenalty(ctx, 6, "강행")
	require.NoError(t, err)
	assert.Equal(t, int64(6), applied)

	bal, err := s.TotalPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), bal.Value())

	txs, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, TypePenalty, txs[0].Type)
	assert.Equal(t, int64(-6), txs[0].Amount)

	mirror, err := ps.CurrentPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), mirror)
}

func TestPenaltyClampedToBalance(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, 4)

	applied, err := s.ApplyPenalty(ctx, 6, "강행")
	require.NoError(t, err)
	assert.Equal(t, int64(4), applied)

	bal, err := s.TotalPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Value())

	txs, err := s.History(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(-4), txs[0].Amount)

	// при нулевом балансе штраф не записывается
	applied, err = s.ApplyPenalty(ctx, 3, "철회")
	require.NoError(t, err)
	assert.Equal(t, int64(0), applied)
	txs, err = s.History(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestWeeklyReset(t *testing.T) {
	tests := []struct {
		name        string
		balance     int64
		wantForfeit int64
		wantBalance int64
	}{
		{"выше порога", 150, 50, 100},
		{"ниже порога", 60, 60, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ps := newService(t)
			ctx := context.Background()
			seed(t, s, tt.balance)

			forfeit, err := s.WeeklyReset(ctx, 100)
			require.NoError(t, err)
			assert.Equal(t, tt.wantForfeit, forfeit)

			bal, err := s.TotalPoints(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBalance, bal.Value())

			txs, err := s.History(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, TypeReset, txs[0].Type)
			assert.Equal(t, -tt.wantForfeit, txs[0].Amount)

			last, err := ps.LastResetTime(ctx)
			require.NoError(t, err)
			assert.False(t, last.IsZero())
		})
	}
}

func TestSpendRollsBackOnInsufficientPoints(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, 10)

	_, err := s.Spend(ctx, TypePurchase, "test", func(ctx context.Context, tx pgx.Tx, balance int64) (int64, error) {
		assert.Equal(t, int64(10), balance)
		return 15, nil
	})
	require.ErrorIs(t, err, common.ErrInsufficientPoints)

	bal, err := s.TotalPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.Value())
}

func TestSpendPropagatesCallbackError(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, 10)

	boom := errors.New("boom")
	_, err := s.Spend(ctx, TypePurchase, "test", func(context.Context, pgx.Tx, int64) (int64, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestConcurrentPenaltiesNeverGoNegative(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, 10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ApplyPenalty(ctx, 3, "철회")
		}()
	}
	wg.Wait()

	bal, err := s.TotalPoints(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bal.Points, int64(0))
}

func TestSubscribeEmitsOnChange(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, 5)

	ch, cancel := s.Subscribe(ctx)
	defer cancel()
	assert.Equal(t, int64(5), <-ch)

	_, err := s.ApplyPenalty(ctx, 2, "강행")
	require.NoError(t, err)

	select {
	case v := <-ch:
		assert.Equal(t, int64(3), v)
	case <-time.After(time.Second):
		t.Fatal("баланс не опубликован")
	}
}

func TestDeleteByTypeRefreshesMirror(t *testing.T) {
	s, ps := newService(t)
	ctx := context.Background()
	seed(t, s, 10)
	_, err := s.ApplyPenalty(ctx, 4, "강행")
	require.NoError(t, err)

	ch, cancel := s.Subscribe(ctx)
	defer cancel()
	assert.Equal(t, int64(6), <-ch)

	n, err := s.DeleteByType(ctx, TypePenalty)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	bal, err := s.TotalPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.Value())

	mirror, err := ps.CurrentPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), mirror, "зеркало пересчитано вместе с удалением")

	select {
	case v := <-ch:
		assert.Equal(t, int64(10), v)
	case <-time.After(time.Second):
		t.Fatal("баланс не опубликован")
	}

	txs, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, TypeMining, txs[0].Type)
}
