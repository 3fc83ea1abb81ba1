package passes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/faust/internal/db/postgres/pgtest"
	"serotonyl.ru/faust/internal/features/groups"
	"serotonyl.ru/faust/internal/features/ledger"
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

type clock struct{ at time.Time }

func (c *clock) now() time.Time { return c.at }

func newService(t *testing.T, balance int64) (*Service, *ledger.Service, *clock) {
	t.Helper()
	if testDB == nil {
		t.Skip("нет тестовой базы")
	}
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx,
		"point_transactions", "preferences", "free_pass_items", "daily_usage_records"))

	ps := prefs.NewService(prefs.NewRepository(testDB.Pool))
	ls := ledger.NewService(ledger.NewRepository(testDB.Pool), ps)
	if balance > 0 {
		_, err := ls.Insert(ctx, balance, ledger.TypeMining, "seed")
		require.NoError(t, err)
	}

	c := &clock{at: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	s := NewService(NewRepository(testDB.Pool), ls, ps, time.UTC)
	s.now = c.now
	t.Cleanup(s.Stop)
	return s, ls, c
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	var f *Failure
	require.True(t, errors.As(err, &f), "ожидался *Failure, получено %v", err)
	assert.Equal(t, want, f.Reason)
}

func TestPurchaseStandardTicketsUntilFull(t *testing.T) {
	s, ls, _ := newService(t, 200)
	ctx := context.Background()

	it, err := s.Purchase(ctx, StandardTicket)
	require.NoError(t, err)
	assert.Equal(t, 1, it.Quantity)

	it, err = s.Purchase(ctx, StandardTicket)
	require.NoError(t, err)
	assert.Equal(t, 2, it.Quantity)

	_, err = s.Purchase(ctx, StandardTicket)
	require.NoError(t, err)

	_, err = s.Purchase(ctx, StandardTicket)
	requireReason(t, err, ReasonInventoryFull)

	bal, err := ls.TotalPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200-20-30-40), bal.Value())
}

func TestPurchaseInsufficientPointsChangesNothing(t *testing.T) {
	s, ls, _ := newService(t, 10)
	ctx := context.Background()

	_, err := s.Purchase(ctx, DopamineShot)
	requireReason(t, err, ReasonInsufficientPoints)

	items, err := s.Inventory(ctx)
	require.NoError(t, err)
	assert.True(t, items[DopamineShot].LastPurchaseTime.IsZero())

	bal, err := ls.TotalPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.Value())
}

func TestDopamineShotActivatesSNSPass(t *testing.T) {
	s, _, c := newService(t, 50)
	ctx := context.Background()

	_, err := s.Purchase(ctx, DopamineShot)
	require.NoError(t, err)

	active, err := s.IsPassActiveForGroup(ctx, groups.GroupSNS)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = s.IsPassActiveForGroup(ctx, groups.GroupOTT)
	require.NoError(t, err)
	assert.False(t, active)

	// через 20 минут пропуск снимается при чтении
	var expired []ItemType
	s.OnExpire(func(item ItemType) { expired = append(expired, item) })
	c.at = c.at.Add(20 * time.Minute)

	pass, err := s.GetActivePass(ctx)
	require.NoError(t, err)
	assert.Nil(t, pass)
	assert.Equal(t, []ItemType{DopamineShot}, expired)

	cleared, err := s.ClearIfExpired(ctx)
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestUseStandardTicketCountsDailyUsage(t *testing.T) {
	s, _, c := newService(t, 500)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Purchase(ctx, StandardTicket)
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		_, err := s.Use(ctx, StandardTicket)
		require.NoError(t, err)
		c.at = c.at.Add(time.Minute)
	}

	active, err := s.IsStandardTicketActive(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = s.Use(ctx, StandardTicket)
	requireReason(t, err, ReasonNoTickets)

	_, err = s.Purchase(ctx, StandardTicket)
	require.NoError(t, err)
	_, err = s.Use(ctx, StandardTicket)
	requireReason(t, err, ReasonCooldown)

	require.NoError(t, s.ResetDailyUsage(ctx))
	_, err = s.Use(ctx, StandardTicket)
	require.NoError(t, err)
}

func TestUseWithoutItem(t *testing.T) {
	s, _, _ := newService(t, 0)

	_, err := s.Use(context.Background(), CinemaPass)
	requireReason(t, err, ReasonNotOwned)
}
