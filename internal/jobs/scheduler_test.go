package jobs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/faust/internal/db/postgres/pgtest"
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

func TestDailySpec(t *testing.T) {
	spec, err := DailySpec("04:30")
	require.NoError(t, err)
	assert.Equal(t, "30 4 * * *", spec)

	spec, err = DailySpec("00:00")
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * *", spec)

	_, err = DailySpec("25:00")
	assert.Error(t, err)
}

func TestNeedsWeeklyCatchUp(t *testing.T) {
	// Среда, 4 марта 2026
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	assert.True(t, NeedsWeeklyCatchUp(time.Time{}, now))
	assert.True(t, NeedsWeeklyCatchUp(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), now))
	assert.False(t, NeedsWeeklyCatchUp(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), now))
	assert.False(t, NeedsWeeklyCatchUp(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), now))
}

func TestRearmReplacesDailyEntry(t *testing.T) {
	s := NewScheduler(nil, nil, nil, time.UTC, 100, nil)
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	s.Rearm("04:30")
	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC), entries[0].Schedule.Next(from))

	s.Rearm("22:15")
	entries = s.cron.Entries()
	require.Len(t, entries, 1, "старая запись удалена")
	assert.Equal(t, time.Date(2026, 3, 2, 22, 15, 0, 0, time.UTC), entries[0].Schedule.Next(from))

	s.Rearm("бред")
	entries = s.cron.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), entries[0].Schedule.Next(from), "откат на полночь")
}

func TestCatchUpWeekly(t *testing.T) {
	if testDB == nil {
		t.Skip("нет тестовой базы")
	}
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx, "point_transactions", "preferences"))

	ps := prefs.NewService(prefs.NewRepository(testDB.Pool))
	ls := ledger.NewService(ledger.NewRepository(testDB.Pool), ps)
	_, err := ls.Insert(ctx, 150, ledger.TypeMining, "seed")
	require.NoError(t, err)

	var mu sync.Mutex
	var notes []string
	s := NewScheduler(ls, nil, ps, time.UTC, 100, func(text string) {
		mu.Lock()
		defer mu.Unlock()
		notes = append(notes, text)
	})

	ran, err := s.CatchUpWeekly(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	bal, err := ls.TotalPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Value())

	ran, err = s.CatchUpWeekly(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "отметка проставлена, второй раз не сбрасываем")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "50 WP")
}
