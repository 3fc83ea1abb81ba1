package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampDelta(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		amount  int64
		want    int64
	}{
		{"штраф меньше баланса", 10, -6, -6},
		{"штраф больше баланса", 4, -6, -4},
		{"нулевой баланс", 0, -6, 0},
		{"начисление", 0, 5, 5},
		{"отрицательный баланс считается нулём", -3, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampDelta(tt.balance, tt.amount))
		})
	}
}

func TestResetForfeit(t *testing.T) {
	assert.Equal(t, int64(50), ResetForfeit(150, 100))
	assert.Equal(t, int64(100), ResetForfeit(100, 100))
	assert.Equal(t, int64(60), ResetForfeit(60, 100))
	assert.Equal(t, int64(0), ResetForfeit(0, 100))
}

func TestBalanceValue(t *testing.T) {
	assert.Equal(t, int64(0), Balance{}.Value())
	assert.Equal(t, int64(7), Balance{Known: true, Points: 7}.Value())
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "📭 Журнал пуст", FormatHistory(nil, time.UTC))

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	out := FormatHistory([]*Transaction{
		{Amount: -6, Type: TypePenalty, Reason: "강행", CreatedAt: at},
	}, time.UTC)
	assert.True(t, strings.Contains(out, "-6 WP"))
	assert.True(t, strings.Contains(out, "PENALTY"))
	assert.True(t, strings.Contains(out, "02.03.2026 09:30"))
}

func TestBroadcasterKeepsLatest(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()
	defer cancel()

	b.publish(1)
	b.publish(2)
	b.publish(3)
	assert.Equal(t, int64(3), <-ch)

	// повтор того же значения не рассылается
	b.publish(3)
	select {
	case v := <-ch:
		t.Fatalf("неожиданное значение %d", v)
	default:
	}
}

func TestBroadcasterCancelClosesChannel(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	b.publish(5)
}
