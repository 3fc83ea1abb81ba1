package blocking

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// BlockedSet: кэш заблокированных пакетов для горячего пути.
// Заменяется целиком при каждом уведомлении, частичных изменений нет.
type BlockedSet struct {
	set atomic.Pointer[map[string]struct{}]
}

func NewBlockedSet() *BlockedSet {
	b := &BlockedSet{}
	b.Replace(nil)
	return b
}

// Replace подменяет содержимое кэша.
func (b *BlockedSet) Replace(pkgs []string) {
	m := make(map[string]struct{}, len(pkgs))
	for _, p := range pkgs {
		m[p] = struct{}{}
	}
	b.set.Store(&m)
}

func (b *BlockedSet) Contains(pkg string) bool {
	_, ok := (*b.set.Load())[pkg]
	return ok
}

func (b *BlockedSet) Len() int {
	return len(*b.set.Load())
}

// Follow применяет снимки из подписки, пока не закроется канал или контекст.
func (b *BlockedSet) Follow(ctx context.Context, updates <-chan []string) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkgs, ok := <-updates:
			if !ok {
				return
			}
			b.Replace(pkgs)
			log.WithField("count", len(pkgs)).Debug("Кэш блокировок обновлён")
		}
	}
}
