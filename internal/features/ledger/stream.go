package ledger

import "sync"

// broadcaster раздаёт баланс подписчикам.
// Буфер каждого канала - одно значение: новое вытесняет непрочитанное старое.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan int64]struct{}
	last int64
	has  bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan int64]struct{})}
}

func (b *broadcaster) subscribe() (chan int64, func()) {
	ch := make(chan int64, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// seed кладёт стартовое значение одному подписчику.
func (b *broadcaster) seed(ch chan int64, v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	if !b.has {
		b.last, b.has = v, true
	}
	replace(ch, v)
}

// publish рассылает значение, если оно отличается от предыдущего.
func (b *broadcaster) publish(v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.has && b.last == v {
		return
	}
	b.last, b.has = v, true
	for ch := range b.subs {
		replace(ch, v)
	}
}

func replace(ch chan int64, v int64) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
