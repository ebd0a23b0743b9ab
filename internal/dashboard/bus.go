package dashboard

import "sync"

// Bus fans a Snapshot out to every registered subscriber, the same
// synchronous, panic-recovering shape as proxy.Bus (§9 "Event bus") but
// carrying Snapshot payloads instead of proxy.Event ones — the two stay
// separate packages so dashboard never needs to import proxy's internal
// event-kind vocabulary just to republish stats.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func(Snapshot)
}

// Subscribe registers l to receive every future published Snapshot. The
// returned func unsubscribes it — callers with a bounded lifetime (an SSE
// request, in particular) must call it on return or the bus accumulates
// one dead listener per disconnected client.
func (b *Bus) Subscribe(l func(Snapshot)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[uint64]func(Snapshot))
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *Bus) publish(s Snapshot) {
	b.mu.Lock()
	listeners := make([]func(Snapshot), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		dispatch(l, s)
	}
}

func dispatch(l func(Snapshot), s Snapshot) {
	defer func() { recover() }()
	l(s)
}
