package withdrawal

import (
	"container/list"
)

// idempotencyLRU maps idempotency keys to withdrawal request ids
// Not thread-safe, guarded by the workflow mutex
type idempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

type lruEntry struct {
	key       string
	requestID string
}

func newIdempotencyLRU(capacity int) *idempotencyLRU {
	return &idempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the request id for key and marks it recently used
func (l *idempotencyLRU) Get(key string) (string, bool) {
	elem, ok := l.cache[key]
	if !ok {
		return "", false
	}
	l.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).requestID, true
}

func (l *idempotencyLRU) Add(key string, requestID string) {
	if elem, ok := l.cache[key]; ok {
		elem.Value.(*lruEntry).requestID = requestID
		l.order.MoveToFront(elem)
		return
	}

	l.cache[key] = l.order.PushFront(&lruEntry{key: key, requestID: requestID})

	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.cache, oldest.Value.(*lruEntry).key)
	}
}

func (l *idempotencyLRU) Remove(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.Remove(elem)
		delete(l.cache, key)
	}
}

func (l *idempotencyLRU) Len() int {
	return l.order.Len()
}
