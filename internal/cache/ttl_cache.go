package cache

import (
	"container/list"
	"sync"
	"time"
)

type item[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTLCache 캐시는 만료 시간과 최대 크기를 가진 LRU 캐시다.
// 정규화 결과 메모이제이션과 요청 제한 카운터가 공유한다.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List
	items   map[K]*list.Element
}

// NewTTLCache 는 만료 시간과 최대 크기를 갖는 TTLCache 를 생성한다.
func NewTTLCache[K comparable, V any](maxSize int, ttl time.Duration) *TTLCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &TTLCache[K, V]{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[K]*list.Element, maxSize),
	}
}

// Get 은 키에 해당하는 값을 반환한다. 만료된 항목은 제거 후 miss 처리한다.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return zero, false
	}

	it := element.Value.(*item[K, V])
	if time.Now().After(it.expiresAt) {
		c.removeElement(element)
		return zero, false
	}

	c.order.MoveToFront(element)
	return it.value, true
}

// Set 은 키에 값을 저장하고 TTL을 갱신한다.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// Modify 는 현재 값을 읽어 변환 함수 결과로 교체한다.
// 카운터 증가처럼 read-modify-write 가 원자적으로 필요한 경우 사용한다.
func (c *TTLCache[K, V]) Modify(key K, fn func(current V, exists bool) V) (V, bool) {
	var zero V
	if fn == nil {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var current V
	exists := false
	if element, ok := c.items[key]; ok {
		it := element.Value.(*item[K, V])
		if !time.Now().After(it.expiresAt) {
			current = it.value
			exists = true
		} else {
			c.removeElement(element)
		}
	}

	next := fn(current, exists)
	c.setLocked(key, next)
	return next, true
}

// Delete 는 키를 제거한다.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return
	}
	c.removeElement(element)
}

// Len 은 현재 항목 수를 반환한다.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTLCache[K, V]) setLocked(key K, value V) {
	if element, ok := c.items[key]; ok {
		it := element.Value.(*item[K, V])
		it.value = value
		it.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(element)
		return
	}

	it := &item[K, V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	element := c.order.PushFront(it)
	c.items[key] = element
	c.evictIfNeeded()
}

func (c *TTLCache[K, V]) evictIfNeeded() {
	for len(c.items) > c.maxSize {
		element := c.order.Back()
		if element == nil {
			return
		}
		c.removeElement(element)
	}
}

func (c *TTLCache[K, V]) removeElement(element *list.Element) {
	c.order.Remove(element)
	it := element.Value.(*item[K, V])
	delete(c.items, it.key)
}
