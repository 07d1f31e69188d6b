package cas

import (
	"container/list"
	"sync"
)

// LRUCache is a CAS wrapper that keeps recently read entries in memory.
type LRUCache struct {
	underlying CAS

	mu        sync.Mutex
	cache     map[Hash]*list.Element
	evictList *list.List
	maxSize   int
	hits      int
	misses    int
}

type cacheEntry struct {
	hash  Hash
	value []byte
}

// NewLRUCache wraps underlying. A maxSize of 0 or less uses a default of 1000 entries.
func NewLRUCache(underlying CAS, maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LRUCache{
		underlying: underlying,
		cache:      make(map[Hash]*list.Element),
		evictList:  list.New(),
		maxSize:    maxSize,
	}
}

func (l *LRUCache) Put(item Hashable) (Hash, error) {
	return l.underlying.Put(item)
}

func (l *LRUCache) Has(hash Hash) bool {
	l.mu.Lock()
	_, ok := l.cache[hash]
	l.mu.Unlock()
	return ok || l.underlying.Has(hash)
}

func (l *LRUCache) getValue(h Hash) (bool, []byte, error) {
	l.mu.Lock()
	if elem, ok := l.cache[h]; ok {
		l.evictList.MoveToFront(elem)
		l.hits++
		v := elem.Value.(*cacheEntry).value
		l.mu.Unlock()
		return true, v, nil
	}
	l.misses++
	l.mu.Unlock()

	underlying, ok := l.underlying.(directStore)
	if !ok {
		return false, nil, nil
	}
	has, data, err := underlying.getValue(h)
	if err != nil || !has {
		return has, nil, err
	}
	l.addToCache(h, data)
	return true, data, nil
}

func (l *LRUCache) addToCache(hash Hash, value []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elem, ok := l.cache[hash]; ok {
		l.evictList.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	elem := l.evictList.PushFront(&cacheEntry{hash: hash, value: value})
	l.cache[hash] = elem
	if l.evictList.Len() > l.maxSize {
		l.evictOldest()
	}
}

func (l *LRUCache) evictOldest() {
	elem := l.evictList.Back()
	if elem != nil {
		l.evictList.Remove(elem)
		delete(l.cache, elem.Value.(*cacheEntry).hash)
	}
}

type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int
	Misses  int
}

func (l *LRUCache) Stats() CacheStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return CacheStats{
		Size:    len(l.cache),
		MaxSize: l.maxSize,
		Hits:    l.hits,
		Misses:  l.misses,
	}
}
