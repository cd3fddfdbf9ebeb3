package limiter

import (
	"strings"
	"sync"
)

// Inflight reserves at most max concurrent slots per key in this process.
type Inflight struct {
	max int
	mu  sync.Mutex
	sem map[string]chan struct{}
}

func NewInflight(max int) *Inflight {
	if max <= 0 {
		max = 1
	}
	return &Inflight{max: max, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for key.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (f *Inflight) Allow(key string) (func(), bool) {
	key = strings.ToLower(key)
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.sem[key]
	if !ok {
		ch = make(chan struct{}, f.max)
		f.sem[key] = ch
	}
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { f.release(key, ch) }) }, true
	default:
		return func() {}, false
	}
}

func (f *Inflight) release(key string, ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	<-ch
	if len(ch) == 0 && f.sem[key] == ch {
		delete(f.sem, key)
	}
}

// Len reports how many keys currently hold a slot.
func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sem)
}
