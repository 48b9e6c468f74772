package lease

import (
	"context"
	"sync"
	"time"
)

// Locker выдаёт аренду задачи на время ttl; только один владелец получает true
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// LocalLocker аренда в пределах одного процесса
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		leases: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.leases[key]; ok && now.Before(expires) {
		return false, nil
	}

	// чистим просроченные аренды, чтобы карта не росла
	for k, expires := range l.leases {
		if !now.Before(expires) {
			delete(l.leases, k)
		}
	}

	l.leases[key] = now.Add(ttl)
	return true, nil
}
