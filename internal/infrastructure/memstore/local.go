package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SendCounter counts sends per contact per day in process memory. Counts
// from earlier days are never read again and are dropped on the next write.
type SendCounter struct {
	mu     sync.Mutex
	day    string
	counts map[string]int64
}

// NewSendCounter creates an empty counter
func NewSendCounter() *SendCounter {
	return &SendCounter{counts: make(map[string]int64)}
}

func (c *SendCounter) Count(_ context.Context, tenantID, contactID uuid.UUID, day string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[counterKey(tenantID, contactID, day)], nil
}

func (c *SendCounter) Increment(_ context.Context, tenantID, contactID uuid.UUID, day string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// tenants in different timezones can be a day apart, so only prune
	// once the calendar has clearly moved on
	if day > c.day {
		if c.day != "" && !sameOrAdjacentDay(c.day, day) {
			c.counts = make(map[string]int64)
		}
		c.day = day
	}

	key := counterKey(tenantID, contactID, day)
	c.counts[key]++
	return c.counts[key], nil
}

func counterKey(tenantID, contactID uuid.UUID, day string) string {
	return tenantID.String() + ":" + contactID.String() + ":" + day
}

func sameOrAdjacentDay(a, b string) bool {
	ta, errA := time.Parse(time.DateOnly, a)
	tb, errB := time.Parse(time.DateOnly, b)
	if errA != nil || errB != nil {
		return false
	}
	d := tb.Sub(ta)
	return d >= -24*time.Hour && d <= 24*time.Hour
}

// Locker grants leases within a single process
type Locker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token   uuid.UUID
	expires time.Time
}

// NewLocker creates an empty in-process locker
func NewLocker() *Locker {
	return &Locker{leases: make(map[string]lease), now: time.Now}
}

func (l *Locker) TryAcquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, false, nil
	}

	token := uuid.New()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}
		return nil
	}
	return release, true, nil
}
