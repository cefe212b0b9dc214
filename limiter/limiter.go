package limiter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(context.Context) error
	Limit() rate.Limit
}

// Config mirrors one [[fetcher.limits]] entry: EventCount events every
// EventDur seconds with the given burst.
type Config struct {
	EventCount int `json:"eventCount"`
	EventDur   int `json:"eventDur"`
	Bucket     int `json:"bucket"`
}

func Per(eventCount int, duration time.Duration) rate.Limit {
	return rate.Every(duration / time.Duration(eventCount))
}

// FromConfig builds a MultiLimiter from config entries. It returns nil when
// no usable entry is present.
func FromConfig(cfgs []Config) RateLimiter {
	var limiters []RateLimiter
	for _, c := range cfgs {
		if c.EventCount <= 0 || c.EventDur <= 0 {
			continue
		}
		bucket := c.Bucket
		if bucket <= 0 {
			bucket = 1
		}
		limiters = append(limiters,
			rate.NewLimiter(Per(c.EventCount, time.Duration(c.EventDur)*time.Second), bucket))
	}
	if len(limiters) == 0 {
		return nil
	}
	return Multi(limiters...)
}

func Multi(limiters ...RateLimiter) *MultiLimiter {
	byLimit := func(i, j int) bool {
		return limiters[i].Limit() < limiters[j].Limit()
	}
	sort.Slice(limiters, byLimit)

	return &MultiLimiter{limiters: limiters}
}

type MultiLimiter struct {
	limiters []RateLimiter
}

func (l *MultiLimiter) Wait(ctx context.Context) error {
	for _, l := range l.limiters {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (l *MultiLimiter) Limit() rate.Limit {
	return l.limiters[0].Limit()
}

// Floor allows one event per delay with no burst, so two successful Waits
// never return closer together than delay. A zero delay never blocks.
func Floor(delay time.Duration) RateLimiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Bucket adapts a token bucket to RateLimiter with context cancellation.
type Bucket struct {
	b *ratelimit.Bucket
}

func NewBucket(interval time.Duration, capacity int64) *Bucket {
	return &Bucket{b: ratelimit.NewBucket(interval, capacity)}
}

func (b *Bucket) Wait(ctx context.Context) error {
	d, ok := b.b.TakeMaxDuration(1, maxWait(ctx))
	if !ok {
		return context.DeadlineExceeded
	}
	if d == 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bucket) Limit() rate.Limit {
	return rate.Limit(b.b.Rate())
}

func maxWait(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return time.Duration(1<<63 - 1)
}

// PerHost keeps one limiter per host, created on first use.
type PerHost struct {
	mu     sync.Mutex
	new    func() RateLimiter
	byHost map[string]RateLimiter
}

func NewPerHost(factory func() RateLimiter) *PerHost {
	return &PerHost{new: factory, byHost: make(map[string]RateLimiter)}
}

func (p *PerHost) Wait(ctx context.Context, host string) error {
	p.mu.Lock()
	l, ok := p.byHost[host]
	if !ok {
		l = p.new()
		p.byHost[host] = l
	}
	p.mu.Unlock()

	return l.Wait(ctx)
}
