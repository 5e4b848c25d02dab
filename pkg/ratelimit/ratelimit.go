// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides per-sender rate limiting using the token bucket algorithm.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultMaxClients bounds the number of senders tracked at once.
	DefaultMaxClients = 10000

	// DefaultIdleTimeout is how long an unused bucket is kept.
	DefaultIdleTimeout = 5 * time.Minute
)

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Allow reports whether one more datagram fits in the bucket and takes a
// token if so.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.lastUsed = tb.now()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// refill adds tokens based on elapsed time.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

func (tb *TokenBucket) idleSince(t time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return t.Sub(tb.lastUsed)
}

// Limiter manages per-sender token buckets.
type Limiter struct {
	mu          sync.RWMutex
	limiters    map[string]*TokenBucket
	capacity    int64
	refillRate  int64
	maxClients  int
	idleTimeout time.Duration
	now         func() time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewLimiter creates a rate limiter keyed by sender address.
// Buckets unused for idleTimeout are evicted by a background sweep
// that runs until Close.
func NewLimiter(capacity, refillRate int64, maxClients int, idleTimeout time.Duration) *Limiter {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	l := &Limiter{
		limiters:    make(map[string]*TokenBucket),
		capacity:    capacity,
		refillRate:  refillRate,
		maxClients:  maxClients,
		idleTimeout: idleTimeout,
		now:         time.Now,
		stop:        make(chan struct{}),
	}

	go l.sweep()

	return l
}

// Allow reports whether a datagram from the given sender should be processed.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.RLock()
	tb, exists := l.limiters[clientID]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		// Double-check after acquiring write lock
		tb, exists = l.limiters[clientID]
		if !exists {
			if len(l.limiters) >= l.maxClients {
				l.mu.Unlock()
				return false
			}

			tb = newTokenBucket(l.capacity, l.refillRate, l.now)
			l.limiters[clientID] = tb
		}
		l.mu.Unlock()
	}

	return tb.Allow()
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle drops buckets that have not been used for idleTimeout.
func (l *Limiter) evictIdle() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for k, tb := range l.limiters {
		if tb.idleSince(now) >= l.idleTimeout {
			delete(l.limiters, k)
			evicted++
		}
	}
	return evicted
}

// Stats returns the number of tracked senders.
func (l *Limiter) Stats() (clients int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}
