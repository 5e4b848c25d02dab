// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucket(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(3, 1, clock.Now)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if tb.Allow() {
		t.Fatal("fourth request should be limited")
	}

	clock.Advance(2 * time.Second)
	if !tb.Allow() || !tb.Allow() {
		t.Fatal("expected 2 tokens after 2s")
	}
	if tb.Allow() {
		t.Error("expected the refilled tokens to be used up")
	}

	clock.Advance(time.Hour)
	allowed := 0
	for tb.Allow() {
		allowed++
	}
	if allowed != 3 {
		t.Errorf("expected tokens capped at 3, got %d", allowed)
	}
}

func TestLimiter_PerSender(t *testing.T) {
	l := NewLimiter(1, 1, 0, time.Minute)
	defer l.Close()

	if !l.Allow("a") {
		t.Fatal("first datagram from a should be allowed")
	}
	if l.Allow("a") {
		t.Error("second datagram from a should be limited")
	}
	if !l.Allow("b") {
		t.Error("b has its own bucket")
	}
	if got := l.Stats(); got != 2 {
		t.Errorf("expected 2 tracked senders, got %d", got)
	}
}

func TestLimiter_MaxClients(t *testing.T) {
	l := NewLimiter(10, 1, 2, time.Minute)
	defer l.Close()

	l.Allow("a")
	l.Allow("b")
	if l.Allow("c") {
		t.Error("expected new sender to be refused once maxClients is reached")
	}
	if !l.Allow("a") {
		t.Error("existing senders keep their buckets")
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := NewLimiter(1, 1, 0, time.Minute)
	defer l.Close()
	l.now = clock.Now

	l.Allow("idle")
	clock.Advance(30 * time.Second)
	l.Allow("busy")
	clock.Advance(45 * time.Second)

	if n := l.evictIdle(); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if got := l.Stats(); got != 1 {
		t.Errorf("expected 1 remaining sender, got %d", got)
	}
}

func TestLimiter_CloseTwice(t *testing.T) {
	l := NewLimiter(1, 1, 0, 0)
	l.Close()
	l.Close()
}
