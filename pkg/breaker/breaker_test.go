// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/absmach/coapfs/pkg/storage"
)

var errDisk = fmt.Errorf("%w: read-only filesystem", storage.ErrIO)

func newTestBreaker(maxFailures int) (*CircuitBreaker, *time.Time) {
	now := time.Unix(0, 0)
	cb := New(Config{MaxFailures: maxFailures, ResetTimeout: time.Minute, SuccessThreshold: 1})
	cb.now = func() time.Time { return now }
	cb.lastStateChange = now
	return cb, &now
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	cb, now := newTestBreaker(2)

	fail := func() error { return errDisk }
	ok := func() error { return nil }

	cb.Call(fail, nil)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}
	cb.Call(fail, nil)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after two failures, got %s", cb.State())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil }, nil)
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("expected open circuit to refuse calls, got %v (called=%v)", err, called)
	}

	*now = now.Add(2 * time.Minute)
	if err := cb.Call(ok, nil); err != nil {
		t.Fatalf("expected half-open trial call to run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, now := newTestBreaker(1)

	cb.Call(func() error { return errDisk }, nil)
	*now = now.Add(2 * time.Minute)
	cb.Call(func() error { return errDisk }, nil)

	if cb.State() != StateOpen {
		t.Errorf("expected a failing trial to reopen the circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_UncountedErrors(t *testing.T) {
	cb, _ := newTestBreaker(1)

	err := cb.Call(func() error { return storage.ErrNotExist }, isIOFailure)
	if !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("expected error to pass through, got %v", err)
	}
	if cb.State() != StateClosed || cb.failures != 0 {
		t.Errorf("expected uncounted error, got state %s failures %d", cb.State(), cb.failures)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, _ := newTestBreaker(1)

	var wg sync.WaitGroup
	wg.Add(1)
	var from, to State
	cb.OnStateChange(func(f, n State) {
		from, to = f, n
		wg.Done()
	})

	cb.Call(func() error { return errDisk }, nil)
	wg.Wait()

	if from != StateClosed || to != StateOpen {
		t.Errorf("expected closed -> open, got %s -> %s", from, to)
	}
}

type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Exists(string) (bool, error)       { f.calls++; return false, f.err }
func (f *failingStore) Create(string) error               { f.calls++; return f.err }
func (f *failingStore) ReadAll(string) ([]byte, error)    { f.calls++; return nil, f.err }
func (f *failingStore) WriteReplace(string, []byte) error { f.calls++; return f.err }
func (f *failingStore) Remove(string) error               { f.calls++; return f.err }

func TestStore(t *testing.T) {
	inner := &failingStore{err: errDisk}
	cb, _ := newTestBreaker(2)
	s := NewStore(inner, cb)

	s.Create("/a")
	s.WriteReplace("/a", nil)

	_, err := s.ReadAll("/a")
	if !errors.Is(err, storage.ErrIO) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected open circuit to surface as an I/O failure, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected the inner store to be skipped once open, got %d calls", inner.calls)
	}
}

func TestStore_Outcomes(t *testing.T) {
	inner := &failingStore{err: storage.ErrExist}
	cb, _ := newTestBreaker(1)
	s := NewStore(inner, cb)

	for i := 0; i < 3; i++ {
		if err := s.Create("/a"); !errors.Is(err, storage.ErrExist) {
			t.Fatalf("expected ErrExist, got %v", err)
		}
	}
	if _, err := s.Exists("/a"); errors.Is(err, ErrCircuitOpen) {
		t.Error("ordinary outcomes must not open the circuit")
	}
}
