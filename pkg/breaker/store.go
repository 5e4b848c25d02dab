// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"errors"
	"fmt"

	"github.com/absmach/coapfs/pkg/storage"
)

// Store guards a storage.Store with a circuit breaker. Only I/O failures
// count towards opening the circuit; missing or existing resources and
// sandbox refusals are ordinary outcomes. While the circuit is open every
// call fails with an error wrapping both storage.ErrIO and ErrCircuitOpen.
type Store struct {
	store storage.Store
	cb    *CircuitBreaker
}

var _ storage.Store = (*Store)(nil)

// NewStore wraps s with cb.
func NewStore(s storage.Store, cb *CircuitBreaker) *Store {
	return &Store{store: s, cb: cb}
}

func (s *Store) Exists(path string) (bool, error) {
	var exists bool
	err := s.call(func() error {
		var err error
		exists, err = s.store.Exists(path)
		return err
	})
	return exists, err
}

func (s *Store) Create(path string) error {
	return s.call(func() error { return s.store.Create(path) })
}

func (s *Store) ReadAll(path string) ([]byte, error) {
	var data []byte
	err := s.call(func() error {
		var err error
		data, err = s.store.ReadAll(path)
		return err
	})
	return data, err
}

func (s *Store) WriteReplace(path string, data []byte) error {
	return s.call(func() error { return s.store.WriteReplace(path, data) })
}

func (s *Store) Remove(path string) error {
	return s.call(func() error { return s.store.Remove(path) })
}

func (s *Store) call(fn func() error) error {
	err := s.cb.Call(fn, isIOFailure)
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", storage.ErrIO, err)
	}
	return err
}

func isIOFailure(err error) bool {
	switch {
	case errors.Is(err, storage.ErrNotExist),
		errors.Is(err, storage.ErrExist),
		errors.Is(err, storage.ErrOutsideRoot),
		errors.Is(err, storage.ErrSymlink):
		return false
	default:
		return true
	}
}
