// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asic

import "sync"

// Store holds the current configuration of an ASIC.
// It is safe for concurrent use: encoders work on snapshots while
// updates are applied under the lock.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore returns a store holding cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies f to the current configuration.
// The configuration is left unchanged if f returns an error.
func (s *Store) Update(f func(cfg *Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	err := f(&cfg)
	if err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}
