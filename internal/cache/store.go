// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package cache provides a file-backed store for loaded inputs (warehouse
// extracts, pricing tables, account listings) so repeated runs within the
// TTL skip slow upstream queries. Entries are whole files under a cache
// directory; freshness is judged by modification time.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
)

// Store is a TTL file cache. A disabled store reports every entry stale and
// ignores writes, so callers need no enabled/disabled branches.
type Store struct {
	log     logr.Logger
	dir     string
	ttl     time.Duration
	enabled bool
}

// New creates a store rooted at dir. Pass enabled=false to disable caching
// wholesale (the DEFAULTS.CACHING switch).
func New(log logr.Logger, dir string, ttl time.Duration, enabled bool) *Store {
	return &Store{log: log, dir: dir, ttl: ttl, enabled: enabled}
}

// Path returns the on-disk location of a named entry.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, "cached-"+name)
}

// Fresh reports whether a valid entry exists for name.
func (s *Store) Fresh(name string) bool {
	if !s.enabled {
		return false
	}
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return false
	}
	fresh := time.Since(info.ModTime()) < s.ttl
	if fresh {
		s.log.Info("using existing cache file", "path", s.Path(name))
	}
	return fresh
}

// Read returns the raw contents of an entry.
func (s *Store) Read(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Write stores raw contents atomically: a partial write can never be
// mistaken for a fresh entry.
func (s *Store) Write(name string, data []byte) error {
	if !s.enabled {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", s.dir, err)
	}
	tmp, err := os.CreateTemp(s.dir, "cached-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path(name))
}

// ReadJSON decodes a JSON entry into out.
func (s *Store) ReadJSON(name string, out interface{}) error {
	data, err := s.Read(name)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// WriteJSON encodes v as a JSON entry.
func (s *Store) WriteJSON(name string, v interface{}) error {
	if !s.enabled {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Write(name, data)
}
