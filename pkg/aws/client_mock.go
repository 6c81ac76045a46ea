// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/yahoo/ariel/internal/engine"
)

// MockClient is a mock implementation of the Client interface for testing.
// It serves configured fixtures and tracks the queries issued against it.
type MockClient struct {
	mu sync.Mutex

	// UsageRecords, ReservationRows and Names are returned verbatim.
	UsageRecords    []engine.UsageRecord
	ReservationRows []engine.Reservation
	Names           map[string]string

	// Objects maps URIs to contents for ReadObject; WriteObject stores
	// into the same map.
	Objects map[string][]byte

	// Errors can be set to simulate API failures.
	UsageError        error
	ReservationsError error
	AccountNamesError error

	// UsageQueries records every Usage call's query.
	UsageQueries []UsageQuery
}

// NewMockClient creates a MockClient with initialized maps.
func NewMockClient() *MockClient {
	return &MockClient{
		Names:   make(map[string]string),
		Objects: make(map[string][]byte),
	}
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Usage(_ context.Context, query UsageQuery) ([]engine.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UsageQueries = append(m.UsageQueries, query)
	if m.UsageError != nil {
		return nil, m.UsageError
	}
	return m.UsageRecords, nil
}

func (m *MockClient) Reservations(context.Context, string) ([]engine.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReservationsError != nil {
		return nil, m.ReservationsError
	}
	return m.ReservationRows, nil
}

func (m *MockClient) AccountNames(context.Context, int) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AccountNamesError != nil {
		return nil, m.AccountNamesError
	}
	return m.Names, nil
}

func (m *MockClient) ReadObject(_ context.Context, uri string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[uri]
	if !ok {
		return nil, fmt.Errorf("no such object %q", uri)
	}
	return data, nil
}

func (m *MockClient) WriteObject(_ context.Context, uri string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[uri] = append([]byte(nil), data...)
	return nil
}
