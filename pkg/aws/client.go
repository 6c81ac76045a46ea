// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package aws loads ariel's inputs from AWS: hourly instance usage from the
// cost-and-usage warehouse via Athena, the active reservation inventory from
// Cost Explorer, and account names from Organizations. All queries run under
// the master (payer) account role.
package aws

import (
	"context"
	"time"

	"github.com/yahoo/ariel/internal/engine"
)

// Client is the interface for loading report inputs from AWS.
// It provides access to the Athena usage warehouse, Cost Explorer and
// Organizations APIs with built-in support for master-role AssumeRole
// operations, plus object access for s3:// and file:// locations.
type Client interface {
	// Usage runs the hourly instance-usage query against the warehouse and
	// returns one record per (hour, account, zone, type, tenancy, OS).
	Usage(ctx context.Context, query UsageQuery) ([]engine.UsageRecord, error)

	// Reservations returns the active reserved instance inventory.
	Reservations(ctx context.Context, region string) ([]engine.Reservation, error)

	// AccountNames returns the organization's account id -> name map.
	// The paginated listing is retried up to retries times per page.
	AccountNames(ctx context.Context, retries int) (map[string]string, error)

	// ReadObject fetches the contents of an s3:// URI or local file path.
	ReadObject(ctx context.Context, uri string) ([]byte, error)

	// WriteObject stores data at an s3:// URI or local file path.
	WriteObject(ctx context.Context, uri string, data []byte) error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Region is the default region for API calls.
	Region string

	// MasterRole is the IAM role ARN assumed for all queries. Empty means
	// the default credential chain is used directly.
	MasterRole string
}

// UsageQuery identifies the warehouse and the usage window to extract.
type UsageQuery struct {
	// Region is the region the Athena warehouse lives in. Falls back to
	// the client's default region when empty.
	Region string

	// Database and TableName locate the cost-and-usage table.
	Database  string
	TableName string

	// Staging is the s3:// location Athena writes query results to.
	Staging string

	// Start (inclusive) and End (exclusive) bound the usage window.
	Start time.Time
	End   time.Time
}
