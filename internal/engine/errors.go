// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"fmt"
	"time"
)

// MinimumUsageSpan is the shortest usage window that yields a stable
// percentile estimate. Runs over shorter windows are refused.
const MinimumUsageSpan = 14 * 24 * time.Hour

// InsufficientDataError aborts a run whose usage table spans less than
// MinimumUsageSpan.
type InsufficientDataError struct {
	Span time.Duration
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient usage data: span %s is below the %s minimum",
		e.Span, MinimumUsageSpan)
}

// MissingPricingDataError marks a group or offering that had to be skipped
// because the pricing table carries no entry for it. It is logged, never
// fatal: the run continues with the remaining groups.
type MissingPricingDataError struct {
	Region          string
	InstanceType    string
	Tenancy         string
	OperatingSystem string
	RateKey         string // set when an entry exists but has no matching reserved rate
}

func (e *MissingPricingDataError) Error() string {
	if e.RateKey != "" {
		return fmt.Sprintf("missing reserved rate %q for %s:%s:%s:%s",
			e.RateKey, e.Region, e.InstanceType, e.Tenancy, e.OperatingSystem)
	}
	return fmt.Sprintf("missing pricing data for %s:%s:%s:%s",
		e.Region, e.InstanceType, e.Tenancy, e.OperatingSystem)
}
