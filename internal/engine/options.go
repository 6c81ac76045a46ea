// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"fmt"
	"strings"
)

// Purchase sizing policies for Options.RISize.
const (
	SizeLargest  = "largest"
	SizeSmallest = "smallest"
)

// Offering classes evaluated for every group.
var offeringClasses = []string{"standard", "convertible"}

// Payment option fallback order when the configured option has no rate.
var paymentOptionFallback = []string{"No Upfront", "Partial Upfront", "All Upfront"}

// Options is the engine configuration, resolved once from the loaded config
// before the run starts. Optional thresholds are pointers: nil disables the
// branch they guard.
type Options struct {
	// SkipAccounts lists account IDs excluded from analysis.
	SkipAccounts []string

	// IncludeAccounts, when non-empty, restricts analysis to these accounts.
	IncludeAccounts []string

	// FilterThreshold is the outlier dampening ratio for trend estimation:
	// points deviating more than FilterThreshold times the median deviation
	// from the mean are replaced by the series median.
	FilterThreshold float64

	// AggressiveThreshold and ConservativeThreshold classify the usage slope
	// (units/day) into a purchasing algorithm. Nil disables the branch.
	AggressiveThreshold   *float64
	ConservativeThreshold *float64

	// RISize selects the purchase unit within a family: SizeLargest,
	// SizeSmallest, or a named instance type/size.
	RISize string

	// RITermMonths is the reservation term for recommended purchases.
	RITermMonths int

	// RIOption is the preferred payment option; the standard fallback order
	// applies when it is empty or has no rate in the pricing data.
	RIOption string

	// SlushAccount receives pooled demand in slush mode.
	SlushAccount string

	// UtilTargets maps "{OFFERING}_{ALGORITHM}[_SLUSH]_UTIL_TARGET" keys to a
	// literal percentage or "BREAK_EVEN". A missing key skips that combination.
	UtilTargets map[string]string
}

// DefaultOptions returns Options with the documented defaults applied.
func DefaultOptions() Options {
	return Options{
		FilterThreshold: 3,
		RISize:          SizeLargest,
		UtilTargets:     map[string]string{},
	}
}

// utilTargetKey builds the config key for one (offering, algorithm, pooling)
// combination, e.g. "CONVERTIBLE_AGGRESSIVE_SLUSH_UTIL_TARGET".
func utilTargetKey(offering, algorithm string, slush bool) string {
	pool := ""
	if slush {
		pool = "SLUSH_"
	}
	return fmt.Sprintf("%s_%s_%sUTIL_TARGET", strings.ToUpper(offering), algorithm, pool)
}

// utilTarget resolves the utilization target for a combination. The second
// return is false when no target is configured.
func (o Options) utilTarget(offering, algorithm string, slush bool) (string, bool) {
	value, ok := o.UtilTargets[utilTargetKey(offering, algorithm, slush)]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// paymentOptions returns the payment options to try in preference order.
func (o Options) paymentOptions() []string {
	if o.RIOption == "" {
		return paymentOptionFallback
	}
	return append([]string{o.RIOption}, paymentOptionFallback...)
}

// termYears renders the term as the pricing catalog spells it.
func (o Options) termYears() string {
	if o.RITermMonths == 36 {
		return "3yr"
	}
	return "1yr"
}
