// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yahoo/ariel/pkg/pricing"
)

// InstanceFamily returns the family prefix of an instance type: everything
// before the size suffix ("c4.2xlarge" -> "c4"). Bare-metal types normalize
// like any other size of their family.
func InstanceFamily(instanceType string) string {
	if i := strings.Index(instanceType, "."); i >= 0 {
		return instanceType[:i]
	}
	return instanceType
}

// InstanceSize returns the size suffix of an instance type
// ("c4.2xlarge" -> "2xlarge"), or "" when the type has no size.
func InstanceSize(instanceType string) string {
	if i := strings.Index(instanceType, "."); i >= 0 {
		return instanceType[i+1:]
	}
	return ""
}

// RegionOfZone derives the region from an availability zone by dropping the
// trailing zone letter ("us-east-1a" -> "us-east-1").
func RegionOfZone(zone string) string {
	if zone == "" {
		return ""
	}
	return zone[:len(zone)-1]
}

// Normalize derives the canonical dimensions on the raw usage and reservation
// tables and applies the account and instance-type filters. Rows whose
// instance type has no normalization factor are dropped; rows for skipped
// accounts are dropped; when an include list is configured only those
// accounts survive. Returns InsufficientDataError when the usage table spans
// less than MinimumUsageSpan.
func Normalize(log logr.Logger, opts Options, instances []UsageRecord,
	reservations []Reservation, table *pricing.Table) ([]UsageRecord, []Reservation, error) {

	span := usageSpan(instances)
	if span < MinimumUsageSpan {
		return nil, nil, &InsufficientDataError{Span: span}
	}

	skip := toSet(opts.SkipAccounts)
	include := toSet(opts.IncludeAccounts)

	outInstances := make([]UsageRecord, 0, len(instances))
	for _, rec := range instances {
		if skip[rec.UsageAccountID] {
			continue
		}
		if len(include) > 0 && !include[rec.UsageAccountID] {
			continue
		}
		units, ok := table.UnitsFor(rec.InstanceType)
		if !ok {
			// The pricing feed occasionally lags new instance types; without
			// a normalization factor the row cannot be compared to anything.
			log.V(1).Info("dropping usage row with unknown instance type",
				"instance_type", rec.InstanceType)
			continue
		}
		rec.Region = RegionOfZone(rec.AvailabilityZone)
		rec.Family = InstanceFamily(rec.InstanceType)
		rec.HourOfWeek = HourOfWeek(rec.UsageStartDate)
		rec.InstanceUnits = rec.Instances * units
		rec.ReservedUnits = rec.Reserved * units
		outInstances = append(outInstances, rec)
	}

	outReservations := make([]Reservation, 0, len(reservations))
	for _, ri := range reservations {
		if skip[ri.AccountID] {
			continue
		}
		if len(include) > 0 && !include[ri.AccountID] {
			continue
		}
		units, ok := table.UnitsFor(ri.InstanceType)
		if !ok {
			log.V(1).Info("dropping reservation with unknown instance type",
				"instance_type", ri.InstanceType)
			continue
		}
		if ri.Region == "" {
			ri.Region = RegionOfZone(ri.AvailabilityZone)
		}
		ri.Family = InstanceFamily(ri.InstanceType)
		ri.Units = ri.Quantity * units
		outReservations = append(outReservations, ri)
	}

	log.Info("normalized input tables",
		"usage_rows", len(outInstances),
		"reservations", len(outReservations),
		"usage_span_days", int(span.Hours()/24))
	return outInstances, outReservations, nil
}

// usageSpan returns the distance between the earliest and latest usage
// timestamps.
func usageSpan(instances []UsageRecord) time.Duration {
	if len(instances) == 0 {
		return 0
	}
	earliest, latest := instances[0].UsageStartDate, instances[0].UsageStartDate
	for _, rec := range instances[1:] {
		if rec.UsageStartDate.Before(earliest) {
			earliest = rec.UsageStartDate
		}
		if rec.UsageStartDate.After(latest) {
			latest = rec.UsageStartDate
		}
	}
	return latest.Sub(earliest)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = true
		}
	}
	return set
}
