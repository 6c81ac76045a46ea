// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"sort"
	"time"
)

// scopedGroupKey extends GroupKey with the reservation scope.
type scopedGroupKey struct {
	GroupKey
	Scope string
}

// aggregates holds the grouped views of the normalized tables that every
// allocation stage reads from. Pure grouping; no allocation state lives here.
type aggregates struct {
	zoneGroups        map[ZoneKey][]*UsageRecord
	zoneAccountGroups map[ZoneAccountKey][]*UsageRecord

	regionGroups        map[GroupKey][]*UsageRecord
	regionAccountGroups map[AccountGroupKey][]*UsageRecord

	// riGroups indexes reservations by group and scope, preserving input
	// order within each slice: zone-scoped assignment is order-sensitive.
	riGroups map[scopedGroupKey][]*Reservation

	// riRegionKeys is the set of groups that have reservations, whether or
	// not they have usage.
	riRegionKeys map[GroupKey]bool

	// timerange is the sorted set of distinct usage timestamps across the
	// whole input. Demand series are reindexed over it so partial-window
	// usage does not skew percentiles.
	timerange []time.Time
}

// buildAggregates constructs all grouped views in one pass over each table.
func buildAggregates(instances []UsageRecord, reservations []Reservation) *aggregates {
	a := &aggregates{
		zoneGroups:          make(map[ZoneKey][]*UsageRecord),
		zoneAccountGroups:   make(map[ZoneAccountKey][]*UsageRecord),
		regionGroups:        make(map[GroupKey][]*UsageRecord),
		regionAccountGroups: make(map[AccountGroupKey][]*UsageRecord),
		riGroups:            make(map[scopedGroupKey][]*Reservation),
		riRegionKeys:        make(map[GroupKey]bool),
	}

	seen := make(map[time.Time]bool)
	for i := range instances {
		rec := &instances[i]
		zk := ZoneKey{rec.AvailabilityZone, rec.InstanceType, rec.Tenancy, rec.OperatingSystem}
		gk := GroupKey{rec.Region, rec.Family, rec.Tenancy, rec.OperatingSystem}
		a.zoneGroups[zk] = append(a.zoneGroups[zk], rec)
		a.zoneAccountGroups[ZoneAccountKey{zk, rec.UsageAccountID}] =
			append(a.zoneAccountGroups[ZoneAccountKey{zk, rec.UsageAccountID}], rec)
		a.regionGroups[gk] = append(a.regionGroups[gk], rec)
		a.regionAccountGroups[AccountGroupKey{gk, rec.UsageAccountID}] =
			append(a.regionAccountGroups[AccountGroupKey{gk, rec.UsageAccountID}], rec)
		if !seen[rec.UsageStartDate] {
			seen[rec.UsageStartDate] = true
			a.timerange = append(a.timerange, rec.UsageStartDate)
		}
	}
	sort.Slice(a.timerange, func(i, j int) bool { return a.timerange[i].Before(a.timerange[j]) })

	for i := range reservations {
		ri := &reservations[i]
		gk := GroupKey{ri.Region, ri.Family, ri.Tenancy, ri.OperatingSystem}
		sk := scopedGroupKey{gk, ri.Scope}
		a.riGroups[sk] = append(a.riGroups[sk], ri)
		a.riRegionKeys[gk] = true
	}

	return a
}

// groupKeys returns the sorted union of groups present in usage or
// reservations. Groups with only one side still must be visited: usage-only
// groups drive purchase recommendations, reservation-only groups drive
// unused-RI accounting.
func (a *aggregates) groupKeys() []GroupKey {
	set := make(map[GroupKey]bool, len(a.regionGroups)+len(a.riRegionKeys))
	for k := range a.regionGroups {
		set[k] = true
	}
	for k := range a.riRegionKeys {
		set[k] = true
	}
	keys := make([]GroupKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// accountIDs returns the sorted distinct accounts among records.
func accountIDs(records []*UsageRecord) []string {
	set := make(map[string]bool)
	for _, rec := range records {
		set[rec.UsageAccountID] = true
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// usageByTimestamp sums a value across records sharing a timestamp.
func usageByTimestamp(records []*UsageRecord, value func(*UsageRecord) float64) timeSeries {
	series := make(timeSeries)
	for _, rec := range records {
		series[rec.UsageStartDate] += value(rec)
	}
	return series
}

// instanceUnits and instanceCount are the two series extractors used by the
// allocators: zone usage is booked by instance count, region usage by units.
func instanceUnits(rec *UsageRecord) float64 { return rec.InstanceUnits }
func instanceCount(rec *UsageRecord) float64 { return rec.Instances }
