// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"math"
	"sort"
)

// regionAllocation is what the region-scope pass hands to the recommender.
type regionAllocation struct {
	// reservations are the group's region-scoped reservations.
	reservations []*Reservation

	// totalRIUnits is the sum of their normalized units.
	totalRIUnits float64
}

// allocateRegionScoped assigns the group's region-scoped reservations to
// usage net of the zone assignment, then derives the hourly coverage and
// float report. In-account claims come first, per holding account; the
// cross-account remainder is what "floats" over the whole region.
func (r *run) allocateRegionScoped(group GroupKey, led *ledger) regionAllocation {
	regionRIs := r.agg.riGroups[scopedGroupKey{group, ScopeRegion}]

	// In-account pass, one claim per holding account.
	assigned := make(hourSeries)
	byAccount := make(map[string]float64)
	for _, ri := range regionRIs {
		byAccount[ri.AccountID] += ri.Units
	}
	accountKeys := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accountKeys = append(accountKeys, id)
	}
	sort.Strings(accountKeys)

	for _, accountID := range accountKeys {
		riUnits := byAccount[accountID]
		records := r.agg.regionAccountGroups[AccountGroupKey{group, accountID}]
		if len(records) == 0 {
			continue
		}
		r.log.V(1).Info("evaluating in-account region reservations",
			"account_id", accountID, "region", group.Region,
			"family", group.Family, "units", riUnits)

		usage := usageByTimestamp(records, instanceUnits).hourMean()
		usage.sub(led.regionClaims(accountID))
		// Usage may not occur in every hour-of-week bucket; missing buckets
		// claim zero rather than vanishing from the float arithmetic.
		used := usage.capAt(riUnits).reindexFull()
		assigned.add(used)
	}

	totalRIUnits := 0.0
	for _, ri := range regionRIs {
		totalRIUnits += ri.Units
	}

	// Cross-account float and coverage. Rows are emitted over the hours the
	// group actually saw usage. A group holding reservations with no usage at
	// all still reports every hour with the full quantity unused: a fully
	// idle reservation must not vanish from the coverage tables.
	totalUsage := usageByTimestamp(r.agg.regionGroups[group], instanceUnits).hourMean()
	if len(totalUsage) == 0 && totalRIUnits > 0 {
		totalUsage = totalUsage.reindexFull()
	}
	for _, hour := range totalUsage.hours() {
		inAccount := assigned[hour]
		floatingRI := totalRIUnits - inAccount
		floatingInstances := totalUsage[hour] - inAccount
		unused := math.Max(totalRIUnits-totalUsage[hour], 0)

		var coverage float64
		switch {
		case floatingInstances > 0:
			coverage = math.Min(floatingRI/floatingInstances*100, 100)
		case floatingRI > 0:
			// Nothing left uncovered and spare reserved capacity floating:
			// a new instance would certainly land on it.
			coverage = 100
		default:
			coverage = 0
		}

		r.reports.HourlyUsage = append(r.reports.HourlyUsage, HourlyCoverage{
			Region:                group.Region,
			Family:                group.Family,
			Tenancy:               group.Tenancy,
			OperatingSystem:       group.OperatingSystem,
			HourOfWeek:            hour,
			TotalRIUnits:          totalRIUnits,
			TotalInstanceUnits:    totalUsage[hour],
			FloatingRIUnits:       floatingRI,
			FloatingInstanceUnits: floatingInstances,
			UnusedRIUnits:         unused,
			CoverageChance:        coverage,
		})
	}

	return regionAllocation{reservations: regionRIs, totalRIUnits: totalRIUnits}
}
