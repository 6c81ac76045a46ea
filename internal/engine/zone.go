// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"sort"
)

// zoneRIKey groups zone-scoped reservations for the cross-account pass,
// where holder identity no longer matters.
type zoneRIKey struct {
	AvailabilityZone string
	InstanceType     string
}

// allocateZoneScoped assigns the group's zone-scoped reservations to usage:
// in-account first, reservation by reservation in input order, then
// cross-account against the pooled remainder. Claims are recorded in the
// ledger at both zone level (so later reservations cannot double-claim) and
// region level (so the region allocator nets them out). Reservations left
// over after the cross-account pass surface as UnusedZoneRI rows.
func (r *run) allocateZoneScoped(group GroupKey, led *ledger) {
	zoneRIs := r.agg.riGroups[scopedGroupKey{group, ScopeAvailabilityZone}]
	if len(zoneRIs) == 0 {
		return
	}

	// In-account pass. Input order is the priority rule: an earlier
	// reservation wins contested usage because the ledger reduces what a
	// later one can see.
	for _, ri := range zoneRIs {
		key := ZoneAccountKey{
			ZoneKey{ri.AvailabilityZone, ri.InstanceType, group.Tenancy, group.OperatingSystem},
			ri.AccountID,
		}
		records := r.agg.zoneAccountGroups[key]
		if len(records) == 0 {
			continue
		}
		r.log.V(1).Info("evaluating in-account zone reservation",
			"account_id", ri.AccountID, "availability_zone", ri.AvailabilityZone,
			"instance_type", ri.InstanceType, "quantity", ri.Quantity)

		// One usage row per timestamp, so the hour-of-week mean is a straight
		// mean over rows.
		acc := newHourAccumulator()
		for _, rec := range records {
			acc.observe(rec.HourOfWeek, rec.Instances)
		}
		usage := acc.mean()

		ledgerKey := zoneLedgerKey{ri.AvailabilityZone, ri.InstanceType, ri.AccountID}
		usage.sub(led.zoneClaims(ledgerKey))
		used := usage.capAt(ri.Quantity)

		unitFactor, _ := r.pricing.UnitsFor(ri.InstanceType)
		led.claimZone(ledgerKey, used, unitFactor)
	}

	// Cross-account pass: pool all subscriptions per (zone, type) and claim
	// against the whole population's usage. Unused accounting treats
	// in-account and cross-account claims identically.
	pooled := make(map[zoneRIKey]float64)
	for _, ri := range zoneRIs {
		pooled[zoneRIKey{ri.AvailabilityZone, ri.InstanceType}] += ri.Quantity
	}
	pooledKeys := make([]zoneRIKey, 0, len(pooled))
	for k := range pooled {
		pooledKeys = append(pooledKeys, k)
	}
	sort.Slice(pooledKeys, func(i, j int) bool {
		if pooledKeys[i].AvailabilityZone != pooledKeys[j].AvailabilityZone {
			return pooledKeys[i].AvailabilityZone < pooledKeys[j].AvailabilityZone
		}
		return pooledKeys[i].InstanceType < pooledKeys[j].InstanceType
	})

	for _, zk := range pooledKeys {
		quantity := pooled[zk]
		r.log.V(1).Info("evaluating cross-account zone reservations",
			"availability_zone", zk.AvailabilityZone, "instance_type", zk.InstanceType,
			"quantity", quantity)

		unitFactor, _ := r.pricing.UnitsFor(zk.InstanceType)
		records := r.agg.zoneGroups[ZoneKey{zk.AvailabilityZone, zk.InstanceType,
			group.Tenancy, group.OperatingSystem}]
		if len(records) == 0 {
			// No usage anywhere at this zone+type: the whole subscription
			// pool is idle every hour of the week.
			r.reports.UnusedZoneRIs = append(r.reports.UnusedZoneRIs, UnusedZoneRI{
				AvailabilityZone: zk.AvailabilityZone,
				InstanceType:     zk.InstanceType,
				Tenancy:          group.Tenancy,
				OperatingSystem:  group.OperatingSystem,
				MinUnusedQty:     quantity,
				AvgUnusedQty:     quantity,
				MaxUnusedQty:     quantity,
			})
			continue
		}

		// Sum across accounts per timestamp before averaging by hour-of-week.
		usage := usageByTimestamp(records, instanceCount).hourMean()

		// No prior-claim subtraction here: the individual subscriptions were
		// already bundled, so nothing contests the pooled claim.
		used := usage.capAt(quantity)
		led.claimRegion(AggregateAccountID, used.scaled(unitFactor))

		unused := make(hourSeries, len(used))
		for h, v := range used {
			unused[h] = quantity - v
		}
		if unused.max() > 0 {
			row := UnusedZoneRI{
				AvailabilityZone: zk.AvailabilityZone,
				InstanceType:     zk.InstanceType,
				Tenancy:          group.Tenancy,
				OperatingSystem:  group.OperatingSystem,
				MinUnusedQty:     unused.min(),
				AvgUnusedQty:     unused.mean(),
				MaxUnusedQty:     unused.max(),
			}
			r.reports.UnusedZoneRIs = append(r.reports.UnusedZoneRIs, row)
			r.log.V(1).Info("recorded unused zone reservations",
				"availability_zone", zk.AvailabilityZone, "instance_type", zk.InstanceType,
				"max_unused", row.MaxUnusedQty)
		}
	}
}
