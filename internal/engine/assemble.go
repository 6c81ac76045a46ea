// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"math"

	"github.com/yahoo/ariel/pkg/pricing"
)

// reportHoursPerMonth is the flat-month convention used for the cost-benefit
// columns (30 days * 24 hours). Reserved terms are quoted at 730 instead;
// both conventions come from the billing reports this feeds.
const reportHoursPerMonth = 720

// xlargeUnits scales the blended effective rate to one xlarge-equivalent.
const xlargeUnits = 8

// assemble folds the hourly coverage rows into the per-group usage summary
// and attaches the monthly cost metrics derived from amortized reservation
// fees and reference-size on-demand rates.
func (r *run) assemble() {
	if len(r.reports.HourlyUsage) == 0 {
		return
	}

	referenceSizes := buildReferenceSizes(r.pricing, r.reports.HourlyUsage)

	// Amortized monthly cost of active reservations per group.
	riCost := make(map[GroupKey]float64)
	for _, ri := range r.reports.Reservations {
		key := GroupKey{ri.Region, ri.Family, ri.Tenancy, ri.OperatingSystem}
		riCost[key] += ri.AmortizedUpfrontPrice + ri.AmortizedRecurringFee
	}

	// Hourly rows arrive grouped: every group's hours are contiguous and
	// groups appear in sorted order.
	type groupAccumulator struct {
		count                                                        int
		totalRI, totalInstances, floatRI, floatInstances, unused, cv float64
	}
	var order []GroupKey
	acc := make(map[GroupKey]*groupAccumulator)
	for _, row := range r.reports.HourlyUsage {
		key := GroupKey{row.Region, row.Family, row.Tenancy, row.OperatingSystem}
		a, ok := acc[key]
		if !ok {
			a = &groupAccumulator{}
			acc[key] = a
			order = append(order, key)
		}
		a.count++
		a.totalRI += row.TotalRIUnits
		a.totalInstances += row.TotalInstanceUnits
		a.floatRI += row.FloatingRIUnits
		a.floatInstances += row.FloatingInstanceUnits
		a.unused += row.UnusedRIUnits
		a.cv += row.CoverageChance
	}

	for _, key := range order {
		a := acc[key]
		n := float64(a.count)
		summary := CoverageSummary{
			Region:                key.Region,
			Family:                key.Family,
			Tenancy:               key.Tenancy,
			OperatingSystem:       key.OperatingSystem,
			TotalRIUnits:          a.totalRI / n,
			TotalInstanceUnits:    a.totalInstances / n,
			FloatingRIUnits:       a.floatRI / n,
			FloatingInstanceUnits: a.floatInstances / n,
			UnusedRIUnits:         a.unused / n,
			CoverageChance:        a.cv / n,
		}

		if size, ok := referenceSizes[key.Family]; ok {
			referenceType := key.Family + "." + size
			entry, priced := r.pricing.Lookup(key.Region, referenceType, key.Tenancy, key.OperatingSystem)
			units, haveUnits := r.pricing.UnitsFor(referenceType)
			if priced && haveUnits && units > 0 {
				monthlyRICost := riCost[key]
				monthlyODCost := reportHoursPerMonth * entry.OnDemandRate *
					math.Min(summary.TotalRIUnits, summary.TotalInstanceUnits) / units
				summary.MonthlyRICost = monthlyRICost
				summary.MonthlyODCost = monthlyODCost
				summary.MonthlyRISavings = monthlyODCost - monthlyRICost
				if summary.TotalRIUnits > 0 {
					// Blend uncovered cost (weighted by the chance a new
					// instance misses reserved capacity) with reserved cost,
					// per hour, per xlarge-equivalent.
					summary.EffectiveRate = ((monthlyODCost-monthlyRICost)*(100-summary.CoverageChance)/100 +
						monthlyRICost) / reportHoursPerMonth / summary.TotalRIUnits * xlargeUnits
				}
				summary.HasCost = true
			}
		}
		r.reports.Usage = append(r.reports.Usage, summary)
	}
}

// buildReferenceSizes picks, per family appearing in the hourly report, the
// largest size carrying pricing data in the reference region. Cost columns
// for every region normalize to this one representative size.
func buildReferenceSizes(table *pricing.Table, rows []HourlyCoverage) map[string]string {
	sizes := make(map[string]string)
	seen := make(map[string]bool)
	for _, row := range rows {
		if seen[row.Family] {
			continue
		}
		seen[row.Family] = true

		var bestSize string
		var bestUnits float64
		for _, instanceType := range table.FamilyTypes(pricing.ReferenceRegion, row.Family) {
			units, ok := table.UnitsFor(instanceType)
			if !ok {
				continue
			}
			if bestSize == "" || units > bestUnits {
				bestSize = InstanceSize(instanceType)
				bestUnits = units
			}
		}
		if bestSize != "" {
			sizes[row.Family] = bestSize
		}
	}
	return sizes
}
