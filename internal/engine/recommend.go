// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/yahoo/ariel/pkg/pricing"
)

// BreakEvenTarget is the sentinel utilization value meaning "compute the
// utilization at which the reservation's total cost equals on-demand cost".
const BreakEvenTarget = "BREAK_EVEN"

// accountDemand is one account's uncovered demand in normalized units.
type accountDemand struct {
	AccountID string
	Units     float64
}

// recommend sizes and distributes new purchase recommendations for one
// group. For every (offering class, pooling mode) combination with a
// configured utilization target it evaluates uncovered demand at the target
// percentile, nets out existing region reservations, zone assignments and
// purchases already recommended this run, and emits per-account rows.
func (r *run) recommend(group GroupKey, alloc regionAllocation, led *ledger) {
	records := r.agg.regionGroups[group]

	// Trend classification decides which utilization targets apply.
	regionHourly := usageByTimestamp(records, instanceUnits)
	slope, algorithm := estimateTrend(regionHourly, r.opts)

	// Zone-assigned usage is already covered; net it out of demand entirely.
	zoneAssigned := led.regionClaimsTotal()
	netUsage := make(timeSeries, len(regionHourly))
	for t, v := range regionHourly {
		netUsage[t] = v - zoneAssigned[HourOfWeek(t)]
	}

	purchaseType, unitSize, err := r.selectPurchaseSize(group)
	if err != nil {
		r.log.Error(err, "skipping purchase evaluation",
			"region", group.Region, "family", group.Family)
		return
	}

	entry, ok := r.pricing.Lookup(group.Region, purchaseType, group.Tenancy, group.OperatingSystem)
	if !ok {
		missing := &MissingPricingDataError{
			Region:          group.Region,
			InstanceType:    purchaseType,
			Tenancy:         group.Tenancy,
			OperatingSystem: group.OperatingSystem,
		}
		r.log.Error(missing, "skipping purchase evaluation")
		return
	}

	termHours := float64(r.opts.RITermMonths) * HoursPerMonth

	for _, offering := range offeringClasses {
		rate, option, err := r.resolveReservedRate(entry, offering)
		if err != nil {
			r.log.Error(err, "skipping offering class",
				"region", group.Region, "instance_type", purchaseType, "offering_class", offering)
			continue
		}

		for _, slush := range []bool{false, true} {
			targetValue, configured := r.opts.utilTarget(offering, algorithm, slush)
			if !configured {
				continue
			}
			target, err := resolveUtilization(targetValue, rate, entry.OnDemandRate, termHours)
			if err != nil {
				// Unparseable target degrades this combination, never the run.
				r.log.Error(err, "disabling utilization target",
					"key", utilTargetKey(offering, algorithm, slush))
				continue
			}
			r.log.V(1).Info("evaluating purchase",
				"region", group.Region, "family", group.Family,
				"offering_class", offering, "slush", slush,
				"slope", slope, "algorithm", algorithm, "target_utilization", target)

			// Demand: usage net of zone claims, minus region reservation
			// units, zero-filled over the full observed timerange, minus
			// units already recommended for this key earlier in the run.
			demand := make(timeSeries, len(netUsage))
			for t, v := range netUsage {
				demand[t] = v - alloc.totalRIUnits
			}
			values := demand.reindexOver(r.agg.timerange)
			prior := r.priorRecommendedUnits(group)
			for i := range values {
				values[i] -= prior
			}

			demandUnits := percentileFromTop(values, target)
			demandUnits -= math.Mod(demandUnits, unitSize)
			if demandUnits < unitSize {
				r.log.V(1).Info("no additional reservations required",
					"region", group.Region, "family", group.Family,
					"offering_class", offering, "slush", slush)
				continue
			}

			var demands []accountDemand
			if slush {
				if r.opts.SlushAccount == "" {
					r.log.Error(errors.New("no slush account configured"),
						"disabling slush pooling", "region", group.Region, "family", group.Family)
					continue
				}
				demands = []accountDemand{{AccountID: r.opts.SlushAccount, Units: demandUnits}}
			} else {
				demands = r.distributeDemand(group, alloc, target, unitSize, demandUnits)
			}

			r.emitPurchases(group, demands, purchaseType, unitSize, offering, option,
				rate, entry.OnDemandRate, termHours, algorithm)
		}
	}
}

// selectPurchaseSize picks the instance type recommendations are quoted in,
// among the family's types with pricing data in the region. Policy "largest"
// and "smallest" select by normalization units; a named type selects the
// largest type not exceeding it, falling back to the smallest available.
func (r *run) selectPurchaseSize(group GroupKey) (string, float64, error) {
	types := r.pricing.FamilyTypes(group.Region, group.Family)
	if len(types) == 0 {
		return "", 0, &MissingPricingDataError{
			Region:          group.Region,
			InstanceType:    group.Family + ".*",
			Tenancy:         group.Tenancy,
			OperatingSystem: group.OperatingSystem,
		}
	}

	unitsOf := make(map[string]float64, len(types))
	for _, t := range types {
		if u, ok := r.pricing.UnitsFor(t); ok {
			unitsOf[t] = u
		}
	}
	if len(unitsOf) == 0 {
		return "", 0, fmt.Errorf("no normalization factors for family %s in %s",
			group.Family, group.Region)
	}

	switch r.opts.RISize {
	case SizeLargest, "":
		return extremeType(unitsOf, false)
	case SizeSmallest:
		return extremeType(unitsOf, true)
	default:
		desired, ok := r.pricing.UnitsFor(r.opts.RISize)
		if !ok {
			return "", 0, fmt.Errorf("unknown purchase size %q", r.opts.RISize)
		}
		filtered := make(map[string]float64)
		for t, u := range unitsOf {
			if u <= desired {
				filtered[t] = u
			}
		}
		if len(filtered) > 0 {
			return extremeType(filtered, false)
		}
		return extremeType(unitsOf, true)
	}
}

// extremeType returns the type with the max (or min) units. Ties break on
// type name so runs are reproducible.
func extremeType(unitsOf map[string]float64, smallest bool) (string, float64, error) {
	names := make([]string, 0, len(unitsOf))
	for t := range unitsOf {
		names = append(names, t)
	}
	sort.Strings(names)
	best := names[0]
	for _, t := range names[1:] {
		if (smallest && unitsOf[t] < unitsOf[best]) || (!smallest && unitsOf[t] > unitsOf[best]) {
			best = t
		}
	}
	return best, unitsOf[best], nil
}

// resolveReservedRate finds the reserved rate for an offering class, trying
// the configured payment option first and then the standard fallback order.
func (r *run) resolveReservedRate(entry *pricing.InstancePricing, offering string) (pricing.ReservedRate, string, error) {
	term := r.opts.termYears()
	for _, option := range r.opts.paymentOptions() {
		if rate, ok := entry.Reserved[pricing.RateKey(term, offering, option)]; ok {
			return rate, option, nil
		}
	}
	return pricing.ReservedRate{}, "", &MissingPricingDataError{
		RateKey: pricing.RateKey(term, offering, "*"),
	}
}

// resolveUtilization parses a configured utilization target, computing the
// break-even utilization when requested: the percentage of the term at which
// reserved total cost equals the on-demand cost of the same hours.
func resolveUtilization(value string, rate pricing.ReservedRate, onDemandRate, termHours float64) (float64, error) {
	if value == BreakEvenTarget {
		return (rate.Upfront + rate.Hourly*termHours) / (onDemandRate * termHours) * 100, nil
	}
	target, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("utilization target %q is not a percentage: %w", value, err)
	}
	return target, nil
}

// priorRecommendedUnits sums units already recommended this run for the same
// (region, family, OS, tenancy) key, so stacked offering/pooling passes do
// not recommend the same capacity twice.
func (r *run) priorRecommendedUnits(group GroupKey) float64 {
	var units float64
	for _, p := range r.reports.Purchases {
		if p.Region == group.Region && p.Family == group.Family &&
			p.rawOS == group.OperatingSystem && p.Tenancy == group.Tenancy {
			units += p.Units
		}
	}
	return units
}

// distributeDemand computes per-account demand at the target percentile and
// fairly reduces it until the total matches the group demand. Accounts with
// the most uncovered usage keep the most purchase quantity; reductions come
// off every account evenly, with single-unit stragglers taken from the
// lowest-demand accounts first.
func (r *run) distributeDemand(group GroupKey, alloc regionAllocation,
	target, unitSize, demandUnits float64) []accountDemand {

	existingRIs := make(map[string]float64)
	for _, ri := range alloc.reservations {
		existingRIs[ri.AccountID] += ri.Units
	}

	var demands []accountDemand
	for _, accountID := range accountIDs(r.agg.regionGroups[group]) {
		records := r.agg.regionAccountGroups[AccountGroupKey{group, accountID}]
		values := usageByTimestamp(records, instanceUnits).reindexOver(r.agg.timerange)
		units := percentileFromTop(values, target)
		units -= existingRIs[accountID]
		units -= math.Mod(units, unitSize)
		if units > 0 {
			demands = append(demands, accountDemand{AccountID: accountID, Units: units})
		}
	}

	// Even reduction: while the pool exceeds demand by more than one unit
	// per account, shave the same whole number of units off everyone. Each
	// pass strictly reduces the total, so the loop terminates.
	for demandSum(demands) > demandUnits+float64(len(demands))*unitSize {
		excessPerAccount := math.Floor((demandSum(demands) - demandUnits) / unitSize / float64(len(demands)))
		for i := range demands {
			demands[i].Units -= excessPerAccount * unitSize
		}
		demands = positiveDemands(demands)
	}

	// Straggler distribution: take exactly one unit from the lowest-demand
	// accounts, lowest first with account ID as the tie-break, until the
	// pool matches demand.
	if demandSum(demands) > demandUnits {
		excess := int((demandSum(demands) - demandUnits) / unitSize)
		sort.Slice(demands, func(i, j int) bool {
			if demands[i].Units != demands[j].Units {
				return demands[i].Units < demands[j].Units
			}
			return demands[i].AccountID < demands[j].AccountID
		})
		for i := 0; i < excess && i < len(demands); i++ {
			demands[i].Units -= unitSize
		}
		demands = positiveDemands(demands)
	}

	return demands
}

func demandSum(demands []accountDemand) float64 {
	var sum float64
	for _, d := range demands {
		sum += d.Units
	}
	return sum
}

func positiveDemands(demands []accountDemand) []accountDemand {
	out := demands[:0]
	for _, d := range demands {
		if d.Units > 0 {
			out = append(out, d)
		}
	}
	return out
}

// emitPurchases renders one recommendation row per account with nonzero
// quantity and appends them to the cumulative purchase table.
func (r *run) emitPurchases(group GroupKey, demands []accountDemand,
	purchaseType string, unitSize float64, offering, option string,
	rate pricing.ReservedRate, onDemandRate, termHours float64, algorithm string) {

	sort.Slice(demands, func(i, j int) bool { return demands[i].AccountID < demands[j].AccountID })
	for _, d := range demands {
		quantity := int(d.Units / unitSize)
		if quantity <= 0 {
			continue
		}
		qty := float64(quantity)
		r.reports.Purchases = append(r.reports.Purchases, Purchase{
			AccountID:       fmt.Sprintf("%012s", d.AccountID),
			Scope:           ScopeRegion,
			Region:          group.Region,
			InstanceType:    purchaseType,
			OperatingSystem: widenOperatingSystem(group.OperatingSystem),
			Tenancy:         group.Tenancy,
			OfferingClass:   offering,
			PaymentOption:   option,
			TermMonths:      r.opts.RITermMonths,
			Quantity:        quantity,
			Family:          group.Family,
			Units:           d.Units,
			UpfrontCost:     qty * rate.Upfront,
			TotalCost:       qty * (rate.Upfront + rate.Hourly*termHours),
			Savings:         qty * ((onDemandRate-rate.Hourly)*termHours - rate.Upfront),
			OnDemandValue:   qty * onDemandRate * termHours,
			Algorithm:       algorithm,
			rawOS:           group.OperatingSystem,
		})
	}
	if len(demands) > 0 {
		r.log.V(1).Info("recommended purchases",
			"region", group.Region, "family", group.Family,
			"instance_type", purchaseType, "accounts", len(demands),
			"units", demandSum(demands))
	}
}

// widenOperatingSystem maps the warehouse OS value onto the purchasing
// console's spelling.
func widenOperatingSystem(operatingSystem string) string {
	if operatingSystem == "Linux" {
		return "Linux/UNIX (Amazon VPC)"
	}
	return operatingSystem
}

// groupUsageTotal reports the group's total observed instance units; the
// recommender only runs when it is positive.
func (r *run) groupUsageTotal(group GroupKey) float64 {
	var total float64
	for _, rec := range r.agg.regionGroups[group] {
		total += rec.InstanceUnits
	}
	return total
}
