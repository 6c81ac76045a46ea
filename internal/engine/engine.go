// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"github.com/go-logr/logr"

	"github.com/yahoo/ariel/pkg/pricing"
)

// run carries the state of one engine invocation: immutable inputs, the
// grouped views, and the report tables being accumulated. Groups are
// processed strictly in sorted key order because the recommender nets out
// purchases recommended earlier in the same run.
type run struct {
	log     logr.Logger
	opts    Options
	pricing *pricing.Table
	agg     *aggregates
	reports *Reports
}

// Generate runs the full allocation-and-recommendation engine over the raw
// usage and reservation tables and returns the report set. The inputs are
// normalized and filtered first; InsufficientDataError aborts runs whose
// usage window is too short for a stable percentile estimate. Missing pricing
// for a group skips that group with a logged error, never the run.
func Generate(log logr.Logger, opts Options, instances []UsageRecord,
	reservations []Reservation, table *pricing.Table) (*Reports, error) {

	instances, reservations, err := Normalize(log, opts, instances, reservations, table)
	if err != nil {
		return nil, err
	}

	r := &run{
		log:     log,
		opts:    opts,
		pricing: table,
		agg:     buildAggregates(instances, reservations),
		reports: &Reports{
			Instances:    instances,
			Reservations: reservations,
		},
	}

	for _, group := range r.agg.groupKeys() {
		log.V(1).Info("evaluating group",
			"region", group.Region, "family", group.Family,
			"tenancy", group.Tenancy, "operating_system", group.OperatingSystem)

		if !table.HasRegion(group.Region) {
			log.Info("skipping group: no pricing information for region",
				"region", group.Region, "family", group.Family)
			continue
		}

		led := newLedger()
		r.allocateZoneScoped(group, led)
		alloc := r.allocateRegionScoped(group, led)

		if r.groupUsageTotal(group) > 0 {
			r.recommend(group, alloc, led)
		}
	}

	r.assemble()
	return r.reports, nil
}
