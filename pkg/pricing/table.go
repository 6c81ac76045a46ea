// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package pricing models the EC2 pricing table consumed by the report engine:
// on-demand and reserved offering rates keyed by region, instance type, tenancy
// and operating system, plus the global normalization-unit table that lets
// heterogeneous instance sizes be compared in a single currency of "units".
package pricing

import (
	"fmt"
	"sort"
	"strings"
)

// ReferenceRegion is the region whose price list decides which size of a
// family is usable as the cost-normalization reference. us-east-1 carries
// the widest catalog, so a size present there is present almost everywhere.
const ReferenceRegion = "us-east-1"

// ReservedRate is the cost of one reserved instance for a specific
// (term, offering class, payment option) combination.
type ReservedRate struct {
	// Upfront is the one-time payment due at purchase.
	Upfront float64

	// Hourly is the recurring per-hour fee over the term.
	Hourly float64
}

// InstancePricing holds all rates for one (region, type, tenancy, OS) entry.
type InstancePricing struct {
	// SKU is the pricing catalog SKU this entry was built from.
	SKU string

	// OnDemandRate is the on-demand $/hour rate.
	OnDemandRate float64

	// HasOnDemand reports whether an on-demand rate was seen for this entry.
	// Entries without one are trimmed before the table is used.
	HasOnDemand bool

	// Reserved maps a rate key (see RateKey) to its reserved pricing.
	Reserved map[string]ReservedRate
}

// Table is the full pricing table: region -> instance type -> tenancy ->
// operating system -> rates, plus the instance type -> normalization factor map.
type Table struct {
	Regions map[string]RegionPricing
	Units   map[string]float64
}

// RegionPricing indexes one region's entries by instance type, tenancy and OS.
type RegionPricing map[string]map[string]map[string]*InstancePricing

// NewTable returns an empty pricing table ready to be populated.
func NewTable() *Table {
	return &Table{
		Regions: make(map[string]RegionPricing),
		Units:   make(map[string]float64),
	}
}

// RateKey builds the reserved-rate lookup key for a term length, offering
// class and payment option, e.g. "1yr-standard-No Upfront".
func RateKey(term, offeringClass, paymentOption string) string {
	return fmt.Sprintf("%s-%s-%s", term, offeringClass, paymentOption)
}

// Lookup returns the pricing entry for the given dimensions.
func (t *Table) Lookup(region, instanceType, tenancy, operatingSystem string) (*InstancePricing, bool) {
	types, ok := t.Regions[region]
	if !ok {
		return nil, false
	}
	tenancies, ok := types[instanceType]
	if !ok {
		return nil, false
	}
	systems, ok := tenancies[tenancy]
	if !ok {
		return nil, false
	}
	entry, ok := systems[operatingSystem]
	return entry, ok
}

// HasRegion reports whether any pricing data was loaded for the region.
func (t *Table) HasRegion(region string) bool {
	_, ok := t.Regions[region]
	return ok
}

// UnitsFor returns the normalization factor for an instance type. A bare size
// name with no family prefix ("xlarge") resolves against any type carrying
// that size suffix, since all families scale sizes identically.
func (t *Table) UnitsFor(instanceType string) (float64, bool) {
	if units, ok := t.Units[instanceType]; ok {
		return units, true
	}
	if strings.Contains(instanceType, ".") {
		return 0, false
	}
	suffix := "." + instanceType
	keys := make([]string, 0, len(t.Units))
	for key := range t.Units {
		if strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0, false
	}
	sort.Strings(keys)
	return t.Units[keys[0]], true
}

// FamilyTypes returns the instance types of the given family that have
// pricing data in the region, sorted for deterministic iteration.
func (t *Table) FamilyTypes(region, family string) []string {
	var types []string
	prefix := family + "."
	for instanceType := range t.Regions[region] {
		if strings.HasPrefix(instanceType, prefix) {
			types = append(types, instanceType)
		}
	}
	sort.Strings(types)
	return types
}

// Set stores an entry, creating intermediate maps as needed.
func (t *Table) Set(region, instanceType, tenancy, operatingSystem string, entry *InstancePricing) {
	types, ok := t.Regions[region]
	if !ok {
		types = make(RegionPricing)
		t.Regions[region] = types
	}
	tenancies, ok := types[instanceType]
	if !ok {
		tenancies = make(map[string]map[string]*InstancePricing)
		types[instanceType] = tenancies
	}
	systems, ok := tenancies[tenancy]
	if !ok {
		systems = make(map[string]*InstancePricing)
		tenancies[tenancy] = systems
	}
	systems[operatingSystem] = entry
}

// Trim removes entries that are useless for analysis: those missing an
// on-demand rate or carrying no reserved rates at all. Empty intermediate
// maps are dropped so HasRegion stays meaningful.
func (t *Table) Trim() int {
	kept := 0
	for region, types := range t.Regions {
		for instanceType, tenancies := range types {
			for tenancy, systems := range tenancies {
				for operatingSystem, entry := range systems {
					if !entry.HasOnDemand || len(entry.Reserved) == 0 {
						delete(systems, operatingSystem)
						continue
					}
					kept++
				}
				if len(systems) == 0 {
					delete(tenancies, tenancy)
				}
			}
			if len(tenancies) == 0 {
				delete(types, instanceType)
			}
		}
		if len(types) == 0 {
			delete(t.Regions, region)
		}
	}
	return kept
}
