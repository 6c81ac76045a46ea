// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package engine implements the reserved-capacity allocation and purchase
// recommendation engine. It assigns reserved instance subscriptions to observed
// usage at increasing scopes (in-account zone, cross-account zone, in-account
// region, cross-account region), derives hourly coverage and float statistics
// from that assignment, estimates the usage trend per group, and sizes new
// purchase recommendations at a configurable utilization percentile, fairly
// distributed across accounts.
package engine

import (
	"time"
)

// Scope values carried by reservation rows.
const (
	ScopeAvailabilityZone = "Availability Zone"
	ScopeRegion           = "Region"
)

// AggregateAccountID is the synthetic account that books cross-account
// zone-scoped claims in the regional assignment ledger. Twelve zeros cannot
// collide with a real AWS account ID.
const AggregateAccountID = "000000000000"

// HoursPerWeek is the number of hour-of-week buckets (7 days * 24 hours).
const HoursPerWeek = 168

// HoursPerMonth is the billing convention for hours in one month, matching
// how reserved instance terms are quoted (730 * months).
const HoursPerMonth = 730

// UsageRecord is one hour of observed usage for an account, availability zone,
// instance type, tenancy and operating system, with dimensions derived during
// normalization.
type UsageRecord struct {
	UsageStartDate   time.Time
	UsageAccountID   string
	Region           string // derived: availability zone minus its trailing letter
	AvailabilityZone string
	Family           string // derived: instance type prefix before the size
	InstanceType     string
	Tenancy          string
	OperatingSystem  string
	HourOfWeek       int // derived: Monday-based day-of-week * 24 + hour

	// Instances is the observed running-instance count for the hour.
	Instances float64

	// Reserved is the count already billed as discounted (RI-covered) usage.
	Reserved float64

	// InstanceUnits and ReservedUnits are the counts scaled by the instance
	// type's normalization factor.
	InstanceUnits float64
	ReservedUnits float64
}

// Reservation is one active reserved-capacity subscription.
type Reservation struct {
	AccountID        string
	AccountName      string
	ReservationID    string
	SubscriptionID   string
	StartDate        string
	EndDate          string
	State            string
	Quantity         float64
	AvailabilityZone string
	Region           string
	Family           string // derived
	InstanceType     string
	Units            float64 // derived: quantity * normalization factor
	PaymentOption    string
	Tenancy          string
	OperatingSystem  string
	AmortizedHours   float64

	// AmortizedUpfrontPrice and AmortizedRecurringFee are the monthly
	// amortized costs reported by the billing system, used for the
	// cost-benefit columns of the usage report.
	AmortizedUpfrontPrice float64
	AmortizedRecurringFee float64

	OfferingClass string
	Scope         string // ScopeAvailabilityZone or ScopeRegion
}

// GroupKey identifies one (region, family, tenancy, OS) allocation group.
// All engine stages iterate groups in the sorted order of this key.
type GroupKey struct {
	Region          string
	Family          string
	Tenancy         string
	OperatingSystem string
}

// Less orders group keys lexicographically by dimension.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Region != o.Region {
		return k.Region < o.Region
	}
	if k.Family != o.Family {
		return k.Family < o.Family
	}
	if k.Tenancy != o.Tenancy {
		return k.Tenancy < o.Tenancy
	}
	return k.OperatingSystem < o.OperatingSystem
}

// AccountGroupKey extends GroupKey with the usage account.
type AccountGroupKey struct {
	GroupKey
	AccountID string
}

// ZoneKey identifies one (availability zone, instance type, tenancy, OS)
// zone-level group. It shares the tenancy/OS suffix with GroupKey so the
// region-level key is derivable by truncating zone to region and type to
// family.
type ZoneKey struct {
	AvailabilityZone string
	InstanceType     string
	Tenancy          string
	OperatingSystem  string
}

// Less orders zone keys lexicographically by dimension.
func (k ZoneKey) Less(o ZoneKey) bool {
	if k.AvailabilityZone != o.AvailabilityZone {
		return k.AvailabilityZone < o.AvailabilityZone
	}
	if k.InstanceType != o.InstanceType {
		return k.InstanceType < o.InstanceType
	}
	if k.Tenancy != o.Tenancy {
		return k.Tenancy < o.Tenancy
	}
	return k.OperatingSystem < o.OperatingSystem
}

// ZoneAccountKey extends ZoneKey with the usage account.
type ZoneAccountKey struct {
	ZoneKey
	AccountID string
}

// UnusedZoneRI reports a zone+type whose zone-scoped reservations exceed
// observed usage for at least one hour of the week.
type UnusedZoneRI struct {
	AvailabilityZone string
	InstanceType     string
	Tenancy          string
	OperatingSystem  string
	MinUnusedQty     float64
	AvgUnusedQty     float64
	MaxUnusedQty     float64
}

// HourlyCoverage is one hour-of-week row of the coverage/float report for a
// (region, family, tenancy, OS) group.
type HourlyCoverage struct {
	Region                string
	Family                string
	Tenancy               string
	OperatingSystem       string
	HourOfWeek            int
	TotalRIUnits          float64
	TotalInstanceUnits    float64
	FloatingRIUnits       float64
	FloatingInstanceUnits float64
	UnusedRIUnits         float64
	CoverageChance        float64
}

// CoverageSummary is the per-group mean of the hourly coverage report with
// derived monthly cost metrics attached.
type CoverageSummary struct {
	Region                string
	Family                string
	Tenancy               string
	OperatingSystem       string
	TotalRIUnits          float64
	TotalInstanceUnits    float64
	FloatingRIUnits       float64
	FloatingInstanceUnits float64
	UnusedRIUnits         float64
	CoverageChance        float64

	// EffectiveRate blends covered and uncovered cost weighted by coverage
	// chance, scaled to one xlarge-equivalent (8 units) per hour.
	EffectiveRate    float64
	MonthlyRICost    float64
	MonthlyODCost    float64
	MonthlyRISavings float64

	// HasCost reports whether the cost columns could be computed (a
	// reference size with pricing data existed for the family).
	HasCost bool
}

// Purchase is one recommended reserved-capacity purchase for one account.
type Purchase struct {
	AccountID       string // zero-padded to 12 digits
	AccountName     string // filled by the report decorator when names resolve
	Scope           string // always ScopeRegion: zone purchases are never recommended
	Region          string
	InstanceType    string
	OperatingSystem string // widened for the purchasing console, e.g. "Linux/UNIX (Amazon VPC)"
	Tenancy         string
	OfferingClass   string
	PaymentOption   string
	TermMonths      int
	Quantity        int
	Family          string
	Units           float64
	UpfrontCost     float64
	TotalCost       float64
	Savings         float64
	OnDemandValue   float64
	Algorithm       string

	// rawOS keeps the unwidened operating system so purchases recommended
	// earlier in the run can be netted out of later demand for the same
	// (region, family, OS, tenancy) key.
	rawOS string
}

// Reports is the full output of one engine run.
type Reports struct {
	// Instances and Reservations echo the normalized input tables.
	Instances    []UsageRecord
	Reservations []Reservation

	Purchases     []Purchase
	Usage         []CoverageSummary
	HourlyUsage   []HourlyCoverage
	UnusedZoneRIs []UnusedZoneRI
}
