// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"errors"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// A mixed fleet: account A runs four m5.xlarge with one zone-scoped
// reservation, account B runs two m5.2xlarge with one region-scoped
// reservation, and a standard-offering utilization target is configured.
var _ = Describe("Generate", func() {
	var (
		opts    Options
		reports *Reports
	)

	BeforeEach(func() {
		opts = DefaultOptions()
		opts.RITermMonths = 12
		opts.UtilTargets = map[string]string{"STANDARD_DEFAULT_UTIL_TARGET": "50"}

		instances := append(
			usageSeries(accountA, "us-east-1a", "m5.xlarge", 15, constant(4)),
			usageSeries(accountB, "us-east-1a", "m5.2xlarge", 15, constant(2))...)
		reservations := []Reservation{
			zoneRI(accountA, "us-east-1a", "m5.xlarge", 1),
			regionRI(accountB, "us-east-1", "m5.2xlarge", 1),
		}

		var err error
		reports, err = Generate(logr.Discard(), opts, instances, reservations, testPricing())
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports hourly coverage for every hour of the week", func() {
		Expect(reports.HourlyUsage).To(HaveLen(HoursPerWeek))

		row := reports.HourlyUsage[0]
		Expect(row.Region).To(Equal("us-east-1"))
		Expect(row.Family).To(Equal("m5"))
		Expect(row.TotalRIUnits).To(Equal(16.0))
		Expect(row.TotalInstanceUnits).To(Equal(64.0))
		Expect(row.FloatingRIUnits).To(Equal(0.0))
		Expect(row.FloatingInstanceUnits).To(Equal(48.0))
		Expect(row.CoverageChance).To(Equal(0.0))
	})

	It("leaves no unused zone reservations when usage absorbs the pool", func() {
		Expect(reports.UnusedZoneRIs).To(BeEmpty())
	})

	It("recommends purchases for the uncovered demand", func() {
		By("quoting in the family's largest priced type")
		Expect(reports.Purchases).To(HaveLen(1))
		p := reports.Purchases[0]
		Expect(p.InstanceType).To(Equal("m5.2xlarge"))
		Expect(p.OfferingClass).To(Equal("standard"))
		Expect(p.Algorithm).To(Equal(AlgorithmDefault))

		By("trimming straggler units from the lowest-demand account")
		Expect(p.AccountID).To(Equal(accountA))
		Expect(p.Quantity).To(Equal(2))
		Expect(p.Units).To(Equal(32.0))
	})

	It("summarizes coverage and cost per group", func() {
		Expect(reports.Usage).To(HaveLen(1))
		summary := reports.Usage[0]
		Expect(summary.TotalRIUnits).To(Equal(16.0))
		Expect(summary.TotalInstanceUnits).To(Equal(64.0))
		Expect(summary.CoverageChance).To(Equal(0.0))

		By("normalizing monthly cost to the reference size")
		Expect(summary.HasCost).To(BeTrue())
		// 720 flat-month hours * 2xlarge on-demand rate * 1 reference unit.
		Expect(summary.MonthlyODCost).To(BeNumerically("~", 276.48, 1e-6))
		Expect(summary.MonthlyRICost).To(Equal(0.0))
		Expect(summary.EffectiveRate).To(BeNumerically("~", 0.192, 1e-6))
	})

	It("carries the normalized inputs in the report set", func() {
		Expect(reports.Instances).To(HaveLen(2 * 15 * 24))
		Expect(reports.Reservations).To(HaveLen(2))
		Expect(reports.Reservations[0].Units).To(Equal(8.0))
		Expect(reports.Reservations[1].Units).To(Equal(16.0))
	})

	It("rejects usage windows too short for a stable percentile", func() {
		short := usageSeries(accountA, "us-east-1a", "m5.xlarge", 5, constant(4))
		_, err := Generate(logr.Discard(), opts, short, nil, testPricing())

		var insufficient *InsufficientDataError
		Expect(errors.As(err, &insufficient)).To(BeTrue())
		Expect(insufficient.Span).To(BeNumerically("<", MinimumUsageSpan))
	})
})
