// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/ariel/pkg/pricing"
)

func TestInstanceFamily(t *testing.T) {
	assert.Equal(t, "c4", InstanceFamily("c4.2xlarge"))
	assert.Equal(t, "i3", InstanceFamily("i3.metal"))
	assert.Equal(t, "t1", InstanceFamily("t1"))
}

func TestInstanceSize(t *testing.T) {
	assert.Equal(t, "2xlarge", InstanceSize("c4.2xlarge"))
	assert.Equal(t, "", InstanceSize("t1"))
}

func TestRegionOfZone(t *testing.T) {
	assert.Equal(t, "us-east-1", RegionOfZone("us-east-1a"))
	assert.Equal(t, "eu-west-2", RegionOfZone("eu-west-2c"))
	assert.Equal(t, "", RegionOfZone(""))
}

func unitsTable(units map[string]float64) *pricing.Table {
	table := pricing.NewTable()
	for instanceType, u := range units {
		table.Units[instanceType] = u
	}
	return table
}

func TestNormalizeInsufficientSpan(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	instances := []UsageRecord{
		{UsageStartDate: start, UsageAccountID: "111111111111", InstanceType: "m5.xlarge", Instances: 1},
		{UsageStartDate: start.AddDate(0, 0, 13), UsageAccountID: "111111111111", InstanceType: "m5.xlarge", Instances: 1},
	}

	_, _, err := Normalize(logr.Discard(), DefaultOptions(), instances, nil,
		unitsTable(map[string]float64{"m5.xlarge": 8}))

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 13*24*time.Hour, insufficient.Span)
}

// The span check runs before any account filter, so a filter that would
// empty the table still reports short input as short input.
func TestNormalizeSpanBeforeFilters(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.SkipAccounts = []string{"111111111111"}
	instances := []UsageRecord{
		{UsageStartDate: start, UsageAccountID: "111111111111", InstanceType: "m5.xlarge", Instances: 1},
	}

	_, _, err := Normalize(logr.Discard(), opts, instances, nil,
		unitsTable(map[string]float64{"m5.xlarge": 8}))

	var insufficient *InsufficientDataError
	assert.True(t, errors.As(err, &insufficient))
}

func TestNormalizeDerivedFields(t *testing.T) {
	start := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC) // Monday 05:00
	instances := []UsageRecord{
		{
			UsageStartDate:   start,
			UsageAccountID:   "111111111111",
			AvailabilityZone: "us-east-1a",
			InstanceType:     "m5.2xlarge",
			Instances:        3,
			Reserved:         1,
		},
		{
			UsageStartDate:   start.AddDate(0, 0, 14),
			UsageAccountID:   "111111111111",
			AvailabilityZone: "us-east-1a",
			InstanceType:     "m5.2xlarge",
			Instances:        3,
		},
	}
	reservations := []Reservation{
		{AccountID: "111111111111", AvailabilityZone: "us-east-1b", InstanceType: "m5.2xlarge", Quantity: 2},
		{AccountID: "111111111111", Region: "eu-west-1", InstanceType: "m5.2xlarge", Quantity: 1},
	}

	outInstances, outReservations, err := Normalize(logr.Discard(), DefaultOptions(),
		instances, reservations, unitsTable(map[string]float64{"m5.2xlarge": 16}))
	require.NoError(t, err)
	require.Len(t, outInstances, 2)

	rec := outInstances[0]
	assert.Equal(t, "us-east-1", rec.Region)
	assert.Equal(t, "m5", rec.Family)
	assert.Equal(t, 5, rec.HourOfWeek)
	assert.Equal(t, 48.0, rec.InstanceUnits)
	assert.Equal(t, 16.0, rec.ReservedUnits)

	require.Len(t, outReservations, 2)
	// Region is derived from the zone only when not set.
	assert.Equal(t, "us-east-1", outReservations[0].Region)
	assert.Equal(t, 32.0, outReservations[0].Units)
	assert.Equal(t, "eu-west-1", outReservations[1].Region)
}

func TestNormalizeAccountFilters(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table := unitsTable(map[string]float64{"m5.xlarge": 8})
	instances := []UsageRecord{
		{UsageStartDate: start, UsageAccountID: "111111111111", InstanceType: "m5.xlarge", Instances: 1},
		{UsageStartDate: start, UsageAccountID: "222222222222", InstanceType: "m5.xlarge", Instances: 1},
		{UsageStartDate: start.AddDate(0, 0, 14), UsageAccountID: "333333333333", InstanceType: "m5.xlarge", Instances: 1},
	}

	opts := DefaultOptions()
	opts.SkipAccounts = []string{"222222222222"}
	out, _, err := Normalize(logr.Discard(), opts, instances, nil, table)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "111111111111", out[0].UsageAccountID)
	assert.Equal(t, "333333333333", out[1].UsageAccountID)

	opts = DefaultOptions()
	opts.IncludeAccounts = []string{"222222222222"}
	out, _, err = Normalize(logr.Discard(), opts, instances, nil, table)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "222222222222", out[0].UsageAccountID)
}

func TestNormalizeDropsUnknownTypes(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	instances := []UsageRecord{
		{UsageStartDate: start, UsageAccountID: "111111111111", InstanceType: "m5.xlarge", Instances: 1},
		{UsageStartDate: start, UsageAccountID: "111111111111", InstanceType: "quantum9.mega", Instances: 1},
		{UsageStartDate: start.AddDate(0, 0, 14), UsageAccountID: "111111111111", InstanceType: "m5.xlarge", Instances: 1},
	}
	reservations := []Reservation{
		{AccountID: "111111111111", Region: "us-east-1", InstanceType: "quantum9.mega", Quantity: 1},
	}

	outInstances, outReservations, err := Normalize(logr.Discard(), DefaultOptions(),
		instances, reservations, unitsTable(map[string]float64{"m5.xlarge": 8}))
	require.NoError(t, err)
	assert.Len(t, outInstances, 2)
	assert.Empty(t, outReservations)
}
