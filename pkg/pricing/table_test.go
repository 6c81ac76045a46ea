// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateKey(t *testing.T) {
	assert.Equal(t, "1yr-standard-No Upfront", RateKey("1yr", "standard", "No Upfront"))
	assert.Equal(t, "3yr-convertible-All Upfront", RateKey("3yr", "convertible", "All Upfront"))
}

func TestLookup(t *testing.T) {
	table := NewTable()
	entry := &InstancePricing{SKU: "SKUA", OnDemandRate: 0.192, HasOnDemand: true}
	table.Set("us-east-1", "m5.xlarge", "Shared", "Linux", entry)

	got, ok := table.Lookup("us-east-1", "m5.xlarge", "Shared", "Linux")
	require.True(t, ok)
	assert.Same(t, entry, got)

	for _, dims := range [][4]string{
		{"us-west-2", "m5.xlarge", "Shared", "Linux"},
		{"us-east-1", "c5.large", "Shared", "Linux"},
		{"us-east-1", "m5.xlarge", "Dedicated", "Linux"},
		{"us-east-1", "m5.xlarge", "Shared", "Windows"},
	} {
		_, ok := table.Lookup(dims[0], dims[1], dims[2], dims[3])
		assert.False(t, ok, "%v", dims)
	}

	assert.True(t, table.HasRegion("us-east-1"))
	assert.False(t, table.HasRegion("us-west-2"))
}

func TestUnitsFor(t *testing.T) {
	table := NewTable()
	table.Units["m5.xlarge"] = 8
	table.Units["c5.xlarge"] = 8
	table.Units["m5.2xlarge"] = 16

	units, ok := table.UnitsFor("m5.2xlarge")
	require.True(t, ok)
	assert.Equal(t, 16.0, units)

	// A bare size resolves through any family carrying that suffix.
	units, ok = table.UnitsFor("xlarge")
	require.True(t, ok)
	assert.Equal(t, 8.0, units)

	_, ok = table.UnitsFor("m5.4xlarge")
	assert.False(t, ok)
	_, ok = table.UnitsFor("nano")
	assert.False(t, ok)
}

func TestFamilyTypes(t *testing.T) {
	table := NewTable()
	for _, instanceType := range []string{"m5.xlarge", "m5.2xlarge", "c5.large"} {
		table.Set("us-east-1", instanceType, "Shared", "Linux", &InstancePricing{})
	}

	assert.Equal(t, []string{"m5.2xlarge", "m5.xlarge"}, table.FamilyTypes("us-east-1", "m5"))
	assert.Empty(t, table.FamilyTypes("us-east-1", "r5"))
	assert.Empty(t, table.FamilyTypes("eu-west-1", "m5"))
}

func TestTrim(t *testing.T) {
	table := NewTable()
	table.Set("us-east-1", "m5.xlarge", "Shared", "Linux", &InstancePricing{
		HasOnDemand: true,
		Reserved:    map[string]ReservedRate{"1yr-standard-No Upfront": {Hourly: 0.12}},
	})
	table.Set("us-east-1", "c5.large", "Shared", "Linux", &InstancePricing{
		HasOnDemand: true,
		Reserved:    map[string]ReservedRate{},
	})
	table.Set("us-west-2", "m5.xlarge", "Shared", "Linux", &InstancePricing{
		Reserved: map[string]ReservedRate{"1yr-standard-No Upfront": {Hourly: 0.12}},
	})

	kept := table.Trim()
	assert.Equal(t, 1, kept)

	_, ok := table.Lookup("us-east-1", "m5.xlarge", "Shared", "Linux")
	assert.True(t, ok)
	_, ok = table.Lookup("us-east-1", "c5.large", "Shared", "Linux")
	assert.False(t, ok)
	// The emptied region disappears entirely.
	assert.False(t, table.HasRegion("us-west-2"))
}
