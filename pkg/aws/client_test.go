// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package aws

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/ariel/internal/engine"
)

func TestBuildUsageQuery(t *testing.T) {
	sql := buildUsageQuery(UsageQuery{
		Database:  "costdb",
		TableName: "cur",
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, sql, "FROM costdb.cur")
	assert.Contains(t, sql, "usagestartdate >= cast('2024-01-01 00:00:00' as timestamp)")
	assert.Contains(t, sql, "usagestartdate < cast('2024-01-29 00:00:00' as timestamp)")
	assert.Contains(t, sql, "product_tenancy = 'Shared'")
	assert.Contains(t, sql, "line_item_availability_zone != ''")
	// Size-suffixed usage types split on the colon; bare m1 types recover
	// their size from the line item description.
	assert.Contains(t, sql, "SPLIT(line_item_usage_type, ':')[2]")
	assert.Contains(t, sql, "'%m1.small%' THEN 'm1.small'")
	assert.Contains(t, sql, "'DiscountedUsage'")
	// Rendered on a single line for the query log.
	assert.NotContains(t, sql, "\n")
	assert.NotContains(t, sql, "\t")
}

func TestParseUsage(t *testing.T) {
	const result = `usagestartdate,usageaccountid,availabilityzone,instancetype,tenancy,operatingsystem,instances,reserved
2024-01-01 00:00:00.000,111111111111,us-east-1a,m5.xlarge,Shared,Linux,4.0,1.0
2024-01-01 01:00:00,222222222222,us-east-1b,c5.large,Shared,Linux,2.5,0.0
`
	records, err := ParseUsage(strings.NewReader(result))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), records[0].UsageStartDate)
	assert.Equal(t, "111111111111", records[0].UsageAccountID)
	assert.Equal(t, "us-east-1a", records[0].AvailabilityZone)
	assert.Equal(t, "m5.xlarge", records[0].InstanceType)
	assert.Equal(t, 4.0, records[0].Instances)
	assert.Equal(t, 1.0, records[0].Reserved)

	// Timestamps without fractional seconds parse too.
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), records[1].UsageStartDate)
	assert.Equal(t, 2.5, records[1].Instances)
}

func TestParseUsageErrors(t *testing.T) {
	// Missing required column.
	_, err := ParseUsage(strings.NewReader("usagestartdate,usageaccountid\n"))
	assert.Error(t, err)

	// Unparseable timestamp.
	_, err = ParseUsage(strings.NewReader(
		"usagestartdate,usageaccountid,availabilityzone,instancetype,tenancy,operatingsystem,instances,reserved\n" +
			"yesterday,1,us-east-1a,m5.xlarge,Shared,Linux,1,0\n"))
	assert.Error(t, err)
}

func utilizationGroup(attrs map[string]string) cetypes.ReservationUtilizationGroup {
	return cetypes.ReservationUtilizationGroup{Attributes: attrs}
}

func TestReservationFromGroup(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	group := utilizationGroup(map[string]string{
		"accountId":          "111111111111",
		"accountName":        "prod",
		"leaseId":            "lease-1",
		"subscriptionId":     "12345",
		"startDateTime":      "2023-07-01T00:00:00.000Z",
		"endDateTime":        "2024-07-01T00:00:00.000Z",
		"subscriptionStatus": "Active",
		"numberOfInstances":  "3",
		"availabilityZone":   "us-east-1a",
		"region":             "us-east-1",
		"instanceType":       "m5.xlarge",
		"subscriptionType":   "No Upfront",
		"tenancy":            "Shared",
		"platform":           "Linux/UNIX",
		"offeringType":       "standard",
		"scope":              "Availability Zone",
	})
	hours := "744.0"
	upfront := "120.50"
	recurring := "89.25"
	group.Utilization = &cetypes.ReservationAggregates{
		PurchasedHours:        &hours,
		AmortizedUpfrontFee:   &upfront,
		AmortizedRecurringFee: &recurring,
	}

	ri, ok := reservationFromGroup(group, today)
	require.True(t, ok)
	assert.Equal(t, "111111111111", ri.AccountID)
	assert.Equal(t, 3.0, ri.Quantity)
	assert.Equal(t, engine.ScopeAvailabilityZone, ri.Scope)
	// The warehouse bills the platform as plain Linux.
	assert.Equal(t, "Linux", ri.OperatingSystem)
	assert.Equal(t, 744.0, ri.AmortizedHours)
	assert.Equal(t, 120.50, ri.AmortizedUpfrontPrice)
	assert.Equal(t, 89.25, ri.AmortizedRecurringFee)
}

func TestReservationFromGroupExpired(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, ok := reservationFromGroup(utilizationGroup(map[string]string{
		"endDateTime": "2024-05-01T00:00:00.000Z",
	}), today)
	assert.False(t, ok)

	_, ok = reservationFromGroup(utilizationGroup(map[string]string{
		"endDateTime": "not-a-date",
	}), today)
	assert.False(t, ok)
}

func TestSplitS3URI(t *testing.T) {
	bucket, key, ok := splitS3URI("s3://my-bucket/reports/ri-usage.csv")
	require.True(t, ok)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "reports/ri-usage.csv", key)

	_, _, ok = splitS3URI("file:///tmp/report.csv")
	assert.False(t, ok)
	_, _, ok = splitS3URI("s3://bucket-without-key")
	assert.False(t, ok)
}

func TestReadWriteLocalObject(t *testing.T) {
	client := &RealClient{}
	path := filepath.Join(t.TempDir(), "names.yaml")

	require.NoError(t, client.WriteObject(context.Background(), "file://"+path, []byte("a: b\n")))
	data, err := client.ReadObject(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "a: b\n", string(data))

	// Bare paths work without the scheme.
	data, err = client.ReadObject(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "a: b\n", string(data))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestMockClient(t *testing.T) {
	mock := NewMockClient()
	mock.UsageRecords = []engine.UsageRecord{{UsageAccountID: "111111111111"}}
	mock.Names = map[string]string{"111111111111": "prod"}

	records, err := mock.Usage(context.Background(), UsageQuery{Database: "costdb"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	require.Len(t, mock.UsageQueries, 1)
	assert.Equal(t, "costdb", mock.UsageQueries[0].Database)

	names, err := mock.AccountNames(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "prod", names["111111111111"])

	require.NoError(t, mock.WriteObject(context.Background(), "s3://b/k", []byte("x")))
	data, err := mock.ReadObject(context.Background(), "s3://b/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	_, err = mock.ReadObject(context.Background(), "s3://b/missing")
	assert.Error(t, err)
}
