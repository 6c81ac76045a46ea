// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package aws

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/yahoo/ariel/internal/engine"
)

// Usage extracts hourly instance usage from the cost-and-usage warehouse.
// The heavy lifting happens in Athena: the query aggregates the raw billing
// lines down to one row per (hour, account, zone, type, tenancy, OS), and
// only that summary is downloaded.
func (c *RealClient) Usage(ctx context.Context, query UsageQuery) ([]engine.UsageRecord, error) {
	cfg, err := c.master(ctx)
	if err != nil {
		return nil, err
	}
	region := query.Region
	if region == "" {
		region = c.config.Region
	}
	client := athena.NewFromConfig(cfg, func(o *athena.Options) {
		o.Region = region
	})

	// The warehouse publishes its own readiness; querying a table mid-load
	// would silently undercount usage.
	statusID, err := c.executeQuery(ctx, client, query.Staging,
		fmt.Sprintf("SELECT status FROM %s.cost_and_usage_data_status", query.Database))
	if err != nil {
		return nil, err
	}
	status, err := c.singleResult(ctx, client, statusID)
	if err != nil {
		return nil, err
	}
	if status != "READY" {
		return nil, fmt.Errorf("athena database %s not in READY status: %s", query.Database, status)
	}

	queryID, err := c.executeQuery(ctx, client, query.Staging, buildUsageQuery(query))
	if err != nil {
		return nil, err
	}

	bucket, prefix, ok := splitS3URI(query.Staging)
	if !ok {
		return nil, fmt.Errorf("invalid athena staging location %q", query.Staging)
	}
	data, err := readS3Object(ctx, s3.NewFromConfig(cfg), bucket, prefix+queryID+".csv")
	if err != nil {
		return nil, err
	}

	records, err := ParseUsage(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c.log.Info("loaded instance summary rows", "rows", len(records))
	return records, nil
}

// buildUsageQuery renders the usage extraction SQL. Old-generation m1 types
// are billed without a size suffix in the usage type, so their size is
// recovered from the line item description.
func buildUsageQuery(query UsageQuery) string {
	const timestampFormat = "2006-01-02 15:04:05"
	sql := `
	WITH preprocess AS (
	     SELECT line_item_usage_start_date AS usagestartdate,
	            line_item_usage_account_id AS usageaccountid,
	            line_item_availability_zone AS availabilityzone,
	            CASE WHEN line_item_usage_type LIKE '%:%' THEN SPLIT(line_item_usage_type, ':')[2]
	                 WHEN line_item_line_item_description LIKE '%m1.small%' THEN 'm1.small'
	                 WHEN line_item_line_item_description LIKE '%m1.medium%' THEN 'm1.medium'
	                 WHEN line_item_line_item_description LIKE '%m1.large%' THEN 'm1.large'
	                 WHEN line_item_line_item_description LIKE '%m1.xlarge%' THEN 'm1.xlarge'
	                 ELSE 'm1.error'
	            END AS instancetype,
	            product_tenancy AS tenancy,
	            product_operating_system AS operatingsystem,
	            CAST(line_item_usage_amount AS double) as usageamount,
	            CASE WHEN line_item_line_item_type = 'DiscountedUsage' THEN CAST(line_item_usage_amount AS DOUBLE) ELSE 0 END as reservedamount
	       FROM ` + query.Database + `.` + query.TableName + `
	      WHERE product_operation = 'RunInstances'
	        AND line_item_availability_zone != ''
	        AND product_tenancy = 'Shared'
	)
	SELECT usagestartdate, usageaccountid, availabilityzone, instancetype, tenancy, operatingsystem, SUM(usageamount) as instances, SUM(reservedamount) as reserved
	  FROM preprocess
	 WHERE usagestartdate >= cast('` + query.Start.Format(timestampFormat) + `' as timestamp)
	   AND usagestartdate < cast('` + query.End.Format(timestampFormat) + `' as timestamp)
	 GROUP BY usagestartdate, usageaccountid, availabilityzone, instancetype, tenancy, operatingsystem
	 ORDER BY usagestartdate, usageaccountid, availabilityzone, instancetype, tenancy, operatingsystem`
	return strings.Join(strings.Fields(sql), " ")
}

// executeQuery starts a query and polls it to completion, backing off from
// one second up to eight between checks.
func (c *RealClient) executeQuery(ctx context.Context, client *athena.Client, staging, sql string) (string, error) {
	start, err := client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString:        aws.String(sql),
		ClientRequestToken: aws.String(uuid.NewString()),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(staging),
			EncryptionConfiguration: &athenatypes.EncryptionConfiguration{
				EncryptionOption: athenatypes.EncryptionOptionSseS3,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to start athena query: %w", err)
	}
	queryID := aws.ToString(start.QueryExecutionId)

	delay := time.Second
	for {
		status, err := client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(queryID),
		})
		if err != nil {
			return "", fmt.Errorf("failed to poll athena query %s: %w", queryID, err)
		}
		switch state := status.QueryExecution.Status.State; state {
		case athenatypes.QueryExecutionStateSucceeded:
			return queryID, nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			reason := aws.ToString(status.QueryExecution.Status.StateChangeReason)
			c.log.Error(nil, "query execution failure", "query", sql, "state", state, "reason", reason)
			return "", fmt.Errorf("athena query %s: %s", strings.ToLower(string(state)), reason)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		if delay < 8*time.Second {
			delay *= 2
		}
	}
}

// singleResult returns the first data cell of a query's result set (row 0 is
// the header).
func (c *RealClient) singleResult(ctx context.Context, client *athena.Client, queryID string) (string, error) {
	results, err := client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(queryID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch athena results for %s: %w", queryID, err)
	}
	rows := results.ResultSet.Rows
	if len(rows) < 2 || len(rows[1].Data) < 1 {
		return "", fmt.Errorf("athena query %s returned no rows", queryID)
	}
	return aws.ToString(rows[1].Data[0].VarCharValue), nil
}

// usageTimestampFormats lists the timestamp renderings Athena produces for
// the usagestartdate column, with and without fractional seconds.
var usageTimestampFormats = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseUsage decodes a usage query result CSV. Exposed so cached result
// files can be reloaded without rerunning the query.
func ParseUsage(r io.Reader) ([]engine.UsageRecord, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to parse usage data: %w", err)
	}
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[name] = idx
	}
	for _, required := range []string{"usagestartdate", "usageaccountid", "availabilityzone",
		"instancetype", "tenancy", "operatingsystem", "instances", "reserved"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("usage data missing column %q", required)
		}
	}

	var records []engine.UsageRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse usage data: %w", err)
		}
		start, err := parseUsageTimestamp(row[columns["usagestartdate"]])
		if err != nil {
			return nil, err
		}
		instances, _ := strconv.ParseFloat(row[columns["instances"]], 64)
		reserved, _ := strconv.ParseFloat(row[columns["reserved"]], 64)
		records = append(records, engine.UsageRecord{
			UsageStartDate:   start,
			UsageAccountID:   row[columns["usageaccountid"]],
			AvailabilityZone: row[columns["availabilityzone"]],
			InstanceType:     row[columns["instancetype"]],
			Tenancy:          row[columns["tenancy"]],
			OperatingSystem:  row[columns["operatingsystem"]],
			Instances:        instances,
			Reserved:         reserved,
		})
	}
	return records, nil
}

func parseUsageTimestamp(value string) (time.Time, error) {
	for _, format := range usageTimestampFormats {
		if ts, err := time.Parse(format, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable usage timestamp %q", value)
}
