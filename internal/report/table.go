// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package report turns engine output into the published report tables:
// ordered columns, display formatting (padded account ids, dollar amounts),
// account-name decoration, and CSV and Postgres publishing.
package report

import (
	"fmt"

	"github.com/yahoo/ariel/internal/engine"
)

// Report names, used as CSV_REPORTS / PG_REPORTS configuration keys.
const (
	AccountInstanceSummary = "ACCOUNT_INSTANCE_SUMMARY"
	RISummary              = "RI_SUMMARY"
	RIPurchases            = "RI_PURCHASES"
	RIUsage                = "RI_USAGE"
	RIHourlyUsage          = "RI_HOURLY_USAGE"
	UnusedAZRIs            = "UNUSED_AZ_RIS"
)

// Names lists every report in publishing order.
var Names = []string{
	AccountInstanceSummary,
	RISummary,
	RIPurchases,
	RIUsage,
	RIHourlyUsage,
	UnusedAZRIs,
}

// Table is one report rendered to display form: every cell a string, ready
// for CSV or COPY.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Build renders all reports. accountNames decorates tables carrying an
// account id column with a name column right after it; pass nil to skip
// decoration.
func Build(reports engine.Reports, accountNames map[string]string) []*Table {
	tables := []*Table{
		buildInstanceSummary(reports.Instances),
		buildRISummary(reports.Reservations),
		buildPurchases(reports.Purchases),
		buildUsage(reports.Usage),
		buildHourlyUsage(reports.HourlyUsage),
		buildUnusedZoneRIs(reports.UnusedZoneRIs),
	}
	if accountNames != nil {
		for _, table := range tables {
			table.decorate(accountNames)
		}
	}
	return tables
}

// ByName returns the table with the given report name.
func ByName(tables []*Table, name string) (*Table, bool) {
	for _, table := range tables {
		if table.Name == name {
			return table, true
		}
	}
	return nil, false
}

// decorate inserts an accountname column after accountid, resolving names
// through the organization listing. Tables already carrying names (the RI
// summary) and tables without account ids are left alone. Unknown accounts
// keep their id as the display name.
func (t *Table) decorate(accountNames map[string]string) {
	idColumn := -1
	for idx, column := range t.Columns {
		switch column {
		case "accountname":
			return
		case "accountid":
			idColumn = idx
		}
	}
	if idColumn < 0 {
		return
	}

	// The purchases report renders accountid as an Excel literal; resolve
	// names through the plain Account ID column instead.
	lookupColumn := idColumn
	for idx, column := range t.Columns {
		if column == "Account ID" {
			lookupColumn = idx
			break
		}
	}

	t.Columns = insertAt(t.Columns, idColumn+1, "accountname")
	for i, row := range t.Rows {
		name := row[lookupColumn]
		if resolved, ok := accountNames[row[lookupColumn]]; ok {
			name = resolved
		}
		t.Rows[i] = insertAt(row, idColumn+1, name)
	}
}

func insertAt(row []string, idx int, value string) []string {
	row = append(row, "")
	copy(row[idx+1:], row[idx:])
	row[idx] = value
	return row
}

func buildInstanceSummary(instances []engine.UsageRecord) *Table {
	table := &Table{
		Name: AccountInstanceSummary,
		Columns: []string{
			"usagestartdate", "usageaccountid", "region", "availabilityzone",
			"instancetypefamily", "instancetype", "tenancy", "operatingsystem",
			"instances", "reserved", "instance_units", "reserved_units",
		},
	}
	for _, rec := range instances {
		table.Rows = append(table.Rows, []string{
			formatTimestamp(rec.UsageStartDate),
			rec.UsageAccountID,
			rec.Region,
			rec.AvailabilityZone,
			rec.Family,
			rec.InstanceType,
			rec.Tenancy,
			rec.OperatingSystem,
			formatFloat(rec.Instances),
			formatFloat(rec.Reserved),
			formatFloat(rec.InstanceUnits),
			formatFloat(rec.ReservedUnits),
		})
	}
	return table
}

func buildRISummary(reservations []engine.Reservation) *Table {
	table := &Table{
		Name: RISummary,
		Columns: []string{
			"accountid", "accountname", "reservationid", "subscriptionid",
			"startdate", "enddate", "state", "quantity", "units",
			"availabilityzone", "region", "instancetype", "instancetypefamily",
			"paymentoption", "tenancy", "operatingsystem", "amortizedhours",
			"amortizedupfrontprice", "amortizedrecurringfee", "offeringclass", "scope",
		},
	}
	for _, ri := range reservations {
		table.Rows = append(table.Rows, []string{
			ri.AccountID,
			ri.AccountName,
			ri.ReservationID,
			ri.SubscriptionID,
			ri.StartDate,
			ri.EndDate,
			ri.State,
			formatFloat(ri.Quantity),
			formatFloat(ri.Units),
			ri.AvailabilityZone,
			ri.Region,
			ri.InstanceType,
			ri.Family,
			ri.PaymentOption,
			ri.Tenancy,
			ri.OperatingSystem,
			formatFloat(ri.AmortizedHours),
			formatFloat(ri.AmortizedUpfrontPrice),
			formatFloat(ri.AmortizedRecurringFee),
			ri.OfferingClass,
			ri.Scope,
		})
	}
	return table
}

func buildPurchases(purchases []engine.Purchase) *Table {
	table := &Table{
		Name: RIPurchases,
		Columns: []string{
			"Account ID", "Scope", "Region / AZ", "Instance Type",
			"Operating System", "Tenancy", "Offering Class", "Payment Type",
			"Term", "Quantity", "accountid", "family", "units",
			"ri upfront cost", "ri total cost", "ri savings",
			"ondemand value", "algorithm",
		},
	}
	for _, p := range purchases {
		table.Rows = append(table.Rows, []string{
			p.AccountID,
			p.Scope,
			p.Region,
			p.InstanceType,
			p.OperatingSystem,
			p.Tenancy,
			p.OfferingClass,
			p.PaymentOption,
			fmt.Sprintf("%d", p.TermMonths),
			fmt.Sprintf("%d", p.Quantity),
			// Excel drops leading zeros from plain numeric cells; the
			// formula literal keeps the id intact.
			fmt.Sprintf("=%q", p.AccountID),
			p.Family,
			fmt.Sprintf("%d", int(p.Units)),
			formatMoney(p.UpfrontCost),
			formatMoney(p.TotalCost),
			formatMoney(p.Savings),
			formatMoney(p.OnDemandValue),
			p.Algorithm,
		})
	}
	return table
}

func buildUsage(rows []engine.CoverageSummary) *Table {
	table := &Table{
		Name: RIUsage,
		Columns: []string{
			"region", "instancetypefamily", "tenancy", "operatingsystem",
			"total_ri_units", "total_instance_units", "floating_ri_units",
			"floating_instance_units", "unused_ri_units", "coverage_chance",
			"xl_effective_rate", "monthly_ri_cost", "monthly_od_cost",
			"monthly_ri_savings",
		},
	}
	for _, row := range rows {
		rendered := []string{
			row.Region,
			row.Family,
			row.Tenancy,
			row.OperatingSystem,
			formatCount(row.TotalRIUnits),
			formatCount(row.TotalInstanceUnits),
			formatCount(row.FloatingRIUnits),
			formatCount(row.FloatingInstanceUnits),
			formatCount(row.UnusedRIUnits),
			formatCoverage(row.CoverageChance),
		}
		if row.HasCost {
			rendered = append(rendered,
				formatRate(row.EffectiveRate),
				formatMoney(row.MonthlyRICost),
				formatMoney(row.MonthlyODCost),
				formatMoney(row.MonthlyRISavings),
			)
		} else {
			rendered = append(rendered, "", "", "", "")
		}
		table.Rows = append(table.Rows, rendered)
	}
	return table
}

func buildHourlyUsage(rows []engine.HourlyCoverage) *Table {
	table := &Table{
		Name: RIHourlyUsage,
		Columns: []string{
			"region", "instancetypefamily", "tenancy", "operatingsystem",
			"hourofweek", "total_ri_units", "total_instance_units",
			"floating_ri_units", "floating_instance_units", "unused_ri_units",
			"coverage_chance",
		},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.Region,
			row.Family,
			row.Tenancy,
			row.OperatingSystem,
			fmt.Sprintf("%d", row.HourOfWeek),
			formatCount(row.TotalRIUnits),
			formatCount(row.TotalInstanceUnits),
			formatCount(row.FloatingRIUnits),
			formatCount(row.FloatingInstanceUnits),
			formatCount(row.UnusedRIUnits),
			formatCoverage(row.CoverageChance),
		})
	}
	return table
}

func buildUnusedZoneRIs(rows []engine.UnusedZoneRI) *Table {
	table := &Table{
		Name: UnusedAZRIs,
		Columns: []string{
			"availabilityzone", "instancetype", "tenancy", "operatingsystem",
			"min_unused_qty", "avg_unused_qty", "max_unused_qty",
		},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.AvailabilityZone,
			row.InstanceType,
			row.Tenancy,
			row.OperatingSystem,
			formatFloat(row.MinUnusedQty),
			formatFloat(row.AvgUnusedQty),
			formatFloat(row.MaxUnusedQty),
		})
	}
	return table
}
