// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// formatTimestamp renders usage timestamps the way the warehouse emits them.
func formatTimestamp(ts time.Time) string {
	return ts.Format("2006-01-02 15:04:05")
}

// formatFloat renders a plain numeric cell with no padding or rounding.
func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// formatCount renders a unit count rounded to a whole number.
func formatCount(value float64) string {
	return strconv.FormatFloat(value, 'f', 0, 64)
}

// formatCoverage renders a coverage percentage with two decimals.
func formatCoverage(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

// formatMoney renders a dollar amount: $1,234.56.
func formatMoney(value float64) string {
	return dollars(value, 2)
}

// formatRate renders a per-hour dollar rate with four decimals.
func formatRate(value float64) string {
	return dollars(value, 4)
}

// dollars fixes the amount to the given number of decimal places and groups
// the integer digits by thousands. Decimal arithmetic keeps the rounding
// half-up, matching how the amounts read in spreadsheets.
func dollars(value float64, places int32) string {
	fixed := decimal.NewFromFloat(value).StringFixed(places)

	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for idx, digit := range whole {
		if idx > 0 && (len(whole)-idx)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	result := "$" + grouped.String()
	if frac != "" {
		result += "." + frac
	}
	if negative {
		result = "-" + result
	}
	return result
}
