// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 15, 7, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-15 07:30:00", formatTimestamp(ts))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "4", formatFloat(4))
	assert.Equal(t, "2.5", formatFloat(2.5))
	assert.Equal(t, "0", formatFloat(0))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "32", formatCount(32.4))
	assert.Equal(t, "33", formatCount(32.6))
}

func TestFormatCoverage(t *testing.T) {
	assert.Equal(t, "66.67", formatCoverage(66.666))
	assert.Equal(t, "100.00", formatCoverage(100))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$0.00", formatMoney(0))
	assert.Equal(t, "$5.50", formatMoney(5.5))
	assert.Equal(t, "$1,234.56", formatMoney(1234.555))
	assert.Equal(t, "$1,234,567.89", formatMoney(1234567.89))
	assert.Equal(t, "-$1,234.50", formatMoney(-1234.5))
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "$0.1920", formatRate(0.192))
	assert.Equal(t, "$1,000.0000", formatRate(1000))
}
