// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/ariel/internal/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ariel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fullConfig = `
DEFAULTS:
  LOG_LEVEL: debug
  AWS_REGION: us-west-2
  CACHING: true
MASTER:
  ROLE: arn:aws:iam::123456789012:role/ariel-master-usage
ATHENA:
  CUR_DATABASE: costdb
  CUR_TABLE_NAME: cur2024
  DAYS: 14
RI_PURCHASES:
  RI_TERM: 12
  RI_OPTION: No Upfront
  AGGRESSIVE_THRESHOLD: "2.5"
  CONSERVATIVE_THRESHOLD: bogus
  SKIP_ACCOUNTS: 111111111111 222222222222
  STANDARD_DEFAULT_UTIL_TARGET: 75
  CONVERTIBLE_AGGRESSIVE_SLUSH_UTIL_TARGET: BREAK_EVEN
LOCATIONS:
  EU (Dublin North): eu-west-9
CSV_REPORTS:
  RI_PURCHASES: file:///tmp/ri-purchases.csv
PG_REPORTS:
  DB_HOST: reports.example.com
  DATABASE: ariel
  USER: ariel
  RI_USAGE: account_usage_summary
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Defaults.LogLevel)
	assert.Equal(t, "us-west-2", cfg.Defaults.AWSRegion)
	assert.True(t, cfg.Defaults.Caching)
	assert.Equal(t, "costdb", cfg.Athena.Database)
	assert.Equal(t, "cur2024", cfg.Athena.TableName)
	assert.Equal(t, 14, cfg.Athena.Days)

	// Defaults fill unset keys.
	assert.Equal(t, DefaultUsageOffset, cfg.Athena.Offset)
	assert.Equal(t, DefaultPricingURL, cfg.Pricing.URL)
	assert.Equal(t, DefaultAccountNameRetries, cfg.AccountNames.Retries)
	assert.Equal(t, DefaultCacheDir, cfg.Defaults.CacheDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMasterResolve(t *testing.T) {
	accountID, role := MasterConfig{
		Role: "arn:aws:iam::123456789012:role/ariel-master-usage",
	}.Resolve()
	assert.Equal(t, "123456789012", accountID)
	assert.Equal(t, "arn:aws:iam::123456789012:role/ariel-master-usage", role)

	accountID, role = MasterConfig{AccountID: "123456789012"}.Resolve()
	assert.Equal(t, "123456789012", accountID)
	assert.Equal(t, "arn:aws:iam::123456789012:role/ariel-master-usage", role)

	accountID, role = MasterConfig{}.Resolve()
	assert.Empty(t, accountID)
	assert.Empty(t, role)
}

func TestValidate(t *testing.T) {
	for name, content := range map[string]string{
		"bad role ARN": `
MASTER:
  ROLE: not-an-arn
`,
		"bad log level": `
DEFAULTS:
  LOG_LEVEL: loud
`,
		"target without term": `
RI_PURCHASES:
  STANDARD_DEFAULT_UTIL_TARGET: 75
`,
		"pg host without database": `
PG_REPORTS:
  DB_HOST: reports.example.com
`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestEngineOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	opts := cfg.EngineOptions()
	assert.Equal(t, []string{"111111111111", "222222222222"}, opts.SkipAccounts)
	assert.Empty(t, opts.IncludeAccounts)
	assert.Equal(t, 12, opts.RITermMonths)
	assert.Equal(t, "No Upfront", opts.RIOption)
	assert.Equal(t, engine.SizeLargest, opts.RISize)
	assert.Equal(t, DefaultFilterThreshold, opts.FilterThreshold)

	require.NotNil(t, opts.AggressiveThreshold)
	assert.Equal(t, 2.5, *opts.AggressiveThreshold)
	// An unparseable threshold disables the branch rather than failing.
	assert.Nil(t, opts.ConservativeThreshold)

	assert.Equal(t, "75", opts.UtilTargets["STANDARD_DEFAULT_UTIL_TARGET"])
	assert.Equal(t, "BREAK_EVEN", opts.UtilTargets["CONVERTIBLE_AGGRESSIVE_SLUSH_UTIL_TARGET"])
	assert.Len(t, opts.UtilTargets, 2)
}

func TestReportDestinations(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	dest, ok := cfg.CSVDestination("RI_PURCHASES")
	require.True(t, ok)
	assert.Equal(t, "file:///tmp/ri-purchases.csv", dest)
	_, ok = cfg.CSVDestination("RI_USAGE")
	assert.False(t, ok)

	table, ok := cfg.PGTable("RI_USAGE")
	require.True(t, ok)
	assert.Equal(t, "account_usage_summary", table)
	_, ok = cfg.PGTable("RI_PURCHASES")
	assert.False(t, ok)
}

// Viper lowercases map keys; Location matches case-insensitively.
func TestLocation(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	region, ok := cfg.Location("EU (Dublin North)")
	require.True(t, ok)
	assert.Equal(t, "eu-west-9", region)

	_, ok = cfg.Location("EU (Atlantis)")
	assert.False(t, ok)
}
