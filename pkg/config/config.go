// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package config provides configuration management for ariel.
//
// Configuration is a YAML file of UPPER_CASE sections and keys
// (DEFAULTS, MASTER, ATHENA, PRICING, RI_PURCHASES, CSV_REPORTS, PG_REPORTS,
// ...), loaded with Viper and unmarshalled once into a typed Config struct.
// Environment variables with the ARIEL_ prefix override file values.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/yahoo/ariel/internal/engine"
)

// Config is the complete ariel configuration.
type Config struct {
	Defaults          DefaultsConfig    `mapstructure:"DEFAULTS"`
	Master            MasterConfig      `mapstructure:"MASTER"`
	Athena            AthenaConfig      `mapstructure:"ATHENA"`
	ReservedInstances RIQueryConfig     `mapstructure:"RESERVED_INSTANCES"`
	AccountNames      AccountNames      `mapstructure:"ACCOUNT_NAMES"`
	Pricing           PricingConfig     `mapstructure:"PRICING"`
	Locations         map[string]string `mapstructure:"LOCATIONS"`
	Purchases         PurchasesConfig   `mapstructure:"RI_PURCHASES"`

	// CSVReports maps a report name (e.g. RI_PURCHASES) to a file:// or
	// s3:// destination. Reports without an entry are not written to CSV.
	CSVReports map[string]string `mapstructure:"CSV_REPORTS"`

	// PGReports maps a report name to a Postgres table, plus connection
	// settings under reserved keys. Reports without an entry are not
	// published.
	PGReports PGReportsConfig `mapstructure:"PG_REPORTS"`
}

// DefaultsConfig holds cross-cutting settings.
type DefaultsConfig struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// AWSRegion is the fallback region for AWS API calls.
	AWSRegion string `mapstructure:"AWS_REGION"`

	// Caching enables the 24h file cache for loaded inputs.
	Caching bool `mapstructure:"CACHING"`

	// CacheDir overrides where input caches are written.
	CacheDir string `mapstructure:"CACHE_DIR"`
}

// MasterConfig identifies the payer account whose role is assumed for
// warehouse and organization queries.
type MasterConfig struct {
	AccountID string `mapstructure:"ACCOUNT_ID"`
	Role      string `mapstructure:"ROLE"`
}

// Resolve returns the master account ID and role ARN, deriving whichever is
// missing: the account from the role's ARN, or the conventional role name
// from the account.
func (m MasterConfig) Resolve() (accountID, role string) {
	accountID, role = m.AccountID, m.Role
	if accountID == "" {
		if parts := strings.Split(role, ":"); len(parts) >= 5 {
			accountID = parts[4]
		}
		return accountID, role
	}
	if role == "" {
		role = fmt.Sprintf("arn:aws:iam::%s:role/ariel-master-usage", accountID)
	}
	return accountID, role
}

// AthenaConfig locates the cost-and-usage warehouse.
type AthenaConfig struct {
	AWSRegion string `mapstructure:"AWS_REGION"`
	Database  string `mapstructure:"CUR_DATABASE"`
	TableName string `mapstructure:"CUR_TABLE_NAME"`

	// Staging is the S3 location query results are written to. Defaults to
	// the conventional aws-athena-query-results bucket for the master
	// account and region.
	Staging string `mapstructure:"STAGING"`

	// Days and Offset bound the usage window: [today-offset-days, today-offset).
	Days   int `mapstructure:"DAYS"`
	Offset int `mapstructure:"OFFSET"`
}

// RIQueryConfig holds settings for the reservation inventory query.
type RIQueryConfig struct {
	AWSRegion string `mapstructure:"AWS_REGION"`
}

// AccountNames configures account-name resolution.
type AccountNames struct {
	// Retries bounds retry attempts on the paginated listing.
	Retries int `mapstructure:"RETRIES"`

	// File is an optional YAML file of id -> name overrides, merged over
	// the organization listing.
	File string `mapstructure:"FILE"`
}

// PricingConfig locates the pricing feed.
type PricingConfig struct {
	URL string `mapstructure:"URL"`
}

// PGReportsConfig configures Postgres report publishing.
type PGReportsConfig struct {
	// DBHost enables publishing when set. ConnectHost overrides the host
	// actually dialed (e.g. a proxy in front of the database).
	DBHost      string `mapstructure:"DB_HOST"`
	ConnectHost string `mapstructure:"CONNECT_HOST"`
	Database    string `mapstructure:"DATABASE"`
	User        string `mapstructure:"USER"`
	Password    string `mapstructure:"PASSWORD"`

	// Tables maps report names to destination tables.
	Tables map[string]string `mapstructure:",remain"`
}

// PurchasesConfig is the RI_PURCHASES section: every knob of the allocation
// and recommendation engine. Threshold values stay strings here; parse
// failures degrade the feature they control rather than aborting the run.
type PurchasesConfig struct {
	SkipAccounts          string `mapstructure:"SKIP_ACCOUNTS"`
	IncludeAccounts       string `mapstructure:"INCLUDE_ACCOUNTS"`
	FilterThreshold       string `mapstructure:"FILTER_THRESHOLD"`
	AggressiveThreshold   string `mapstructure:"AGGRESSIVE_THRESHOLD"`
	ConservativeThreshold string `mapstructure:"CONSERVATIVE_THRESHOLD"`
	RISize                string `mapstructure:"RI_SIZE"`
	RITerm                int    `mapstructure:"RI_TERM"`
	RIOption              string `mapstructure:"RI_OPTION"`
	SlushAccount          string `mapstructure:"SLUSH_ACCOUNT"`

	// UtilTargets collects the dynamic {OFFERING}_{ALGO}[_SLUSH]_UTIL_TARGET
	// keys, values being a percentage or BREAK_EVEN.
	UtilTargets map[string]interface{} `mapstructure:",remain"`
}

// Load reads, unmarshals and validates the configuration file at path.
//
// Precedence (highest first): ARIEL_-prefixed environment variables, file
// values, defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("DEFAULTS.LOG_LEVEL", "info")
	v.SetDefault("DEFAULTS.CACHE_DIR", DefaultCacheDir)
	v.SetDefault("ATHENA.CUR_TABLE_NAME", "cur")
	v.SetDefault("ATHENA.DAYS", DefaultUsageDays)
	v.SetDefault("ATHENA.OFFSET", DefaultUsageOffset)
	v.SetDefault("PRICING.URL", DefaultPricingURL)
	v.SetDefault("ACCOUNT_NAMES.RETRIES", DefaultAccountNameRetries)
	v.SetDefault("RI_PURCHASES.RI_SIZE", engine.SizeLargest)

	v.SetEnvPrefix("ARIEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var roleARNPattern = regexp.MustCompile(`^arn:(aws|aws-us-gov|aws-cn):iam::\d{12}:role/[a-zA-Z0-9+=,.@\-_/]+$`)

// Validate checks the configuration for errors that should fail fast rather
// than surface mid-run.
func (c *Config) Validate() error {
	if c.Master.Role != "" && !roleARNPattern.MatchString(c.Master.Role) {
		return fmt.Errorf("invalid MASTER.ROLE %q: must be an IAM role ARN", c.Master.Role)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Defaults.LogLevel != "" && !validLogLevels[c.Defaults.LogLevel] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error",
			c.Defaults.LogLevel)
	}

	// A term is mandatory as soon as any utilization target makes the
	// recommender eligible to run.
	if len(c.utilTargets()) > 0 && c.Purchases.RITerm <= 0 {
		return fmt.Errorf("RI_PURCHASES.RI_TERM is required when utilization targets are configured")
	}

	if c.PGReports.DBHost != "" && c.PGReports.Database == "" {
		return fmt.Errorf("PG_REPORTS.DATABASE is required when PG_REPORTS.DB_HOST is set")
	}
	return nil
}

// utilTargets extracts the *_UTIL_TARGET keys, uppercased, as strings.
func (c *Config) utilTargets() map[string]string {
	targets := make(map[string]string)
	for key, value := range c.Purchases.UtilTargets {
		upper := strings.ToUpper(key)
		if !strings.HasSuffix(upper, "_UTIL_TARGET") {
			continue
		}
		targets[upper] = fmt.Sprintf("%v", value)
	}
	return targets
}

// EngineOptions resolves the RI_PURCHASES section into engine.Options once,
// applying the documented degradation rules: unparseable thresholds disable
// the branch they guard, an unparseable filter threshold falls back to the
// default.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.SkipAccounts = strings.Fields(c.Purchases.SkipAccounts)
	opts.IncludeAccounts = strings.Fields(c.Purchases.IncludeAccounts)

	if c.Purchases.FilterThreshold != "" {
		if threshold, err := strconv.ParseFloat(c.Purchases.FilterThreshold, 64); err == nil {
			opts.FilterThreshold = threshold
		}
	}
	if slope, err := strconv.ParseFloat(c.Purchases.AggressiveThreshold, 64); err == nil {
		opts.AggressiveThreshold = &slope
	}
	if slope, err := strconv.ParseFloat(c.Purchases.ConservativeThreshold, 64); err == nil {
		opts.ConservativeThreshold = &slope
	}

	if c.Purchases.RISize != "" {
		opts.RISize = c.Purchases.RISize
	}
	opts.RITermMonths = c.Purchases.RITerm
	opts.RIOption = c.Purchases.RIOption
	opts.SlushAccount = c.Purchases.SlushAccount
	opts.UtilTargets = c.utilTargets()
	return opts
}

// PGTable returns the destination table for a report, if publishing is
// configured for it.
func (c *Config) PGTable(report string) (string, bool) {
	for key, table := range c.PGReports.Tables {
		if strings.EqualFold(key, report) && table != "" {
			return table, true
		}
	}
	return "", false
}

// CSVDestination returns the CSV destination for a report, if configured.
func (c *Config) CSVDestination(report string) (string, bool) {
	for key, dest := range c.CSVReports {
		if strings.EqualFold(key, report) && dest != "" {
			return dest, true
		}
	}
	return "", false
}

// Location resolves a pricing-feed location name to a region through the
// LOCATIONS section. Viper lowercases map keys, so match case-insensitively.
func (c *Config) Location(name string) (string, bool) {
	for key, region := range c.Locations {
		if strings.EqualFold(key, name) && region != "" {
			return region, true
		}
	}
	return "", false
}
