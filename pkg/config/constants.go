// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package config

import "time"

// DefaultPricingURL is the public bulk offers file for EC2. It is the only
// pricing source that carries normalization size factors and reserved
// offering terms in a single document.
const DefaultPricingURL = "https://pricing.us-east-1.amazonaws.com/offers/v1.0/aws/AmazonEC2/current/index.csv"

// DefaultUsageDays is how many days of usage the warehouse query covers when
// ATHENA.DAYS is not configured. Four weeks gives every hour-of-week bucket
// four samples.
const DefaultUsageDays = 28

// DefaultUsageOffset skips the most recent day, which the billing warehouse
// may not have finalized yet.
const DefaultUsageOffset = 1

// DefaultFilterThreshold is the trend estimator's outlier dampening ratio.
const DefaultFilterThreshold = 3.0

// DefaultAccountNameRetries bounds retries of the paginated account listing.
const DefaultAccountNameRetries = 5

// DefaultCacheTTL is how long cached warehouse extracts, pricing tables and
// account listings stay valid.
const DefaultCacheTTL = 24 * time.Hour

// DefaultCacheDir is where input caches live when DEFAULTS.CACHE_DIR is not
// configured.
const DefaultCacheDir = "/tmp"

// RoleSessionName identifies assumed-role sessions opened by this tool.
const RoleSessionName = "ariel"
