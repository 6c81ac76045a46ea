// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Command ariel generates AWS reserved instance coverage reports and
// purchase recommendations from cost-and-usage data.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
