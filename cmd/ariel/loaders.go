// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yahoo/ariel/internal/engine"
	"github.com/yahoo/ariel/internal/report"
)

// The get-* commands run a single loader, mainly to warm caches and inspect
// inputs while debugging a configuration.

var getPricingCmd = &cobra.Command{
	Use:   "get-pricing",
	Short: "Load the EC2 pricing table and summarize it per region",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		table, err := env.runner.Pricing(cmd.Context())
		if err != nil {
			return err
		}

		regions := make([]string, 0, len(table.Regions))
		for region := range table.Regions {
			regions = append(regions, region)
		}
		sort.Strings(regions)
		for _, region := range regions {
			fmt.Printf("%s: %d instance types\n", region, len(table.Regions[region]))
		}
		return nil
	},
}

var getReservedInstancesCmd = &cobra.Command{
	Use:   "get-reserved-instances",
	Short: "Load the active reservation inventory and print it as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		reservations, err := env.runner.Reservations(cmd.Context())
		if err != nil {
			return err
		}

		tables := report.Build(engine.Reports{Reservations: reservations}, nil)
		summary, _ := report.ByName(tables, report.RISummary)
		data, err := report.RenderCSV(summary)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var getInstanceSummaryCmd = &cobra.Command{
	Use:   "get-instance-summary",
	Short: "Run the usage query against the warehouse and cache the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		records, err := env.runner.Usage(cmd.Context())
		if err != nil {
			return err
		}
		env.log.Info("loaded usage records", "rows", len(records))
		return nil
	},
}

var getAccountNamesCmd = &cobra.Command{
	Use:   "get-account-names",
	Short: "Load the organization account listing and print it as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		names, err := env.runner.AccountNames(cmd.Context())
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(names)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}
