// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package main

import (
	"github.com/spf13/cobra"

	"github.com/yahoo/ariel/internal/engine"
	"github.com/yahoo/ariel/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full report cycle: load inputs, generate and publish reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		return env.runner.Run(cmd.Context())
	},
}

var generateReportsCmd = &cobra.Command{
	Use:   "generate-reports",
	Short: "Generate reports and write CSV destinations, skipping the report database",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		names, err := env.runner.AccountNames(ctx)
		if err != nil {
			return err
		}
		reservations, err := env.runner.Reservations(ctx)
		if err != nil {
			return err
		}
		table, err := env.runner.Pricing(ctx)
		if err != nil {
			return err
		}
		instances, err := env.runner.Usage(ctx)
		if err != nil {
			return err
		}

		reports, err := engine.Generate(env.log, env.cfg.EngineOptions(), instances, reservations, table)
		if err != nil {
			return err
		}

		for _, t := range report.Build(*reports, names) {
			uri, ok := env.cfg.CSVDestination(t.Name)
			if !ok {
				continue
			}
			env.log.Info("writing report", "report", t.Name, "destination", uri)
			if err := report.WriteCSV(ctx, t, uri, env.client); err != nil {
				return err
			}
		}
		return nil
	},
}
