// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yahoo/ariel/internal/runner"
	"github.com/yahoo/ariel/pkg/aws"
	"github.com/yahoo/ariel/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ariel",
	Short: "AWS reserved instance usage and recommendation reports",
	Long: `ariel analyzes hourly EC2 usage from the cost-and-usage warehouse
together with the active reservation inventory, and produces coverage
reports and reserved instance purchase recommendations.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file to load for ariel configuration")
	rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateReportsCmd)
	rootCmd.AddCommand(getPricingCmd)
	rootCmd.AddCommand(getReservedInstancesCmd)
	rootCmd.AddCommand(getInstanceSummaryCmd)
	rootCmd.AddCommand(getAccountNamesCmd)
	rootCmd.AddCommand(serveCmd)
}

// commandEnv bundles everything a subcommand needs.
type commandEnv struct {
	cfg    *config.Config
	log    logr.Logger
	client aws.Client
	runner *runner.Runner
}

// setup loads the configuration and builds the logger, AWS client and
// runner shared by every subcommand.
func setup(cmd *cobra.Command) (*commandEnv, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.Defaults.LogLevel)
	if err != nil {
		return nil, err
	}

	_, role := cfg.Master.Resolve()
	client, err := aws.NewRealClient(cmd.Context(), log, aws.ClientConfig{
		Region:     cfg.Defaults.AWSRegion,
		MasterRole: role,
	})
	if err != nil {
		return nil, err
	}

	return &commandEnv{
		cfg:    cfg,
		log:    log,
		client: client,
		runner: runner.New(log, cfg, client, nil),
	}, nil
}

// newLogger builds a production zap logger at the configured level, wrapped
// for logr. Verbosity 1 maps to zap's debug level.
func newLogger(level string) (logr.Logger, error) {
	if level == "" {
		level = "info"
	}
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapLog, err := zapCfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zapLog), nil
}
