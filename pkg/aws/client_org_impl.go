// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
)

// AccountNames lists the organization's accounts as an id -> name map.
// Organizations throttles aggressively, so each listing page is retried
// with a short growing delay before the run is failed.
func (c *RealClient) AccountNames(ctx context.Context, retries int) (map[string]string, error) {
	cfg, err := c.master(ctx)
	if err != nil {
		return nil, err
	}
	// Organizations is a global service homed in us-east-1.
	client := organizations.NewFromConfig(cfg, func(o *organizations.Options) {
		o.Region = "us-east-1"
	})

	names := make(map[string]string)
	input := &organizations.ListAccountsInput{}
	for {
		rsp, err := c.listAccountsPage(ctx, client, input, retries)
		if err != nil {
			return nil, err
		}
		for _, account := range rsp.Accounts {
			names[aws.ToString(account.Id)] = aws.ToString(account.Name)
		}
		if rsp.NextToken == nil {
			break
		}
		input.NextToken = rsp.NextToken
	}

	c.log.Info("loaded account names", "accounts", len(names))
	return names, nil
}

func (c *RealClient) listAccountsPage(ctx context.Context, client *organizations.Client,
	input *organizations.ListAccountsInput, retries int) (*organizations.ListAccountsOutput, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		rsp, err := client.ListAccounts(ctx, input)
		if err == nil {
			return rsp, nil
		}
		lastErr = err
		c.log.V(1).Info("retrying account listing", "attempt", attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500*time.Millisecond + time.Duration(attempt)*100*time.Millisecond):
		}
	}
	return nil, fmt.Errorf("failed to list accounts after %d retries: %w", retries, lastErr)
}
