// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/yahoo/ariel/internal/engine"
)

// ceTimeFormat is the timestamp rendering used in reservation attributes.
const ceTimeFormat = "2006-01-02T15:04:05.000Z"

// Reservations returns the active reserved instance inventory from Cost
// Explorer. Grouping the utilization report by subscription yields one row
// per reservation with its full attribute set, which is richer than the
// EC2 DescribeReservedInstances view (it includes amortized costs).
func (c *RealClient) Reservations(ctx context.Context, region string) ([]engine.Reservation, error) {
	cfg, err := c.master(ctx)
	if err != nil {
		return nil, err
	}
	if region == "" {
		region = c.config.Region
	}
	client := costexplorer.NewFromConfig(cfg, func(o *costexplorer.Options) {
		o.Region = region
	})

	// GetReservationUtilization rejects windows starting more than a month
	// in the past for hourly data; a 31 day daily window covers every
	// reservation that was active at any point this month.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	input := &costexplorer.GetReservationUtilizationInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(today.AddDate(0, 0, -31).Format("2006-01-02")),
			End:   aws.String(today.Format("2006-01-02")),
		},
		GroupBy: []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String("SUBSCRIPTION_ID"),
		}},
	}

	var reservations []engine.Reservation
	for {
		rsp, err := client.GetReservationUtilization(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reservation utilization: %w", err)
		}
		if len(rsp.UtilizationsByTime) > 0 {
			for _, group := range rsp.UtilizationsByTime[0].Groups {
				if ri, active := reservationFromGroup(group, today); active {
					reservations = append(reservations, ri)
				}
			}
		}
		if rsp.NextPageToken == nil {
			break
		}
		input.NextPageToken = rsp.NextPageToken
	}

	c.log.Info("loaded reserved instances", "count", len(reservations))
	return reservations, nil
}

// reservationFromGroup maps one subscription group to a Reservation,
// reporting false for reservations that have already expired.
func reservationFromGroup(group cetypes.ReservationUtilizationGroup, today time.Time) (engine.Reservation, bool) {
	attrs := group.Attributes

	endDate, err := time.Parse(ceTimeFormat, attrs["endDateTime"])
	if err != nil || !endDate.After(today) {
		return engine.Reservation{}, false
	}

	// The warehouse bills the platform as plain Linux.
	operatingSystem := attrs["platform"]
	if operatingSystem == "Linux/UNIX" {
		operatingSystem = "Linux"
	}

	quantity, _ := strconv.ParseFloat(attrs["numberOfInstances"], 64)
	ri := engine.Reservation{
		AccountID:        attrs["accountId"],
		AccountName:      attrs["accountName"],
		ReservationID:    attrs["leaseId"],
		SubscriptionID:   attrs["subscriptionId"],
		StartDate:        attrs["startDateTime"],
		EndDate:          attrs["endDateTime"],
		State:            attrs["subscriptionStatus"],
		Quantity:         quantity,
		AvailabilityZone: attrs["availabilityZone"],
		Region:           attrs["region"],
		InstanceType:     attrs["instanceType"],
		PaymentOption:    attrs["subscriptionType"],
		Tenancy:          attrs["tenancy"],
		OperatingSystem:  operatingSystem,
		OfferingClass:    attrs["offeringType"],
		Scope:            attrs["scope"],
	}
	if util := group.Utilization; util != nil {
		ri.AmortizedHours, _ = strconv.ParseFloat(aws.ToString(util.PurchasedHours), 64)
		ri.AmortizedUpfrontPrice, _ = strconv.ParseFloat(aws.ToString(util.AmortizedUpfrontFee), 64)
		ri.AmortizedRecurringFee, _ = strconv.ParseFloat(aws.ToString(util.AmortizedRecurringFee), 64)
	}
	return ri, true
}
