// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package pricing

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

// DefaultOffersURL is the public AWS price list bulk API endpoint for the
// complete EC2 offer file in CSV form.
const DefaultOffersURL = "https://pricing.us-east-1.amazonaws.com/offers/v1.0/aws/AmazonEC2/current/index.csv"

// builtinLocations maps the human-readable location names used in the offer
// file to region codes. Locations missing here can be supplied through the
// loader's resolver.
var builtinLocations = map[string]string{
	"Asia Pacific (Mumbai)":      "ap-south-1",
	"Asia Pacific (Osaka-Local)": "ap-northeast-3",
	"Asia Pacific (Seoul)":       "ap-northeast-2",
	"Asia Pacific (Singapore)":   "ap-southeast-1",
	"Asia Pacific (Sydney)":      "ap-southeast-2",
	"Asia Pacific (Tokyo)":       "ap-northeast-1",
	"AWS GovCloud (US-East)":     "us-gov-east-1",
	"AWS GovCloud (US)":          "us-gov-west-1",
	"Canada (Central)":           "ca-central-1",
	"China (Beijing)":            "cn-north-1",
	"China (Ningxia)":            "cn-northwest-1",
	"EU (Frankfurt)":             "eu-central-1",
	"EU (Ireland)":               "eu-west-1",
	"EU (London)":                "eu-west-2",
	"EU (Paris)":                 "eu-west-3",
	"EU (Stockholm)":             "eu-north-1",
	"South America (Sao Paulo)":  "sa-east-1",
	"US East (N. Virginia)":      "us-east-1",
	"US East (Ohio)":             "us-east-2",
	"US West (N. California)":    "us-west-1",
	"US West (Oregon)":           "us-west-2",
}

// Loader streams the EC2 offer file and condenses it into a Table. The offer
// file is tens of millions of rows, so parsing is strictly streaming: rows
// are filtered and folded into the table without buffering the download.
type Loader struct {
	log    logr.Logger
	url    string
	client *http.Client

	// resolveLocation maps an offer-file location name missing from the
	// builtin set to a region code. Returning "" skips the location.
	resolveLocation func(string) string
}

// NewLoader creates a loader for the offer file at url. resolveLocation may
// be nil when no extra location mappings are configured.
func NewLoader(log logr.Logger, url string, resolveLocation func(string) string) *Loader {
	if url == "" {
		url = DefaultOffersURL
	}
	return &Loader{
		log:             log,
		url:             url,
		client:          http.DefaultClient,
		resolveLocation: resolveLocation,
	}
}

// Load downloads and parses the offer file.
func (l *Loader) Load(ctx context.Context) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pricing data from %s: %w", l.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s fetching pricing data from %s", resp.Status, l.url)
	}
	return l.Parse(resp.Body)
}

// Parse reads an offer file from r and folds it into a Table. Exposed
// separately so local copies of the offer file can be loaded directly.
func (l *Loader) Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	columns, err := findHeader(reader)
	if err != nil {
		return nil, err
	}

	table := NewTable()
	locations := make(map[string]string, len(builtinLocations))
	for name, region := range builtinLocations {
		locations[name] = region
	}

	rowcount := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse pricing data: %w", err)
		}
		if !offerRowWanted(columns, row) {
			continue
		}

		sku := columns.get(row, "SKU")
		location := columns.get(row, "Location")
		instanceType := columns.get(row, "Instance Type")
		tenancy := columns.get(row, "Tenancy")
		operatingSystem := columns.get(row, "Operating System")

		region, known := locations[location]
		if !known {
			if l.resolveLocation != nil {
				region = l.resolveLocation(location)
			}
			locations[location] = region
			if region == "" {
				l.log.Info("skipping unknown location", "location", location)
			}
		}
		if region == "" {
			continue
		}

		entry, ok := table.Lookup(region, instanceType, tenancy, operatingSystem)
		if !ok {
			units, err := strconv.ParseFloat(columns.get(row, "Normalization Size Factor"), 64)
			if err != nil {
				l.log.Info("skipping invalid pricing data",
					"region", region, "instanceType", instanceType, "sku", sku)
				continue
			}
			entry = &InstancePricing{SKU: sku, Reserved: make(map[string]ReservedRate)}
			table.Set(region, instanceType, tenancy, operatingSystem, entry)
			table.Units[instanceType] = units
		}
		if entry.SKU != sku {
			l.log.Info("skipping duplicate sku",
				"region", region, "instanceType", instanceType, "sku", sku, "existing", entry.SKU)
			continue
		}

		unit := columns.get(row, "Unit")
		rate, _ := strconv.ParseFloat(columns.get(row, "PricePerUnit"), 64)
		switch columns.get(row, "TermType") {
		case "OnDemand":
			if unit == "Hrs" || unit == "Hours" {
				entry.OnDemandRate = rate
				entry.HasOnDemand = true
			}
		case "Reserved":
			key := RateKey(columns.get(row, "LeaseContractLength"),
				columns.get(row, "OfferingClass"), columns.get(row, "PurchaseOption"))
			reserved := entry.Reserved[key]
			switch unit {
			case "Hrs", "Hours":
				reserved.Hourly = rate
			case "Quantity":
				reserved.Upfront = rate
			}
			entry.Reserved[key] = reserved
		}
		rowcount++
	}
	l.log.Info("loaded pricing rows", "rows", rowcount)

	kept := table.Trim()
	l.log.Info("loaded instance type prices", "entries", kept)
	return table, nil
}

// columnIndex maps offer-file header names to their column positions.
type columnIndex map[string]int

func (c columnIndex) get(row []string, name string) string {
	idx, ok := c[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// findHeader skips the offer-file preamble (version and publication metadata
// rows) and returns the index of the real header row, recognized by its
// leading SKU column.
func findHeader(reader *csv.Reader) (columnIndex, error) {
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil, fmt.Errorf("pricing data contains no header row")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse pricing data: %w", err)
		}
		if len(row) > 0 && row[0] == "SKU" {
			columns := make(columnIndex, len(row))
			for idx, name := range row {
				columns[name] = idx
			}
			return columns, nil
		}
	}
}

// offerRowWanted filters the offer file down to plain compute instance
// offerings: no license fees, no pre-installed software, no child SKUs.
// Bare-metal types are split across two product families in the catalog
// (per AWS support, an artifact of when types were added) so both count.
func offerRowWanted(columns columnIndex, row []string) bool {
	family := columns.get(row, "Product Family")
	if family != "Compute Instance" && family != "Compute Instance (bare metal)" {
		return false
	}
	if columns.get(row, "serviceCode") != "AmazonEC2" {
		return false
	}
	if columns.get(row, "Location Type") != "AWS Region" {
		return false
	}
	if !strings.HasPrefix(columns.get(row, "operation"), "RunInstances") {
		return false
	}
	if columns.get(row, "License Model") != "No License required" {
		return false
	}
	if columns.get(row, "Pre Installed S/W") != "NA" {
		return false
	}
	// Rows carrying an instanceSKU are children of the entry we want.
	if columns.get(row, "instanceSKU") != "" {
		return false
	}
	return true
}
