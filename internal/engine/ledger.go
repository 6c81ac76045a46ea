// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

// zoneLedgerKey identifies the zone-level claim bucket for one reservation
// holder: claims are tracked per (zone, type, account) so a later reservation
// for the same bucket only sees usage not already spoken for.
type zoneLedgerKey struct {
	AvailabilityZone string
	InstanceType     string
	AccountID        string
}

// ledger is the per-group assignment ledger: the running record of how much
// usage already-processed reservations have claimed. It lives for exactly one
// (region, family, tenancy, OS) group evaluation and is threaded explicitly
// through the allocation passes; nothing global.
type ledger struct {
	// zone records claimed instance counts per (zone, type, account).
	zone map[zoneLedgerKey]hourSeries

	// regionByAccount records claimed instance units per account at region
	// level; the cross-account zone claim books under AggregateAccountID.
	regionByAccount map[string]hourSeries
}

func newLedger() *ledger {
	return &ledger{
		zone:            make(map[zoneLedgerKey]hourSeries),
		regionByAccount: make(map[string]hourSeries),
	}
}

// claimZone records a zone-level claim and its region-level echo in units.
func (l *ledger) claimZone(key zoneLedgerKey, claimed hourSeries, unitFactor float64) {
	if l.zone[key] == nil {
		l.zone[key] = make(hourSeries)
	}
	l.zone[key].add(claimed)
	l.claimRegion(key.AccountID, claimed.scaled(unitFactor))
}

// claimRegion records region-level claimed units for an account.
func (l *ledger) claimRegion(accountID string, claimedUnits hourSeries) {
	if l.regionByAccount[accountID] == nil {
		l.regionByAccount[accountID] = make(hourSeries)
	}
	l.regionByAccount[accountID].add(claimedUnits)
}

// zoneClaims returns the claims already recorded for a bucket, or an empty
// series when none exist.
func (l *ledger) zoneClaims(key zoneLedgerKey) hourSeries {
	if s, ok := l.zone[key]; ok {
		return s
	}
	return hourSeries{}
}

// regionClaims returns the region-level claims for one account.
func (l *ledger) regionClaims(accountID string) hourSeries {
	if s, ok := l.regionByAccount[accountID]; ok {
		return s
	}
	return hourSeries{}
}

// regionClaimsTotal sums region-level claims across every account, including
// the synthetic aggregate account.
func (l *ledger) regionClaimsTotal() hourSeries {
	total := make(hourSeries)
	for _, s := range l.regionByAccount {
		total.add(s)
	}
	return total
}
