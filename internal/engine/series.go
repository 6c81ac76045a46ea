// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"math"
	"sort"
	"time"
)

// HourOfWeek maps a timestamp to its Monday-based hour-of-week bucket in
// [0, 167]: Monday 00:00 UTC is 0, Sunday 23:00 UTC is 167.
func HourOfWeek(t time.Time) int {
	t = t.UTC()
	day := (int(t.Weekday()) + 6) % 7 // Go weeks start Sunday; ours start Monday
	return day*24 + t.Hour()
}

// hourSeries is a sparse series keyed by hour-of-week bucket. Only hours with
// observed data carry a key; arithmetic treats missing hours as zero.
type hourSeries map[int]float64

// hours returns the populated buckets in ascending order.
func (s hourSeries) hours() []int {
	keys := make([]int, 0, len(s))
	for h := range s {
		keys = append(keys, h)
	}
	sort.Ints(keys)
	return keys
}

// sub subtracts o from s in place over s's buckets. Buckets absent from o
// subtract nothing; buckets absent from s stay absent (a claim can only
// reduce hours where usage was observed).
func (s hourSeries) sub(o hourSeries) {
	for h := range s {
		s[h] -= o[h]
	}
}

// add accumulates o into s, creating buckets as needed.
func (s hourSeries) add(o hourSeries) {
	for h, v := range o {
		s[h] += v
	}
}

// scaled returns a copy of s with every value multiplied by factor.
func (s hourSeries) scaled(factor float64) hourSeries {
	out := make(hourSeries, len(s))
	for h, v := range s {
		out[h] = v * factor
	}
	return out
}

// capAt returns a copy of s with every value capped at limit.
func (s hourSeries) capAt(limit float64) hourSeries {
	out := make(hourSeries, len(s))
	for h, v := range s {
		out[h] = math.Min(v, limit)
	}
	return out
}

// reindexFull returns a copy of s covering all 168 buckets, with missing
// hours filled with zero.
func (s hourSeries) reindexFull() hourSeries {
	out := make(hourSeries, HoursPerWeek)
	for h := 0; h < HoursPerWeek; h++ {
		out[h] = s[h]
	}
	return out
}

func (s hourSeries) min() float64 {
	first := true
	var m float64
	for _, v := range s {
		if first || v < m {
			m = v
			first = false
		}
	}
	return m
}

func (s hourSeries) max() float64 {
	first := true
	var m float64
	for _, v := range s {
		if first || v > m {
			m = v
			first = false
		}
	}
	return m
}

func (s hourSeries) mean() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

// meanByHour averages the per-bucket samples in acc: acc holds a running
// (sum, count) per bucket, built row by row.
type hourAccumulator struct {
	sum   hourSeries
	count map[int]int
}

func newHourAccumulator() *hourAccumulator {
	return &hourAccumulator{sum: make(hourSeries), count: make(map[int]int)}
}

func (a *hourAccumulator) observe(hour int, value float64) {
	a.sum[hour] += value
	a.count[hour]++
}

func (a *hourAccumulator) mean() hourSeries {
	out := make(hourSeries, len(a.sum))
	for h, total := range a.sum {
		out[h] = total / float64(a.count[h])
	}
	return out
}

// timeSeries is a series keyed by usage timestamp.
type timeSeries map[time.Time]float64

// times returns the populated timestamps in ascending order.
func (s timeSeries) times() []time.Time {
	keys := make([]time.Time, 0, len(s))
	for t := range s {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

func (s timeSeries) sum() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// reindexOver returns s's values over the full timerange in order, filling
// timestamps with no observation with zero. Reindexing before taking a
// percentile keeps partial-window usage from skewing the estimate.
func (s timeSeries) reindexOver(timerange []time.Time) []float64 {
	out := make([]float64, len(timerange))
	for i, t := range timerange {
		out[i] = s[t]
	}
	return out
}

// hourMean collapses a per-timestamp series to the mean per hour-of-week.
func (s timeSeries) hourMean() hourSeries {
	acc := newHourAccumulator()
	for t, v := range s {
		acc.observe(HourOfWeek(t), v)
	}
	return acc.mean()
}

// percentileFromTop returns the value at the (100-target) percentile of
// values: the smallest sample exceeded by only target percent of the series.
// Uses sorted-index semantics (no interpolation): index = n * (100-target) / 100.
func percentileFromTop(values []float64, target float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * (100 - target) / 100)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// median returns the median of values. The input is not modified.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
