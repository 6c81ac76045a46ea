// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"math"
	"time"
)

// Purchasing aggressiveness labels derived from the usage trend.
const (
	AlgorithmDefault      = "DEFAULT"
	AlgorithmAggressive   = "AGGRESSIVE"
	AlgorithmConservative = "CONSERVATIVE"
)

// estimateTrend fits a robust least-squares line through the group's
// per-timestamp usage and classifies purchasing aggressiveness from its
// slope. Returns the slope in units/day and the algorithm label.
//
// Outlier dampening: points whose absolute deviation from the series mean
// exceeds FilterThreshold times the median deviation are replaced by the
// series median before fitting, so a one-off batch job does not masquerade
// as organic growth.
func estimateTrend(series timeSeries, opts Options) (float64, string) {
	times := series.times()
	signal := make([]float64, len(times))
	for i, t := range times {
		signal[i] = series[t]
	}

	var meanValue float64
	for _, v := range signal {
		meanValue += v
	}
	if len(signal) > 0 {
		meanValue /= float64(len(signal))
	}

	deviations := make([]float64, len(signal))
	for i, v := range signal {
		deviations[i] = math.Abs(v - meanValue)
	}
	if medianDeviation := median(deviations); medianDeviation > 0 {
		replacement := median(signal)
		for i, d := range deviations {
			if d/medianDeviation > opts.FilterThreshold {
				signal[i] = replacement
			}
		}
	}

	slope := leastSquaresSlope(times, signal) * 86400 // per-second fit -> units/day

	algorithm := AlgorithmDefault
	if opts.AggressiveThreshold != nil && slope >= *opts.AggressiveThreshold {
		algorithm = AlgorithmAggressive
	}
	// Conservative is evaluated after aggressive and wins when both match.
	if opts.ConservativeThreshold != nil && slope <= *opts.ConservativeThreshold {
		algorithm = AlgorithmConservative
	}
	return slope, algorithm
}

// leastSquaresSlope fits y = m*t + c over Unix-second timestamps and returns
// m. Timestamps are centered at their mean first; the slope is unchanged and
// the sums stay well-conditioned.
func leastSquaresSlope(times []time.Time, y []float64) float64 {
	n := len(times)
	if n < 2 {
		return 0
	}

	ts := make([]float64, n)
	var meanT float64
	for i, t := range times {
		ts[i] = float64(t.Unix())
		meanT += ts[i]
	}
	meanT /= float64(n)

	var meanY float64
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)

	var num, den float64
	for i := range ts {
		dt := ts[i] - meanT
		num += dt * (y[i] - meanY)
		den += dt * dt
	}
	if den == 0 {
		return 0
	}
	return num / den
}
