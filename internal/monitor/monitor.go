// Package monitor scores recent price movement of market listings.
//
// Each price history is reduced to a Movement and scored with a three-factor
// composite:
//
//	score = |net change| × historical_snr × trajectory_consistency
//
// Net change is the relative move from the first to the last price.
// Historical SNR measures how unusual that move is relative to the listing's
// step-to-step noise. Trajectory consistency rewards clean directional moves
// over oscillation.
//
// Use TopMovers to rank many listings and keep the k strongest.
package monitor

import (
	"math"
	"sort"

	"github.com/rewired-gh/imperium/internal/market"
)

// Series is the price history of one listing, oldest first.
type Series struct {
	Market   string
	Resource string
	History  []int64
}

// Movement summarises a price series.
type Movement struct {
	Market      string
	Resource    string
	First       int64
	Last        int64
	Min         int64
	Max         int64
	NetChange   float64 // (last - first) / first
	Volatility  float64 // Sample std dev of relative step changes
	SNR         float64
	Consistency float64
	CappedMoves int // Steps that landed on the ±20% bound
	Score       float64
}

// Direction returns "increase", "decrease" or "flat".
func (m Movement) Direction() string {
	switch {
	case m.Last > m.First:
		return "increase"
	case m.Last < m.First:
		return "decrease"
	default:
		return "flat"
	}
}

// Analyze computes the movement statistics of one series.
func Analyze(s Series) Movement {
	m := Movement{Market: s.Market, Resource: s.Resource}
	if len(s.History) == 0 {
		m.SNR, m.Consistency = 1.0, 1.0
		return m
	}

	m.First, m.Last = s.History[0], s.History[len(s.History)-1]
	m.Min, m.Max = m.First, m.First
	for i, p := range s.History {
		if p < m.Min {
			m.Min = p
		}
		if p > m.Max {
			m.Max = p
		}
		if i > 0 && AtCap(s.History[i-1], p) {
			m.CappedMoves++
		}
	}
	if m.First > 0 {
		m.NetChange = float64(m.Last-m.First) / float64(m.First)
	}
	m.Volatility = Volatility(s.History)
	m.SNR = HistoricalSNR(s.History, m.NetChange)
	m.Consistency = TrajectoryConsistency(s.History)
	m.Score = CompositeScore(m.NetChange, m.SNR, m.Consistency)
	return m
}

// stepChanges returns the relative change of every consecutive pair.
func stepChanges(history []int64) []float64 {
	if len(history) < 2 {
		return nil
	}
	out := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1]
		if prev <= 0 {
			continue
		}
		out = append(out, float64(history[i]-prev)/float64(prev))
	}
	return out
}

// Volatility is the sample standard deviation (Bessel correction) of the
// relative step changes. Returns 0 with fewer than two steps.
func Volatility(history []int64) float64 {
	deltas := stepChanges(history)
	if len(deltas) < 2 {
		return 0
	}

	var sum float64
	for _, d := range deltas {
		sum += d
	}
	mean := sum / float64(len(deltas))
	var variance float64
	for _, d := range deltas {
		diff := d - mean
		variance += diff * diff
	}
	variance /= float64(len(deltas) - 1)
	return math.Sqrt(variance)
}

// HistoricalSNR returns clamp(|netChange|/σ, 0.5, 5.0) where σ is the
// Volatility of history. Falls back to 1.0 when σ cannot be estimated or is
// below 1e-4.
func HistoricalSNR(history []int64, netChange float64) float64 {
	sigma := Volatility(history)
	if sigma < 1e-4 {
		return 1.0
	}
	snr := math.Abs(netChange) / sigma
	return math.Max(0.5, math.Min(5.0, snr))
}

// TrajectoryConsistency returns |ΣΔp| / Σ|Δp| across consecutive prices.
// A value of 1.0 means perfectly directional; 0.0 means fully oscillating.
// Falls back to 1.0 when there is at most one step or no movement at all.
func TrajectoryConsistency(history []int64) float64 {
	if len(history) < 2 {
		return 1.0
	}

	var sumSigned, sumAbs float64
	for i := 1; i < len(history); i++ {
		delta := float64(history[i] - history[i-1])
		sumSigned += delta
		sumAbs += math.Abs(delta)
	}
	if sumAbs < 1e-10 {
		return 1.0
	}
	return math.Abs(sumSigned) / sumAbs
}

// CompositeScore multiplies the factors into a single movement strength.
func CompositeScore(netChange, snr, tc float64) float64 {
	return math.Abs(netChange) * snr * tc
}

// AtCap reports whether a step from prev to next landed on the ±20% bound
// of the per-tick price clamp.
func AtCap(prev, next int64) bool {
	if prev <= 0 || next == prev {
		return false
	}
	step := market.MaxStep(prev)
	return next >= prev+step || next <= prev-step
}

// TopMovers analyses every series and returns the k highest-scoring
// movements whose absolute net change is at least minChange, best first.
// k <= 0 returns every qualifying movement. Never returns nil.
func TopMovers(series []Series, k int, minChange float64) []Movement {
	out := make([]Movement, 0, len(series))
	for _, s := range series {
		m := Analyze(s)
		if math.Abs(m.NetChange) < minChange || m.Direction() == "flat" {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Market != out[j].Market {
			return out[i].Market < out[j].Market
		}
		return out[i].Resource < out[j].Resource
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
