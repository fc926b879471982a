package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rewired-gh/imperium/internal/market"
	"github.com/rewired-gh/imperium/internal/monitor"
)

// printReport writes the human-readable simulation report
func printReport(w io.Writer, r *Report, topK int) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "MARKET SIMULATION: %d hourly ticks from %s (seed %d)\n",
		r.Ticks, r.Start.Format("2006-01-02 15:04"), r.Seed)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	printListings(w, r)
	printMovers(w, r.Movers(topK))
	printNewsSummary(w, r)
}

// printListings displays per-resource price statistics, grouped by market
func printListings(w io.Writer, r *Report) {
	names := make(map[string]string, len(r.Final))
	signals := make(map[string]market.Quote)
	for _, m := range r.Final {
		names[m.ID] = m.Name
		for _, q := range m.Quotes {
			signals[m.ID+"/"+q.Resource] = q
		}
	}

	current := ""
	for _, l := range r.Listings {
		if l.Market != current {
			current = l.Market
			fmt.Fprintf(w, "\n  Market: %s (%s)\n", names[l.Market], l.Market)
			fmt.Fprintf(w, "    %-14s %-9s %7s %7s %7s %7s %8s %7s %6s\n",
				"resource", "trend", "start", "final", "min", "max", "change", "signal", "capped")
		}
		m := monitor.Analyze(monitor.Series{Market: l.Market, Resource: l.Resource, History: l.Prices})
		q := signals[l.Market+"/"+l.Resource]
		fmt.Fprintf(w, "    %-14s %-9s %7d %7d %7d %7d %+7.1f%% %7s %6d\n",
			l.Resource, l.Trend, m.First, m.Last, m.Min, m.Max, m.NetChange*100, q.Signal, m.CappedMoves)
	}
}

// printMovers displays the listings with the strongest directional movement
func printMovers(w io.Writer, movers []monitor.Movement) {
	fmt.Fprintln(w, "\nTOP MOVERS:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	if len(movers) == 0 {
		fmt.Fprintln(w, "  No movement")
		return
	}
	for i, m := range movers {
		direction := "↑"
		if m.Direction() == "decrease" {
			direction = "↓"
		}
		fmt.Fprintf(w, "  %d. %s %+.1f%% | %s at %s | vol %.3f | snr %.2f | tc %.2f | score %.3f\n",
			i+1, direction, m.NetChange*100, m.Resource, m.Market, m.Volatility, m.SNR, m.Consistency, m.Score)
	}
}

// printNewsSummary displays how many headlines the run produced
func printNewsSummary(w io.Writer, r *Report) {
	fmt.Fprintln(w, "\nNEWS:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	rises, falls := 0, 0
	for _, n := range r.News {
		if n.Direction() == "decrease" {
			falls++
		} else {
			rises++
		}
	}
	fmt.Fprintf(w, "  Published: %d (%d rises, %d falls)\n", len(r.News), rises, falls)

	const shown = 5
	start := len(r.News) - shown
	if start < 0 {
		start = 0
	}
	for _, n := range r.News[start:] {
		fmt.Fprintf(w, "  %s  %+4d%%  %s\n", n.PublishedAt.Format("01-02 15:04"), n.PercentChange, n.Headline)
	}
}
