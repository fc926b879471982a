package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/rewired-gh/imperium/internal/catalog"
	"github.com/rewired-gh/imperium/internal/logger"
	"github.com/rewired-gh/imperium/internal/market"
	"github.com/rewired-gh/imperium/internal/models"
	"github.com/rewired-gh/imperium/internal/monitor"
)

var (
	catalogPath = flag.String("catalog", "", "Path to a market catalog YAML file (default: built-in catalog)")
	seed        = flag.Int64("seed", 1, "Random seed (0 seeds from the clock)")
	ticks       = flag.Int("ticks", 168, "Number of hourly ticks to simulate")
	topK        = flag.Int("top", 5, "Number of top movers to list")
	logLevel    = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
)

// Listing is the full simulated price path of one resource at one market.
type Listing struct {
	Market   string
	Resource string
	Trend    models.Trend
	Prices   []int64 // Every price, including the seeded one
}

// Report is the outcome of one simulation run.
type Report struct {
	Seed     int64
	Ticks    int
	Start    time.Time
	Listings []Listing
	News     []models.NewsItem // Every item published, in order
	Final    []market.MarketOverview
}

func main() {
	flag.Parse()
	logger.Init(*logLevel, "text")

	cat := catalog.Default()
	if *catalogPath != "" {
		var err error
		cat, err = catalog.Load(*catalogPath)
		if err != nil {
			log.Fatalf("Failed to load catalog: %v", err)
		}
	}
	if *ticks < 1 {
		log.Fatalf("ticks must be at least 1")
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	report := simulate(cat, *seed, *ticks, start)
	printReport(os.Stdout, report, *topK)
}

// simulate runs ticks hourly price updates from a freshly seeded market.
func simulate(cat *catalog.Catalog, seed int64, ticks int, start time.Time) *Report {
	now := start
	engine := market.New(cat, market.Options{
		Clock: func() time.Time { return now },
		Rand:  market.NewSource(seed),
	})
	engine.Initialize(nil)

	r := &Report{Seed: seed, Ticks: ticks, Start: start}
	for _, marketID := range cat.MarketIDs() {
		for _, resource := range cat.ResourceIDs(marketID) {
			listing, _ := cat.Listing(marketID, resource)
			price, _ := engine.Price(marketID, resource)
			r.Listings = append(r.Listings, Listing{
				Market:   marketID,
				Resource: resource,
				Trend:    listing.Trend,
				Prices:   []int64{price},
			})
		}
	}

	for i := 0; i < ticks; i++ {
		news, applied := engine.Tick(now)
		if !applied {
			logger.Warn("tick %d at %s was throttled", i, now.Format(time.RFC3339))
		}
		r.News = append(r.News, news...)
		for j := range r.Listings {
			l := &r.Listings[j]
			price, _ := engine.Price(l.Market, l.Resource)
			l.Prices = append(l.Prices, price)
		}
		now = now.Add(market.DefaultTickInterval)
	}

	r.Final = engine.Overview()
	return r
}

// Movers ranks the listings by movement over the whole run.
func (r *Report) Movers(k int) []monitor.Movement {
	series := make([]monitor.Series, len(r.Listings))
	for i, l := range r.Listings {
		series[i] = monitor.Series{Market: l.Market, Resource: l.Resource, History: l.Prices}
	}
	return monitor.TopMovers(series, k, 0)
}
