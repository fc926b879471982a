package main

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/imperium/internal/catalog"
	"github.com/rewired-gh/imperium/internal/market"
	"github.com/rewired-gh/imperium/internal/models"
)

var simStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSimulateDeterministic(t *testing.T) {
	cat := catalog.Default()
	a := simulate(cat, 99, 48, simStart)
	b := simulate(cat, 99, 48, simStart)

	if len(a.Listings) != len(b.Listings) {
		t.Fatalf("listing counts differ: %d vs %d", len(a.Listings), len(b.Listings))
	}
	for i := range a.Listings {
		if !reflect.DeepEqual(a.Listings[i].Prices, b.Listings[i].Prices) {
			t.Errorf("%s/%s diverged under the same seed", a.Listings[i].Market, a.Listings[i].Resource)
		}
	}
	if len(a.News) != len(b.News) {
		t.Errorf("news counts differ: %d vs %d", len(a.News), len(b.News))
	}
}

func TestSimulateRespectsPriceBounds(t *testing.T) {
	r := simulate(catalog.Default(), 7, 200, simStart)

	for _, l := range r.Listings {
		if len(l.Prices) != 201 {
			t.Fatalf("%s/%s: expected 201 prices, got %d", l.Market, l.Resource, len(l.Prices))
		}
		for i := 1; i < len(l.Prices); i++ {
			prev, cur := l.Prices[i-1], l.Prices[i]
			if cur < 1 {
				t.Fatalf("%s/%s step %d below floor: %d", l.Market, l.Resource, i, cur)
			}
			if math.Abs(float64(cur-prev)) > float64(market.MaxStep(prev)) {
				t.Fatalf("%s/%s step %d moved %d -> %d", l.Market, l.Resource, i, prev, cur)
			}
		}
	}
	for _, n := range r.News {
		if n.PercentChange > -10 && n.PercentChange < 10 {
			t.Errorf("news for a move under 10%%: %+v", n)
		}
	}
}

func TestPrintReport(t *testing.T) {
	cat, err := catalog.New([]models.MarketDef{{
		ID: "forum", Name: "Forum", Location: "Roma",
		Resources: map[string]models.ResourceListing{
			"marble": {BasePrice: 20, Trend: models.TrendBullish},
			"wood":   {BasePrice: 8, Trend: models.TrendStable},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	r := simulate(cat, 3, 24, simStart)

	var buf bytes.Buffer
	printReport(&buf, r, 2)
	out := buf.String()

	for _, want := range []string{
		"24 hourly ticks from 2026-01-01 00:00 (seed 3)",
		"Market: Forum (forum)",
		"marble",
		"bullish",
		"TOP MOVERS:",
		"Published:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
