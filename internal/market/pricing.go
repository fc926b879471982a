package market

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/imperium/internal/catalog"
	"github.com/rewired-gh/imperium/internal/models"
)

const (
	// maxMovePerTick bounds a single tick's price change to ±20% of the pre-tick price.
	maxMovePerTick = 0.20

	randomEventChance = 0.10

	// newsThreshold is the minimum single-step move (fraction) that makes the news.
	newsThreshold = 0.10

	merchantDiscountStanding = 70
)

// Tick advances every price once if at least one tick interval has passed
// since the last applied tick. The first tick always applies. It returns the
// news generated by the tick and whether the tick was applied.
func (e *Engine) Tick(now time.Time) ([]models.NewsItem, bool) {
	e.mu.Lock()

	if !e.lastUpdate.IsZero() && now.Sub(e.lastUpdate) < e.tickInterval {
		e.mu.Unlock()
		return nil, false
	}

	capped := 0
	for _, marketID := range e.catalog.MarketIDs() {
		for _, resource := range e.catalog.ResourceIDs(marketID) {
			ps, ok := e.priceState(marketID, resource)
			if !ok {
				continue
			}
			listing, _ := e.catalog.Listing(marketID, resource)
			next, wasCapped := e.nextPrice(resource, listing, ps.CurrentPrice)
			if wasCapped {
				capped++
			}
			ps.CurrentPrice = next
			ps.Push(next)
		}
	}

	items := GenerateNews(e.catalog, e.prices, now)
	e.news = trimNews(append(e.news, items...))
	e.lastUpdate = now

	log.Debugf("price tick applied at %s (%d moves capped, %d news items)",
		now.Format(time.RFC3339), capped, len(items))

	e.persistLocked()
	e.mu.Unlock()

	if e.notify != nil && len(items) > 0 {
		e.notify.NewsPublished(append([]models.NewsItem(nil), items...))
	}
	return items, true
}

// nextPrice computes one resource's post-tick price. The random draws happen in
// a fixed order (drift, event chance, event size) so a seeded Source reproduces ticks.
func (e *Engine) nextPrice(resource string, listing models.ResourceListing, current int64) (int64, bool) {
	multiplier := 1 + e.drift(listing.Trend)

	if e.rand.Float64() < randomEventChance {
		multiplier *= uniform(e.rand, 0.8, 1.2)
	}

	if resource == goldResource && e.reputation[models.FactionMerchants] > merchantDiscountStanding {
		multiplier *= 0.95
	}

	cur := float64(current)
	base := float64(listing.BasePrice)
	if cur > 2*base {
		multiplier *= 0.9
	} else if cur < 0.5*base {
		multiplier *= 1.1
	}

	raw := roundPrice(cur * multiplier)
	next := clampMove(current, raw)
	return next, next != raw
}

func (e *Engine) drift(trend models.Trend) float64 {
	switch trend {
	case models.TrendBullish:
		return uniform(e.rand, 0.02, 0.05)
	case models.TrendBearish:
		return -uniform(e.rand, 0.02, 0.05)
	case models.TrendVolatile:
		return uniform(e.rand, -0.05, 0.05)
	default:
		return uniform(e.rand, -0.01, 0.01)
	}
}

// MaxStep returns the largest price change a single tick may apply to a
// price of before: 20% rounded to whole gold, and never less than 1 so cheap
// listings can still move.
func MaxStep(before int64) int64 {
	step := int64(math.Round(maxMovePerTick * float64(before)))
	if step < 1 {
		step = 1
	}
	return step
}

// clampMove limits next to within MaxStep of before. The floor of 1 still holds.
func clampMove(before, next int64) int64 {
	step := MaxStep(before)
	switch {
	case next > before+step:
		next = before + step
	case next < before-step:
		next = before - step
	}
	if next < 1 {
		next = 1
	}
	return next
}

func roundPrice(v float64) int64 {
	p := int64(math.Round(v))
	if p < 1 {
		return 1
	}
	return p
}

// lastChange returns the fractional change between the last two history entries.
func lastChange(history []int64) float64 {
	if len(history) < 2 {
		return 0
	}
	prev := history[len(history)-2]
	return float64(history[len(history)-1]-prev) / float64(prev)
}

// CalculateTrend classifies recent movement. It compares the mean of the last
// three prices with the first of them: above +5% is bullish, below -5% is
// bearish, anything else (including fewer than three points) is stable.
func CalculateTrend(history []int64) models.Trend {
	if len(history) < 3 {
		return models.TrendStable
	}
	recent := history[len(history)-3:]
	first := float64(recent[0])
	if first <= 0 {
		return models.TrendStable
	}
	avg := float64(recent[0]+recent[1]+recent[2]) / 3
	change := (avg - first) / first
	switch {
	case change > 0.05:
		return models.TrendBullish
	case change < -0.05:
		return models.TrendBearish
	default:
		return models.TrendStable
	}
}

// GenerateNews emits one item per (market, resource) whose last step moved by
// more than 10%. Items are ordered by market id, then resource id.
func GenerateNews(cat *catalog.Catalog, prices map[string]map[string]*models.PriceState, now time.Time) []models.NewsItem {
	var items []models.NewsItem
	for _, marketID := range cat.MarketIDs() {
		def, _ := cat.Market(marketID)
		for _, resource := range cat.ResourceIDs(marketID) {
			ps, ok := prices[marketID][resource]
			if !ok || len(ps.History) < 2 {
				continue
			}
			change := lastChange(ps.History)
			if math.Abs(change) <= newsThreshold {
				continue
			}
			pct := int(math.Round(change * 100))
			price := ps.History[len(ps.History)-1]
			headline, description := newsCopy(def, resource, pct, price)
			items = append(items, models.NewsItem{
				ID:            uuid.NewString(),
				Market:        marketID,
				Resource:      resource,
				PercentChange: pct,
				Price:         price,
				Headline:      headline,
				Description:   description,
				PublishedAt:   now,
			})
		}
	}
	return items
}

func newsCopy(def models.MarketDef, resource string, pct int, price int64) (string, string) {
	name := displayName(resource)
	where := def.Location
	if where == "" {
		where = def.Name
	}
	if pct > 0 {
		return fmt.Sprintf("%s prices soar in %s", name, where),
			fmt.Sprintf("Traders at %s report %s up %d%% to %d gold as demand outstrips supply.", def.Name, strings.ToLower(name), pct, price)
	}
	return fmt.Sprintf("%s prices collapse in %s", name, where),
		fmt.Sprintf("A glut at %s drives %s down %d%% to %d gold.", def.Name, strings.ToLower(name), -pct, price)
}

// displayName turns a resource id such as "exotic_goods" into "Exotic goods".
func displayName(resource string) string {
	s := strings.ReplaceAll(resource, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func trimNews(items []models.NewsItem) []models.NewsItem {
	if over := len(items) - maxNews; over > 0 {
		items = append([]models.NewsItem(nil), items[over:]...)
	}
	return items
}
