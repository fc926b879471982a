// Package market implements the IMPERIUM market engine.
//
// The engine owns one price per (market, resource) pair and advances all of
// them at most once per tick interval (one hour by default) using a
// mean-reverting random walk:
//
//	multiplier = (1 + drift(trend)) × event × reputation × reversion
//	next       = clamp(max(1, round(price × multiplier)), price ± 20%)
//
// Trades are validated against the player ledger before any mutation, so a
// rejected trade never leaves a partial change behind. Trade routes arbitrage
// one resource between two markets on every sweep.
//
// An Engine is safe for concurrent use; every operation runs under one mutex,
// so a tick and a trade never interleave.
package market

import (
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/imperium/internal/catalog"
	"github.com/rewired-gh/imperium/internal/logger"
	"github.com/rewired-gh/imperium/internal/models"
)

const (
	// DefaultTickInterval is the minimum wall-clock time between price updates.
	DefaultTickInterval = time.Hour

	// maxNews is the number of most recent news items retained across all markets.
	maxNews = 10

	goldResource = "gold"
)

var log = logger.Named("market")

// Ledger is the player's resource account the engine debits and credits.
type Ledger interface {
	Balance(resource string) float64
	SetBalance(resource string, amount float64)
	StorageCap(resource string) float64
}

// Store persists the full market state record.
type Store interface {
	SaveMarketState(state *models.MarketState) error
}

// Notifier receives human-facing trade and news events. Implementations must not block.
type Notifier interface {
	TradeExecuted(trade models.TradeRecord)
	NewsPublished(items []models.NewsItem)
}

// Journal records every executed trade.
type Journal interface {
	Append(trade models.TradeRecord) error
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Clock        func() time.Time
	Rand         Source
	Store        Store
	Notifier     Notifier
	Journal      Journal
	AutoSave     bool
	TickInterval time.Duration
}

// Engine is the market price simulation and trade execution engine.
type Engine struct {
	mu sync.Mutex

	catalog *catalog.Catalog
	clock   func() time.Time
	rand    Source
	store   Store
	notify  Notifier
	journal Journal

	autoSave     bool
	tickInterval time.Duration

	prices       map[string]map[string]*models.PriceState
	lastUpdate   time.Time
	tradingSkill int64
	reputation   models.Reputation
	routes       []models.TradeRoute
	news         []models.NewsItem
}

// New creates an engine over the given catalog. Call Initialize before use.
func New(cat *catalog.Catalog, opts Options) *Engine {
	e := &Engine{
		catalog:      cat,
		clock:        opts.Clock,
		rand:         opts.Rand,
		store:        opts.Store,
		notify:       opts.Notifier,
		journal:      opts.Journal,
		autoSave:     opts.AutoSave,
		tickInterval: opts.TickInterval,
		prices:       make(map[string]map[string]*models.PriceState),
		reputation:   models.DefaultReputation(),
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.rand == nil {
		e.rand = NewSource(0)
	}
	if e.tickInterval <= 0 {
		e.tickInterval = DefaultTickInterval
	}
	return e
}

// Initialize restores state from persisted (which may be nil) and seeds a
// price for every catalog listing that has none. Malformed persisted fields
// fall back to defaults; Initialize never fails.
func (e *Engine) Initialize(persisted *models.MarketState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if persisted == nil {
		persisted = &models.MarketState{}
	}

	e.prices = make(map[string]map[string]*models.PriceState)
	seeded := 0
	for _, marketID := range e.catalog.MarketIDs() {
		e.prices[marketID] = make(map[string]*models.PriceState)
		for _, resource := range e.catalog.ResourceIDs(marketID) {
			if ps, ok := restorePrice(persisted, marketID, resource); ok {
				e.prices[marketID][resource] = ps
				continue
			}
			listing, _ := e.catalog.Listing(marketID, resource)
			price := roundPrice(float64(listing.BasePrice) * uniform(e.rand, 0.8, 1.2))
			e.prices[marketID][resource] = &models.PriceState{
				CurrentPrice: price,
				History:      []int64{price},
			}
			seeded++
		}
	}

	e.lastUpdate = persisted.LastMarketUpdate
	e.tradingSkill = persisted.TradingSkill
	if e.tradingSkill < 0 {
		log.Warnf("discarding negative trading skill %d", e.tradingSkill)
		e.tradingSkill = 0
	}

	e.reputation = models.DefaultReputation()
	for _, f := range models.Factions {
		if v, ok := persisted.Reputation[f]; ok {
			e.reputation[f] = models.ClampReputation(v)
		}
	}

	e.routes = nil
	for _, r := range persisted.TradeRoutes {
		if err := r.Validate(); err != nil {
			log.Warnf("discarding trade route %q: %v", r.ID, err)
			continue
		}
		_, fromOK := e.catalog.Listing(r.FromMarket, r.Resource)
		_, toOK := e.catalog.Listing(r.ToMarket, r.Resource)
		if !fromOK || !toOK {
			log.Warnf("discarding trade route %q: unknown market or resource", r.ID)
			continue
		}
		e.routes = append(e.routes, r)
	}

	e.news = nil
	for _, n := range persisted.News {
		if n.Validate() == nil {
			e.news = append(e.news, n)
		}
	}
	e.news = trimNews(e.news)

	log.Infof("initialized %d markets (%d prices seeded, %d routes restored)",
		len(e.prices), seeded, len(e.routes))
}

// restorePrice returns the persisted price state for a listing if it is usable.
// Invalid history entries are dropped and the history is re-bounded.
func restorePrice(s *models.MarketState, marketID, resource string) (*models.PriceState, bool) {
	price, ok := s.MarketPrices[marketID][resource]
	if !ok || price < 1 {
		return nil, false
	}
	var history []int64
	for _, h := range s.PriceHistory[marketID][resource] {
		if h >= 1 {
			history = append(history, h)
		}
	}
	if len(history) == 0 {
		history = []int64{price}
	}
	if over := len(history) - models.MaxHistory; over > 0 {
		history = history[over:]
	}
	return &models.PriceState{CurrentPrice: price, History: append([]int64(nil), history...)}, true
}

// Save persists the full state through the configured Store.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked()
}

func (e *Engine) saveLocked() error {
	if e.store == nil {
		return nil
	}
	return e.store.SaveMarketState(e.stateLocked())
}

// persistLocked saves after a mutation when autosave is enabled. Failures are logged only.
func (e *Engine) persistLocked() {
	if !e.autoSave {
		return
	}
	if err := e.saveLocked(); err != nil {
		log.Errorf("failed to persist market state: %v", err)
	}
}

// State returns a deep copy of the persisted record.
func (e *Engine) State() *models.MarketState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() *models.MarketState {
	s := &models.MarketState{
		MarketPrices:     make(map[string]map[string]int64, len(e.prices)),
		PriceHistory:     make(map[string]map[string][]int64, len(e.prices)),
		LastMarketUpdate: e.lastUpdate,
		TradingSkill:     e.tradingSkill,
		Reputation:       make(models.Reputation, len(e.reputation)),
		TradeRoutes:      append([]models.TradeRoute(nil), e.routes...),
		News:             append([]models.NewsItem(nil), e.news...),
	}
	for marketID, resources := range e.prices {
		s.MarketPrices[marketID] = make(map[string]int64, len(resources))
		s.PriceHistory[marketID] = make(map[string][]int64, len(resources))
		for resource, ps := range resources {
			s.MarketPrices[marketID][resource] = ps.CurrentPrice
			s.PriceHistory[marketID][resource] = append([]int64(nil), ps.History...)
		}
	}
	for f, v := range e.reputation {
		s.Reputation[f] = v
	}
	return s
}

// Price returns the current price of resource at market.
func (e *Engine) Price(marketID, resource string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps, ok := e.priceState(marketID, resource)
	if !ok {
		return 0, false
	}
	return ps.CurrentPrice, true
}

// History returns a copy of the price history of resource at market, oldest first.
func (e *Engine) History(marketID, resource string) []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps, ok := e.priceState(marketID, resource)
	if !ok {
		return nil
	}
	return append([]int64(nil), ps.History...)
}

// News returns the retained news items, oldest first.
func (e *Engine) News() []models.NewsItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.NewsItem(nil), e.news...)
}

// TradingSkill returns the player's trading skill.
func (e *Engine) TradingSkill() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tradingSkill
}

// Reputation returns a copy of the player's faction standings.
func (e *Engine) Reputation() models.Reputation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(models.Reputation, len(e.reputation))
	for f, v := range e.reputation {
		out[f] = v
	}
	return out
}

// LastUpdate returns the time of the last applied price tick (zero if none).
func (e *Engine) LastUpdate() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUpdate
}

// Catalog returns the market definitions the engine trades.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

func (e *Engine) priceState(marketID, resource string) (*models.PriceState, bool) {
	ps, ok := e.prices[marketID][resource]
	return ps, ok
}

// Quote summarises one resource at one market.
type Quote struct {
	Resource      string
	Price         int64
	BasePrice     int64
	Trend         models.Trend // Fixed definition trend
	Signal        models.Trend // Classified from recent history
	ChangePercent float64      // Last step, signed
}

// MarketOverview summarises a market.
type MarketOverview struct {
	ID       string
	Name     string
	Location string
	Quotes   []Quote
}

// Overview returns a summary of every market, sorted by market and resource id.
func (e *Engine) Overview() []MarketOverview {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []MarketOverview
	for _, marketID := range e.catalog.MarketIDs() {
		def, _ := e.catalog.Market(marketID)
		mo := MarketOverview{ID: def.ID, Name: def.Name, Location: def.Location}
		for _, resource := range e.catalog.ResourceIDs(marketID) {
			ps, ok := e.priceState(marketID, resource)
			if !ok {
				continue
			}
			listing := def.Resources[resource]
			mo.Quotes = append(mo.Quotes, Quote{
				Resource:      resource,
				Price:         ps.CurrentPrice,
				BasePrice:     listing.BasePrice,
				Trend:         listing.Trend,
				Signal:        CalculateTrend(ps.History),
				ChangePercent: lastChange(ps.History) * 100,
			})
		}
		out = append(out, mo)
	}
	return out
}

// TradeRoutes returns a copy of all trade routes, in creation order.
func (e *Engine) TradeRoutes() []models.TradeRoute {
	e.mu.Lock()
	defer e.mu.Unlock()
	routes := append([]models.TradeRoute(nil), e.routes...)
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].CreatedAt.Before(routes[j].CreatedAt)
	})
	return routes
}
