package market

import (
	"math"

	"github.com/google/uuid"

	"github.com/rewired-gh/imperium/internal/models"
)

const (
	routeBaseCost     = 5000
	routeCostPerRoute = 2000

	// minRouteMargin is the margin (sell-buy)/buy required to open a route.
	minRouteMargin = 0.10

	// sweepMargin is the destination/source price ratio a route needs to trade on a sweep.
	sweepMargin = 1.1

	maxRouteQuantity = 100
)

// RouteSetupCost returns the gold needed to open a route given the number of existing routes.
func RouteSetupCost(existing int) int64 {
	return routeBaseCost + routeCostPerRoute*int64(existing)
}

// CreateTradeRoute opens a route buying resource at from and selling it at to.
// The setup cost is debited from the ledger's gold.
func (e *Engine) CreateTradeRoute(from, to, resource string, l Ledger) (models.TradeRoute, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	buy, okFrom := e.priceState(from, resource)
	sell, okTo := e.priceState(to, resource)
	if !okFrom || !okTo {
		return models.TradeRoute{}, ErrUnknownMarketOrResource
	}
	buyPrice, sellPrice := buy.CurrentPrice, sell.CurrentPrice
	if sellPrice <= buyPrice {
		return models.TradeRoute{}, ErrUnprofitableRoute
	}
	if float64(sellPrice-buyPrice)/float64(buyPrice) < minRouteMargin {
		return models.TradeRoute{}, ErrMarginTooLow
	}
	cost := RouteSetupCost(len(e.routes))
	if l.Balance(goldResource) < float64(cost) {
		return models.TradeRoute{}, ErrInsufficientFunds
	}

	l.SetBalance(goldResource, l.Balance(goldResource)-float64(cost))
	route := models.TradeRoute{
		ID:         uuid.NewString(),
		FromMarket: from,
		ToMarket:   to,
		Resource:   resource,
		CreatedAt:  e.clock(),
		Active:     true,
	}
	e.routes = append(e.routes, route)
	log.Infof("trade route %s opened: %s %s -> %s for %d gold", route.ID, resource, from, to, cost)

	e.persistLocked()
	return route, nil
}

// SetRouteActive activates or deactivates a route.
func (e *Engine) SetRouteActive(id string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.routes {
		if e.routes[i].ID == id {
			e.routes[i].Active = active
			e.persistLocked()
			return nil
		}
	}
	return ErrUnknownRoute
}

// ActivateTradeRoute resumes sweeping route id.
func (e *Engine) ActivateTradeRoute(id string) error { return e.SetRouteActive(id, true) }

// DeactivateTradeRoute stops sweeping route id without deleting it.
func (e *Engine) DeactivateTradeRoute(id string) error { return e.SetRouteActive(id, false) }

// SweepResult summarises one trade-route sweep.
type SweepResult struct {
	Considered int   // Active routes examined
	Executed   int   // Routes that completed both legs
	Failed     int   // Routes where a leg was rejected
	Profit     int64 // Sum of (sell - buy) over executed routes
}

// RunTradeRoutes lets each active route buy at its source and sell at its
// destination when the destination pays more than 110% of the source price.
// Each route buys at most 100 units, limited by available gold.
//
// The two legs are independent trades: when the buy succeeds and the sell is
// rejected the purchase stands and no profit is recorded for the route.
func (e *Engine) RunTradeRoutes(l Ledger) SweepResult {
	e.mu.Lock()

	var (
		result SweepResult
		trades []models.TradeRecord
	)
	for i := range e.routes {
		route := &e.routes[i]
		if !route.Active {
			continue
		}
		result.Considered++

		src, okFrom := e.priceState(route.FromMarket, route.Resource)
		dst, okTo := e.priceState(route.ToMarket, route.Resource)
		if !okFrom || !okTo {
			continue
		}
		if float64(dst.CurrentPrice) <= sweepMargin*float64(src.CurrentPrice) {
			continue
		}

		quantity := int64(math.Floor(l.Balance(goldResource) / float64(src.CurrentPrice)))
		if quantity > maxRouteQuantity {
			quantity = maxRouteQuantity
		}
		if quantity <= 0 {
			continue
		}

		bought, err := e.executeTradeLocked(route.FromMarket, route.Resource, models.SideBuy, quantity, l, route.ID)
		if err != nil {
			log.Debugf("route %s buy leg rejected: %v", route.ID, err)
			result.Failed++
			continue
		}
		trades = append(trades, bought.Trade)

		sold, err := e.executeTradeLocked(route.ToMarket, route.Resource, models.SideSell, quantity, l, route.ID)
		if err != nil {
			log.Warnf("route %s sell leg rejected after buy: %v", route.ID, err)
			result.Failed++
			continue
		}
		trades = append(trades, sold.Trade)

		profit := sold.Value - bought.Value
		route.Profit += profit
		route.Trades++
		result.Executed++
		result.Profit += profit
	}

	if len(trades) > 0 {
		e.persistLocked()
	}
	e.mu.Unlock()

	if result.Considered > 0 {
		log.Infof("trade route sweep: %d considered, %d executed, %d failed, profit %d",
			result.Considered, result.Executed, result.Failed, result.Profit)
	}
	if e.notify != nil {
		for _, t := range trades {
			e.notify.TradeExecuted(t)
		}
	}
	return result
}
