package market

import (
	"math"

	"github.com/google/uuid"

	"github.com/rewired-gh/imperium/internal/models"
)

const (
	// largeTradeQuantity is the size above which a trade moves the market price.
	largeTradeQuantity = 1000

	skillStep = 0.001
)

// TradeResult describes an executed trade.
type TradeResult struct {
	Trade models.TradeRecord
	Value int64 // Gold paid (buy) or received (sell)
	Price int64 // Market price after the trade
}

// CanTrade reports whether a trade would be accepted, without changing anything.
// It returns nil when the trade is valid, otherwise a *RejectionError.
func (e *Engine) CanTrade(marketID, resource string, side models.Side, quantity int64, l Ledger) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canTradeLocked(marketID, resource, side, quantity, l)
}

func (e *Engine) canTradeLocked(marketID, resource string, side models.Side, quantity int64, l Ledger) error {
	ps, ok := e.priceState(marketID, resource)
	if !ok {
		return ErrUnknownMarketOrResource
	}
	if quantity <= 0 || !side.Valid() {
		return ErrInvalidOrder
	}

	q := float64(quantity)
	switch side {
	case models.SideBuy:
		if l.Balance(goldResource) < float64(ps.CurrentPrice)*q {
			return ErrInsufficientFunds
		}
		if l.Balance(resource)+q > l.StorageCap(resource) {
			return ErrStorageExceeded
		}
	case models.SideSell:
		if l.Balance(resource) < q {
			return ErrInsufficientResource
		}
	}
	return nil
}

// ExecuteTrade buys or sells quantity of resource at market against the ledger.
// The trade is validated first and rejected without any mutation when invalid.
func (e *Engine) ExecuteTrade(marketID, resource string, side models.Side, quantity int64, l Ledger) (TradeResult, error) {
	e.mu.Lock()
	res, err := e.executeTradeLocked(marketID, resource, side, quantity, l, "")
	if err == nil {
		e.persistLocked()
	}
	e.mu.Unlock()

	if err != nil {
		log.Debugf("trade rejected: %s %d %s at %s: %v", side, quantity, resource, marketID, err)
		return TradeResult{}, err
	}
	if e.notify != nil {
		e.notify.TradeExecuted(res.Trade)
	}
	return res, nil
}

func (e *Engine) executeTradeLocked(marketID, resource string, side models.Side, quantity int64, l Ledger, routeID string) (TradeResult, error) {
	if err := e.canTradeLocked(marketID, resource, side, quantity, l); err != nil {
		return TradeResult{}, err
	}

	ps, _ := e.priceState(marketID, resource)
	unitPrice := ps.CurrentPrice
	gross := float64(unitPrice) * float64(quantity)
	skillModifier := 1 + float64(e.tradingSkill)*skillStep
	q := float64(quantity)

	var value int64
	switch side {
	case models.SideBuy:
		value = int64(math.Round(gross / skillModifier))
		l.SetBalance(goldResource, l.Balance(goldResource)-float64(value))
		l.SetBalance(resource, l.Balance(resource)+q)
	case models.SideSell:
		value = int64(math.Round(gross * skillModifier))
		l.SetBalance(resource, l.Balance(resource)-q)
		l.SetBalance(goldResource, l.Balance(goldResource)+float64(value))
	}

	gain := quantity / 10
	if gain < 1 {
		gain = 1
	}
	e.tradingSkill += gain
	e.reputation.Adjust(models.FactionMerchants, 1)

	if quantity > largeTradeQuantity {
		ps.CurrentPrice = impactPrice(ps.CurrentPrice, side)
	}

	rec := models.TradeRecord{
		ID:         uuid.NewString(),
		Market:     marketID,
		Resource:   resource,
		Side:       side,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Value:      value,
		PriceAfter: ps.CurrentPrice,
		RouteID:    routeID,
		ExecutedAt: e.clock(),
	}
	if e.journal != nil {
		if err := e.journal.Append(rec); err != nil {
			log.Warnf("failed to journal trade %s: %v", rec.ID, err)
		}
	}

	log.Infof("%s %d %s at %s for %d gold (skill %d)", side, quantity, resource, marketID, value, e.tradingSkill)
	return TradeResult{Trade: rec, Value: value, Price: ps.CurrentPrice}, nil
}

// impactPrice nudges price 1% towards the trade's side, by at least one gold.
func impactPrice(price int64, side models.Side) int64 {
	if side == models.SideBuy {
		next := roundPrice(float64(price) * 1.01)
		if next <= price {
			next = price + 1
		}
		return next
	}
	next := roundPrice(float64(price) * 0.99)
	if next >= price {
		next = price - 1
	}
	if next < 1 {
		next = 1
	}
	return next
}
