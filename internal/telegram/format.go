package telegram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rewired-gh/imperium/internal/ledger"
	"github.com/rewired-gh/imperium/internal/market"
	"github.com/rewired-gh/imperium/internal/models"
	"github.com/rewired-gh/imperium/internal/monitor"
)

func formatTrade(t models.TradeRecord) string {
	verb, emoji := "Bought", "🛒"
	if t.Side == models.SideSell {
		verb, emoji = "Sold", "💰"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s %d %s* at %s\n", emoji, verb, t.Quantity,
		escapeMarkdownV2(t.Resource), escapeMarkdownV2(t.Market))
	fmt.Fprintf(&b, "   Price: %d", t.UnitPrice)
	if t.PriceAfter != t.UnitPrice {
		fmt.Fprintf(&b, " → %d", t.PriceAfter)
	}
	fmt.Fprintf(&b, "\n   Value: *%d* gold\n", t.Value)
	if t.RouteID != "" {
		fmt.Fprintf(&b, "   Route: `%s`\n", t.RouteID)
	}
	return b.String()
}

func formatNewsDigest(items []models.NewsItem) string {
	var b strings.Builder
	b.WriteString("📰 *Market News*\n\n")
	if len(items) > 0 {
		date := escapeMarkdownV2(items[0].PublishedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(&b, "📅 %s\n\n", date)
	}
	writeNews(&b, items)
	return b.String()
}

func formatNewsList(items []models.NewsItem) string {
	if len(items) == 0 {
		return escapeMarkdownV2("No market news yet.")
	}
	var b strings.Builder
	b.WriteString("📰 *Recent News*\n\n")
	// Newest first.
	reversed := make([]models.NewsItem, len(items))
	for i, it := range items {
		reversed[len(items)-1-i] = it
	}
	writeNews(&b, reversed)
	return b.String()
}

func writeNews(b *strings.Builder, items []models.NewsItem) {
	for i, it := range items {
		emoji := "📈"
		if it.Direction() == "decrease" {
			emoji = "📉"
		}
		pct := escapeMarkdownV2(fmt.Sprintf("%+d%%", it.PercentChange))
		fmt.Fprintf(b, "%d\\. %s *%s*\n", i+1, emoji, escapeMarkdownV2(it.Headline))
		fmt.Fprintf(b, "   %s, now %d\n", pct, it.Price)
		if it.Description != "" {
			fmt.Fprintf(b, "   _%s_\n", escapeMarkdownV2(it.Description))
		}
		b.WriteString("\n")
	}
}

func formatSweep(r market.SweepResult) string {
	var b strings.Builder
	b.WriteString("🚢 *Trade Route Sweep*\n\n")
	fmt.Fprintf(&b, "   Routes: %d considered, %d executed, %d failed\n", r.Considered, r.Executed, r.Failed)
	fmt.Fprintf(&b, "   Profit: *%s* gold\n", escapeMarkdownV2(fmt.Sprintf("%+d", r.Profit)))
	return b.String()
}

// formatPrices lists every market, or only the one whose id or name matches filter.
func formatPrices(overview []market.MarketOverview, filter string) string {
	var b strings.Builder
	b.WriteString("🏛 *Market Prices*\n\n")
	shown := 0
	for _, m := range overview {
		if filter != "" && !strings.EqualFold(filter, m.ID) && !strings.EqualFold(filter, m.Name) {
			continue
		}
		shown++
		fmt.Fprintf(&b, "*%s*", escapeMarkdownV2(m.Name))
		if m.Location != "" {
			fmt.Fprintf(&b, " \\(%s\\)", escapeMarkdownV2(m.Location))
		}
		b.WriteString("\n")
		for _, q := range m.Quotes {
			change := escapeMarkdownV2(fmt.Sprintf("%+.1f%%", q.ChangePercent))
			fmt.Fprintf(&b, "   %s %s: *%d* %s\n", trendEmoji(q.Signal), escapeMarkdownV2(q.Resource), q.Price, change)
		}
		b.WriteString("\n")
	}
	if shown == 0 {
		return escapeMarkdownV2(fmt.Sprintf("Unknown market %q.", filter))
	}
	return b.String()
}

func formatMovers(movers []monitor.Movement) string {
	if len(movers) == 0 {
		return escapeMarkdownV2("No significant price movement in the last day.")
	}
	var b strings.Builder
	b.WriteString("🔥 *Top Movers*\n\n")
	for i, m := range movers {
		emoji := "📈"
		if m.Direction() == "decrease" {
			emoji = "📉"
		}
		change := escapeMarkdownV2(fmt.Sprintf("%+.1f%%", m.NetChange*100))
		fmt.Fprintf(&b, "%d\\. %s %s at %s: *%s* \\(%d → %d\\)\n", i+1, emoji,
			escapeMarkdownV2(m.Resource), escapeMarkdownV2(m.Market), change, m.First, m.Last)
	}
	return b.String()
}

func formatRoutes(routes []models.TradeRoute) string {
	if len(routes) == 0 {
		return escapeMarkdownV2("No trade routes.")
	}
	var b strings.Builder
	b.WriteString("🚢 *Trade Routes*\n\n")
	for i, r := range routes {
		status := "active"
		if !r.Active {
			status = "paused"
		}
		fmt.Fprintf(&b, "%d\\. %s: %s → %s \\(%s\\)\n", i+1,
			escapeMarkdownV2(r.Resource), escapeMarkdownV2(r.FromMarket), escapeMarkdownV2(r.ToMarket), status)
		fmt.Fprintf(&b, "   Trades: %d, profit: %s\n", r.Trades, escapeMarkdownV2(fmt.Sprintf("%+d", r.Profit)))
	}
	return b.String()
}

var rejectionText = map[market.Reason]string{
	market.ReasonUnknownMarketOrResource: "unknown market or resource",
	market.ReasonInsufficientFunds:       "not enough gold",
	market.ReasonInsufficientResource:    "not enough of that resource to sell",
	market.ReasonStorageExceeded:         "storage capacity exceeded",
	market.ReasonUnprofitableRoute:       "the destination does not pay more than the source",
	market.ReasonMarginTooLow:            "margin is below 10%",
	market.ReasonInvalidOrder:            "quantity must be positive and side buy or sell",
	market.ReasonUnknownRoute:            "no route with that id",
}

func formatRejection(err error) string {
	reason := market.ReasonOf(err)
	if reason == "" {
		return "⚠️ " + escapeMarkdownV2(err.Error())
	}
	return fmt.Sprintf("❌ *Rejected* \\(%s\\): %s", reason, escapeMarkdownV2(rejectionText[reason]))
}

func formatFill(res market.TradeResult, w Wallet) string {
	t := res.Trade
	verb := "Bought"
	if t.Side == models.SideSell {
		verb = "Sold"
	}
	return fmt.Sprintf("✅ %s %d %s at %s for *%d* gold\n   Holding: %s %s, %s gold\n",
		verb, t.Quantity, escapeMarkdownV2(t.Resource), escapeMarkdownV2(t.Market), res.Value,
		formatAmount(w.Balance(t.Resource)), escapeMarkdownV2(t.Resource), formatAmount(w.Balance(ledger.Gold)))
}

func formatCheck(side models.Side, marketID, resource string, qty, price int64) string {
	return fmt.Sprintf("✅ %s %d %s at %s would be accepted at *%d* gold each",
		side, qty, escapeMarkdownV2(resource), escapeMarkdownV2(marketID), price)
}

func formatRouteOpened(r models.TradeRoute, cost int64) string {
	return fmt.Sprintf("🚢 *Route opened*: %s %s → %s\n   Id: `%s`\n   Setup cost: *%d* gold\n",
		escapeMarkdownV2(r.Resource), escapeMarkdownV2(r.FromMarket), escapeMarkdownV2(r.ToMarket), r.ID, cost)
}

func formatRouteToggled(id string, active bool) string {
	status := "paused"
	if active {
		status = "resumed"
	}
	return fmt.Sprintf("🚢 Route `%s` %s", id, status)
}

func formatBalances(balances map[string]float64) string {
	if len(balances) == 0 {
		return escapeMarkdownV2("The ledger is empty.")
	}
	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("💼 *Ledger*\n\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "   %s: *%s*\n", escapeMarkdownV2(id), formatAmount(balances[id]))
	}
	return b.String()
}

func formatAmount(v float64) string {
	return escapeMarkdownV2(fmt.Sprintf("%.0f", v))
}

func usage(text string) string {
	return escapeMarkdownV2("Usage: " + text)
}

func formatError(err error) string {
	return fmt.Sprintf("⚠️ *Market daemon error*\n\n%s", escapeMarkdownV2(err.Error()))
}

func formatRecovery(failures int) string {
	return fmt.Sprintf("✅ *Market daemon recovered* after %d consecutive failure%s",
		failures, plural(failures))
}

func trendEmoji(t models.Trend) string {
	switch t {
	case models.TrendBullish:
		return "📈"
	case models.TrendBearish:
		return "📉"
	default:
		return "➖"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
