package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/imperium/internal/catalog"
	"github.com/rewired-gh/imperium/internal/ledger"
	"github.com/rewired-gh/imperium/internal/market"
	"github.com/rewired-gh/imperium/internal/models"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int // Fail this many sends before succeeding
	sent     []tgbotapi.MessageConfig
	calls    int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

type fakeView struct {
	overview  []market.MarketOverview
	histories map[string][]int64 // keyed by "market/resource"
	news      []models.NewsItem
	routes    []models.TradeRoute
}

func (v fakeView) Overview() []market.MarketOverview { return v.overview }
func (v fakeView) News() []models.NewsItem           { return v.news }
func (v fakeView) TradeRoutes() []models.TradeRoute  { return v.routes }

func (v fakeView) History(marketID, resource string) []int64 {
	return v.histories[marketID+"/"+resource]
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"1.5%", "1\\.5%"},
		{"rome_forum", "rome\\_forum"},
		{"(+20)", "\\(\\+20\\)"},
		{"a-b!", "a\\-b\\!"},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendRetriesWithBackoff(t *testing.T) {
	fake := &fakeSender{failures: 2}
	c := newClient(fake, 42, 3, time.Millisecond, 1000)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if fake.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fake.calls)
	}
	msgs := fake.messages()
	if len(msgs) != 1 || msgs[0].ChatID != 42 || msgs[0].ParseMode != tgbotapi.ModeMarkdownV2 {
		t.Errorf("unexpected sent messages %+v", msgs)
	}
}

func TestSendGivesUp(t *testing.T) {
	fake := &fakeSender{failures: 10}
	c := newClient(fake, 42, 2, time.Millisecond, 1000)

	err := c.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "after 2 retries") {
		t.Fatalf("expected retry exhaustion error, got %v", err)
	}
}

func TestRunDrainsQueue(t *testing.T) {
	fake := &fakeSender{}
	c := newClient(fake, 42, 1, time.Millisecond, 1000)

	c.TradeExecuted(models.TradeRecord{
		ID: "t1", Market: "rome_forum", Resource: "marble", Side: models.SideBuy,
		Quantity: 5, UnitPrice: 20, Value: 100, PriceAfter: 20,
	})
	// Empty digests and idle sweeps are not sent.
	c.NewsPublished(nil)
	c.SweepCompleted(market.SweepResult{})
	c.SweepCompleted(market.SweepResult{Considered: 1, Executed: 1, Profit: 300})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(fake.messages()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out, delivered %d messages", len(fake.messages()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	msgs := fake.messages()
	if !strings.Contains(msgs[0].Text, "Bought 5 marble") {
		t.Errorf("unexpected trade message %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[1].Text, "\\+300") {
		t.Errorf("unexpected sweep message %q", msgs[1].Text)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	c := newClient(&fakeSender{}, 42, 1, time.Millisecond, 1000)
	for i := 0; i < defaultQueueSize+5; i++ {
		c.TradeExecuted(models.TradeRecord{Side: models.SideSell})
	}
	if len(c.queue) != defaultQueueSize {
		t.Errorf("expected queue capped at %d, got %d", defaultQueueSize, len(c.queue))
	}
}

func TestFormatTrade(t *testing.T) {
	msg := formatTrade(models.TradeRecord{
		Market: "alexandria_emporium", Resource: "ivory", Side: models.SideSell,
		Quantity: 1500, UnitPrice: 80, PriceAfter: 79, Value: 121200, RouteID: "r-1",
	})
	for _, want := range []string{"Sold 1500 ivory", "alexandria\\_emporium", "80 → 79", "*121200* gold", "`r-1`"} {
		if !strings.Contains(msg, want) {
			t.Errorf("trade message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatNewsDigest(t *testing.T) {
	at := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	msg := formatNewsDigest([]models.NewsItem{
		{Headline: "Marble prices soar in Roma", PercentChange: 15, Price: 23, PublishedAt: at},
		{Headline: "Ivory prices collapse in Carthago", PercentChange: -20, Price: 48, PublishedAt: at},
	})
	for _, want := range []string{"2026\\-03\\-15 09:00", "1\\. 📈 *Marble prices soar in Roma*", "\\+15%", "2\\. 📉", "\\-20%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("news digest missing %q:\n%s", want, msg)
		}
	}
}

func TestHandleCommand(t *testing.T) {
	view := fakeView{
		overview: []market.MarketOverview{
			{ID: "rome_forum", Name: "Forum Romanum", Location: "Roma", Quotes: []market.Quote{
				{Resource: "marble", Price: 22, Signal: models.TrendBullish, ChangePercent: 4.76},
			}},
			{ID: "ostia_harbor", Name: "Ostia", Quotes: []market.Quote{
				{Resource: "food", Price: 4, Signal: models.TrendBearish, ChangePercent: -20},
			}},
		},
		histories: map[string][]int64{
			"rome_forum/marble": {20, 21, 22},
			"ostia_harbor/food": {5, 5, 5},
		},
		news: []models.NewsItem{
			{Headline: "old", PercentChange: 11},
			{Headline: "new", PercentChange: -12},
		},
		routes: []models.TradeRoute{
			{FromMarket: "ostia_harbor", ToMarket: "rome_forum", Resource: "food", Active: false, Trades: 2, Profit: -15},
		},
	}

	tests := []struct {
		name    string
		cmd     string
		args    string
		want    []string
		notWant []string
	}{
		{"all prices", "prices", "", []string{"Forum Romanum", "\\(Roma\\)", "marble: *22* \\+4\\.8%", "food: *4* \\-20\\.0%"}, nil},
		{"one market", "prices", " ostia_harbor ", []string{"food"}, []string{"marble"}},
		{"unknown market", "prices", "londinium", []string{"Unknown market"}, nil},
		{"movers", "movers", "", []string{"1\\. 📈 marble at rome\\_forum: *\\+10\\.0%* \\(20 → 22\\)"}, []string{"food"}},
		{"news newest first", "news", "", []string{"1\\. 📉 *new*", "2\\. 📈 *old*"}, nil},
		{"routes", "routes", "", []string{"food: ostia\\_harbor → rome\\_forum \\(paused\\)", "profit: \\-15"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Commands{View: view}.handle(tt.cmd, tt.args)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("reply missing %q:\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("reply should not contain %q:\n%s", w, got)
				}
			}
		})
	}

	if got := (Commands{View: view}).handle("unknown", ""); got != "" {
		t.Errorf("expected no reply for unknown command, got %q", got)
	}
	if got := (Commands{View: fakeView{}}).handle("movers", ""); !strings.Contains(got, "No significant price movement") {
		t.Errorf("unexpected empty movers reply %q", got)
	}
	if got := (Commands{View: fakeView{}}).handle("news", ""); !strings.Contains(got, "No market news") {
		t.Errorf("unexpected empty news reply %q", got)
	}
}

// countingDesk wraps a real engine and counts saves.
type countingDesk struct {
	*market.Engine
	saves   int
	saveErr error
}

func (d *countingDesk) Save() error {
	d.saves++
	return d.saveErr
}

func tradingCommands(t *testing.T) (Commands, *countingDesk, *ledger.Ledger) {
	t.Helper()
	cat, err := catalog.New([]models.MarketDef{
		{ID: "ostia_harbor", Name: "Ostia", Resources: map[string]models.ResourceListing{
			"food": {BasePrice: 10, Trend: models.TrendStable},
		}},
		{ID: "rome_forum", Name: "Forum Romanum", Resources: map[string]models.ResourceListing{
			"food": {BasePrice: 20, Trend: models.TrendStable},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	engine := market.New(cat, market.Options{Rand: market.NewSource(1)})
	engine.Initialize(&models.MarketState{MarketPrices: map[string]map[string]int64{
		"ostia_harbor": {"food": 10},
		"rome_forum":   {"food": 20},
	}})
	desk := &countingDesk{Engine: engine}
	wallet := ledger.New(map[string]float64{"food": 50}, 0)
	wallet.SetBalance(ledger.Gold, 6000)
	return Commands{View: engine, Desk: desk, Wallet: wallet}, desk, wallet
}

func TestTradingCommands(t *testing.T) {
	cmds, desk, wallet := tradingCommands(t)

	reply := cmds.handle("buy", "ostia_harbor food 20")
	if !strings.Contains(reply, "Bought 20 food at ostia\\_harbor for *200* gold") {
		t.Errorf("unexpected buy reply:\n%s", reply)
	}
	if wallet.Balance("food") != 20 || wallet.Balance(ledger.Gold) != 5800 {
		t.Errorf("unexpected ledger after buy: %v", wallet.Balances())
	}
	if desk.saves != 1 {
		t.Errorf("expected a save after the buy, got %d", desk.saves)
	}

	reply = cmds.handle("sell", "rome_forum food 5")
	if !strings.Contains(reply, "Sold 5 food at rome\\_forum") || !strings.Contains(reply, "Holding: 15 food") {
		t.Errorf("unexpected sell reply:\n%s", reply)
	}

	reply = cmds.handle("check", "buy ostia_harbor food 10")
	if !strings.Contains(reply, "would be accepted at *10* gold each") {
		t.Errorf("unexpected check reply:\n%s", reply)
	}

	reply = cmds.handle("route", "ostia_harbor rome_forum food")
	if !strings.Contains(reply, "Route opened") || !strings.Contains(reply, "Setup cost: *5000* gold") {
		t.Fatalf("unexpected route reply:\n%s", reply)
	}
	routes := desk.TradeRoutes()
	if len(routes) != 1 {
		t.Fatalf("expected one route, got %d", len(routes))
	}
	id := routes[0].ID

	if reply := cmds.handle("pause", id); !strings.Contains(reply, "paused") {
		t.Errorf("unexpected pause reply %q", reply)
	}
	if desk.TradeRoutes()[0].Active {
		t.Error("route still active after /pause")
	}
	if reply := cmds.handle("resume", id); !strings.Contains(reply, "resumed") {
		t.Errorf("unexpected resume reply %q", reply)
	}
	if !desk.TradeRoutes()[0].Active {
		t.Error("route inactive after /resume")
	}
	// buy, sell, route, pause, resume
	if desk.saves != 5 {
		t.Errorf("expected 5 saves, got %d", desk.saves)
	}

	if reply := cmds.handle("balance", ""); !strings.Contains(reply, "food: *15*") {
		t.Errorf("unexpected balance reply:\n%s", reply)
	}
}

func TestTradingCommandRejections(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		args string
		want string
	}{
		{"insufficient funds", "buy", "rome_forum food 1000", "*Rejected* \\(InsufficientFunds\\)"},
		{"storage exceeded", "buy", "ostia_harbor food 51", "(StorageExceeded\\)"},
		{"nothing to sell", "sell", "rome_forum food 1", "(InsufficientResource\\)"},
		{"unknown market", "buy", "londinium food 1", "(UnknownMarketOrResource\\)"},
		{"zero quantity", "buy", "ostia_harbor food 0", "(InvalidOrder\\)"},
		{"bad side", "check", "hold ostia_harbor food 1", "(InvalidOrder\\)"},
		{"unprofitable route", "route", "rome_forum ostia_harbor food", "(UnprofitableRoute\\)"},
		{"unknown route", "pause", "no-such-route", "(UnknownRoute\\)"},
		{"bad quantity", "sell", "rome_forum food lots", "Usage: /sell"},
		{"missing args", "route", "ostia_harbor", "Usage: /route"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, desk, wallet := tradingCommands(t)
			gold := wallet.Balance(ledger.Gold)

			reply := cmds.handle(tt.cmd, tt.args)
			if !strings.Contains(reply, tt.want) {
				t.Errorf("reply missing %q:\n%s", tt.want, reply)
			}
			if wallet.Balance(ledger.Gold) != gold {
				t.Errorf("rejected command changed gold: %v -> %v", gold, wallet.Balance(ledger.Gold))
			}
			if desk.saves != 0 {
				t.Errorf("rejected command saved state %d times", desk.saves)
			}
		})
	}
}

func TestTradingCommandReportsSaveFailure(t *testing.T) {
	cmds, desk, _ := tradingCommands(t)
	desk.saveErr = errors.New("disk full")

	reply := cmds.handle("buy", "ostia_harbor food 1")
	if !strings.Contains(reply, "Bought 1 food") || !strings.Contains(reply, "could not be saved: disk full") {
		t.Errorf("unexpected reply:\n%s", reply)
	}
}

func TestTradingDisabledWithoutDesk(t *testing.T) {
	got := Commands{View: fakeView{}}.handle("buy", "rome_forum food 1")
	if !strings.Contains(got, "Trading is disabled") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestFormatErrorAndRecovery(t *testing.T) {
	if msg := formatError(errors.New("disk full.")); !strings.Contains(msg, "disk full\\.") {
		t.Errorf("unexpected error message %q", msg)
	}
	if msg := formatRecovery(1); !strings.HasSuffix(msg, "1 consecutive failure") {
		t.Errorf("unexpected recovery message %q", msg)
	}
	if msg := formatRecovery(3); !strings.HasSuffix(msg, "3 consecutive failures") {
		t.Errorf("unexpected recovery message %q", msg)
	}
}
