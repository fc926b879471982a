// Package telegram delivers market notifications through the Telegram Bot API.
//
// Trade confirmations, news digests and sweep summaries are formatted as
// MarkdownV2 and queued without blocking the caller; Run drains the queue,
// throttled by a token-bucket limiter, retrying each send with linear backoff.
// The client also answers chat commands that query the markets and let the
// player trade and manage trade routes.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/imperium/internal/ledger"
	"github.com/rewired-gh/imperium/internal/logger"
	"github.com/rewired-gh/imperium/internal/market"
	"github.com/rewired-gh/imperium/internal/models"
	"github.com/rewired-gh/imperium/internal/monitor"
)

const (
	defaultQueueSize = 64

	// /movers lists at most this many listings that moved at least minMoverChange.
	topMovers      = 5
	minMoverChange = 0.05
)

var log = logger.Named("telegram")

// sender is the subset of the bot API used for delivery.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// MarketView is the read-only engine surface the chat commands query.
type MarketView interface {
	Overview() []market.MarketOverview
	History(marketID, resource string) []int64
	News() []models.NewsItem
	TradeRoutes() []models.TradeRoute
}

// Desk is the engine surface that trades and manages routes for the player.
type Desk interface {
	Price(marketID, resource string) (int64, bool)
	CanTrade(marketID, resource string, side models.Side, quantity int64, l market.Ledger) error
	ExecuteTrade(marketID, resource string, side models.Side, quantity int64, l market.Ledger) (market.TradeResult, error)
	CreateTradeRoute(from, to, resource string, l market.Ledger) (models.TradeRoute, error)
	ActivateTradeRoute(id string) error
	DeactivateTradeRoute(id string) error
	Save() error
}

// Wallet is the player ledger that trading commands settle against.
type Wallet interface {
	market.Ledger
	Balances() map[string]float64
}

// Commands binds chat commands to the engine and the player's wallet.
// With a nil Desk only the read-only commands are answered.
type Commands struct {
	View   MarketView
	Desk   Desk
	Wallet Wallet
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	api            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	limiter        *rate.Limiter
	queue          chan string
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, messagesPerSecond float64) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase, messagesPerSecond)
	c.api = bot
	return c, nil
}

func newClient(bot sender, chatID int64, maxRetries int, retryDelayBase time.Duration, messagesPerSecond float64) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if messagesPerSecond <= 0 {
		messagesPerSecond = 1
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		limiter:        rate.NewLimiter(rate.Limit(messagesPerSecond), 1),
		queue:          make(chan string, defaultQueueSize),
	}
}

// TradeExecuted queues a trade confirmation.
func (c *Client) TradeExecuted(trade models.TradeRecord) {
	c.enqueue(formatTrade(trade))
}

// NewsPublished queues a digest of freshly generated news.
func (c *Client) NewsPublished(items []models.NewsItem) {
	if len(items) == 0 {
		return
	}
	c.enqueue(formatNewsDigest(items))
}

// SweepCompleted queues a summary of a trade-route sweep that did something.
func (c *Client) SweepCompleted(result market.SweepResult) {
	if result.Executed == 0 && result.Failed == 0 {
		return
	}
	c.enqueue(formatSweep(result))
}

// SendError sends an error notification immediately.
func (c *Client) SendError(err error) error {
	return c.Send(context.Background(), formatError(err))
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failures int) error {
	return c.Send(context.Background(), formatRecovery(failures))
}

func (c *Client) enqueue(text string) {
	select {
	case c.queue <- text:
	default:
		log.Warnf("notification queue full, dropping message")
	}
}

// Run delivers queued messages until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-c.queue:
			if err := c.Send(ctx, text); err != nil {
				log.Errorf("failed to deliver notification: %v", err)
			}
		}
	}
}

// Send delivers one MarkdownV2 message, retrying with linear backoff.
func (c *Client) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Debugf("send attempt %d failed: %v", i+1, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// ListenForCommands answers chat commands from the configured chat until ctx
// is cancelled. It returns immediately; updates are handled in a background
// goroutine.
func (c *Client) ListenForCommands(ctx context.Context, cmds Commands) {
	if c.api == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil || !msg.IsCommand() || msg.Chat == nil || msg.Chat.ID != c.chatID {
					continue
				}
				log.Debugf("command /%s %q", msg.Command(), msg.CommandArguments())
				if reply := cmds.handle(msg.Command(), msg.CommandArguments()); reply != "" {
					c.enqueue(reply)
				}
			}
		}
	}()
}

const helpText = `Commands:
/prices [market], /movers, /news, /routes, /balance
/buy <market> <resource> <quantity>
/sell <market> <resource> <quantity>
/check <buy|sell> <market> <resource> <quantity>
/route <from> <to> <resource>
/pause <route id>, /resume <route id>`

func (cmds Commands) handle(cmd, args string) string {
	fields := strings.Fields(strings.ToLower(args))
	switch cmd {
	case "prices":
		return formatPrices(cmds.View.Overview(), strings.TrimSpace(args))
	case "movers":
		var series []monitor.Series
		for _, m := range cmds.View.Overview() {
			for _, q := range m.Quotes {
				series = append(series, monitor.Series{
					Market:   m.ID,
					Resource: q.Resource,
					History:  cmds.View.History(m.ID, q.Resource),
				})
			}
		}
		return formatMovers(monitor.TopMovers(series, topMovers, minMoverChange))
	case "news":
		return formatNewsList(cmds.View.News())
	case "routes":
		return formatRoutes(cmds.View.TradeRoutes())
	case "start", "help":
		return escapeMarkdownV2(helpText)
	case "balance", "buy", "sell", "check", "route", "pause", "resume":
		if cmds.Desk == nil || cmds.Wallet == nil {
			return escapeMarkdownV2("Trading is disabled.")
		}
		return cmds.trade(cmd, fields)
	default:
		return ""
	}
}

func (cmds Commands) trade(cmd string, fields []string) string {
	switch cmd {
	case "balance":
		return formatBalances(cmds.Wallet.Balances())
	case "buy", "sell":
		if len(fields) != 3 {
			return usage("/" + cmd + " <market> <resource> <quantity>")
		}
		qty, ok := parseQuantity(fields[2])
		if !ok {
			return usage("/" + cmd + " <market> <resource> <quantity>")
		}
		res, err := cmds.Desk.ExecuteTrade(fields[0], fields[1], models.Side(cmd), qty, cmds.Wallet)
		if err != nil {
			return formatRejection(err)
		}
		return formatFill(res, cmds.Wallet) + cmds.save()
	case "check":
		if len(fields) != 4 {
			return usage("/check <buy|sell> <market> <resource> <quantity>")
		}
		qty, ok := parseQuantity(fields[3])
		if !ok {
			return usage("/check <buy|sell> <market> <resource> <quantity>")
		}
		side := models.Side(fields[0])
		if err := cmds.Desk.CanTrade(fields[1], fields[2], side, qty, cmds.Wallet); err != nil {
			return formatRejection(err)
		}
		price, _ := cmds.Desk.Price(fields[1], fields[2])
		return formatCheck(side, fields[1], fields[2], qty, price)
	case "route":
		if len(fields) != 3 {
			return usage("/route <from> <to> <resource>")
		}
		before := cmds.Wallet.Balance(ledger.Gold)
		route, err := cmds.Desk.CreateTradeRoute(fields[0], fields[1], fields[2], cmds.Wallet)
		if err != nil {
			return formatRejection(err)
		}
		cost := int64(before - cmds.Wallet.Balance(ledger.Gold))
		return formatRouteOpened(route, cost) + cmds.save()
	case "pause", "resume":
		if len(fields) != 1 {
			return usage("/" + cmd + " <route id>")
		}
		toggle := cmds.Desk.DeactivateTradeRoute
		if cmd == "resume" {
			toggle = cmds.Desk.ActivateTradeRoute
		}
		if err := toggle(fields[0]); err != nil {
			return formatRejection(err)
		}
		return formatRouteToggled(fields[0], cmd == "resume") + cmds.save()
	}
	return ""
}

// save persists engine state and ledger after a command changed them.
func (cmds Commands) save() string {
	if err := cmds.Desk.Save(); err != nil {
		log.Errorf("failed to save after command: %v", err)
		return "\n" + escapeMarkdownV2("⚠️ State could not be saved: "+err.Error())
	}
	return ""
}

func parseQuantity(s string) (int64, bool) {
	q, err := strconv.ParseInt(s, 10, 64)
	return q, err == nil
}
