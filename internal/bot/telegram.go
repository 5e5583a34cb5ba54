package bot

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"perpsim/internal/ledger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Account control & trade notifications
// ═══════════════════════════════════════════════════════════════════════════════
//
// The user-facing surface of the paper account:
//   💼 /open /close /risk /reset — ledger mutations
//   📊 /status /positions /trades — account state
//   🚨 push alerts on every forced close
//
// Ledger validation failures come back as plain reply text; the account is
// untouched when a command is rejected.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PriceSource supplies current prices for display and market fills.
type PriceSource interface {
	GetPrice(symbol string) decimal.Decimal
	GetPrices() map[string]decimal.Decimal
}

// Bot manages the Telegram interface.
type Bot struct {
	mu      sync.Mutex
	api     *tgbotapi.BotAPI
	chatID  int64
	ledger  *ledger.Ledger
	feed    PriceSource
	running bool
	stopCh  chan struct{}
}

// New creates a Telegram bot bound to one authorized chat.
func New(token string, chatID int64, l *ledger.Ledger, feed PriceSource) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &Bot{
		api:    api,
		chatID: chatID,
		ledger: l,
		feed:   feed,
		stopCh: make(chan struct{}),
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return bot, nil
}

// Start begins listening for commands.
func (b *Bot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyClose pushes a forced-close alert. Implements risk.CloseNotifier.
func (b *Bot) NotifyClose(pos *ledger.Position, price, pnl decimal.Decimal, reason ledger.CloseReason) {
	var emoji string
	switch reason {
	case ledger.ReasonTakeProfit:
		emoji = "💰"
	case ledger.ReasonStopLoss:
		emoji = "🛑"
	case ledger.ReasonLiquidation:
		emoji = "💥"
	default:
		emoji = "📊"
	}

	sign := "+"
	if pnl.IsNegative() {
		sign = ""
	}

	msg := fmt.Sprintf(`%s *%s*

📊 %s %s
💵 Entry: *%s* → Exit: *%s*
💵 P&L: *%s$%s*`,
		emoji, reason,
		pos.Symbol, pos.Side,
		pos.EntryPrice.String(), price.String(),
		sign, pnl.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *Bot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())
	args := strings.Fields(msg.CommandArguments())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "positions":
		b.cmdPositions()
	case "trades":
		b.cmdTrades()
	case "open":
		b.cmdOpen(args)
	case "close":
		b.cmdClose(args)
	case "risk":
		b.cmdRisk(args)
	case "reset":
		b.cmdReset()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *Bot) cmdHelp() {
	msg := `🤖 *PERPSIM COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Balance, equity, margin
💼 /positions — Open positions
📜 /trades — Last 10 transactions
🏓 /ping — Test connection

💵 /open SYMBOL long|short MARGIN LEV [SL] [TP]
📊 /close SYMBOL
🎛 /risk SYMBOL SL|- TP|-
🔄 /reset — Wipe the account

━━━━━━━━━━━━━━━━━━━━
Paper account, market fills at last price`

	b.sendMarkdown(msg)
}

func (b *Bot) cmdStatus() {
	balance := b.ledger.Balance()
	summary := ledger.Summarize(balance, b.ledger.OpenPositions(), b.feed.GetPrices())

	sign := "+"
	if summary.TotalPnL.IsNegative() {
		sign = ""
	}

	msg := fmt.Sprintf(`📊 *ACCOUNT STATUS*
━━━━━━━━━━━━━━━━━━━━

💰 Balance: *$%s*
💎 Equity: *$%s*
📦 Used Margin: *$%s*
📈 Unrealized P&L: *%s$%s*`,
		balance.StringFixed(2),
		summary.Equity.StringFixed(2),
		summary.UsedMargin.StringFixed(2),
		sign, summary.TotalPnL.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

func (b *Bot) cmdPositions() {
	positions := b.ledger.OpenPositions()
	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for _, symbol := range b.ledger.Symbols() {
		pos, ok := positions[symbol]
		if !ok {
			continue
		}

		sideEmoji := "🟢"
		if pos.Side == ledger.Short {
			sideEmoji = "🔴"
		}

		current := b.feed.GetPrice(symbol)
		pnlStr := "n/a"
		if current.IsPositive() {
			pnlStr = "$" + pos.UnrealizedPnL(current).StringFixed(2)
		}
		duration := time.Since(pos.OpenedAt).Round(time.Second)

		msg += fmt.Sprintf(`%s *%s* — %s %dx
💵 Entry: %s | Margin: $%s
🎯 TP: %s | 🛑 SL: %s | 💥 Liq: %s
📈 P&L: %s | ⏱ %v

`,
			sideEmoji, pos.Symbol, pos.Side, pos.Leverage,
			pos.EntryPrice.String(), pos.Margin.StringFixed(2),
			formatRisk(pos.TakeProfit), formatRisk(pos.StopLoss), pos.LiquidationPrice().StringFixed(2),
			pnlStr, duration,
		)
	}

	b.sendMarkdown(msg)
}

func (b *Bot) cmdTrades() {
	transactions := b.ledger.Transactions(10)
	if len(transactions) == 0 {
		b.send("📭 No transactions yet")
		return
	}

	msg := "📜 *RECENT TRANSACTIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for _, t := range transactions {
		line := fmt.Sprintf("• %s *%s* %s @ %s",
			t.Timestamp.Format("01-02 15:04"), t.Type, t.Symbol, t.Price.String())
		if t.Type == ledger.TxClose && t.PnL != nil {
			sign := "+"
			if t.PnL.IsNegative() {
				sign = ""
			}
			line += fmt.Sprintf(" (%s$%s, %s)", sign, t.PnL.StringFixed(2), t.Reason)
		}
		msg += line + "\n"
	}

	b.sendMarkdown(msg)
}

func (b *Bot) cmdOpen(args []string) {
	if len(args) < 4 {
		b.send("Usage: /open SYMBOL long|short MARGIN LEVERAGE [SL] [TP]")
		return
	}

	symbol := strings.ToUpper(args[0])

	var side ledger.Side
	switch strings.ToLower(args[1]) {
	case "long":
		side = ledger.Long
	case "short":
		side = ledger.Short
	default:
		b.send("Side must be long or short")
		return
	}

	margin, err := decimal.NewFromString(args[2])
	if err != nil {
		b.send("Invalid margin amount")
		return
	}
	leverage, err := strconv.Atoi(args[3])
	if err != nil {
		b.send("Invalid leverage")
		return
	}

	stopLoss, err := parseRiskArg(args, 4)
	if err != nil {
		b.send("Invalid stop-loss price")
		return
	}
	takeProfit, err := parseRiskArg(args, 5)
	if err != nil {
		b.send("Invalid take-profit price")
		return
	}

	price := b.feed.GetPrice(symbol)

	if err := b.ledger.Open(symbol, side, margin, leverage, price, stopLoss, takeProfit); err != nil {
		b.send("❌ " + err.Error())
		return
	}
	b.send(fmt.Sprintf("✅ Opened %s %s %dx @ %s", symbol, side, leverage, price.String()))
}

func (b *Bot) cmdClose(args []string) {
	if len(args) < 1 {
		b.send("Usage: /close SYMBOL")
		return
	}
	symbol := strings.ToUpper(args[0])
	price := b.feed.GetPrice(symbol)

	pos := b.ledger.Position(symbol)
	if err := b.ledger.Close(symbol, price, ledger.ReasonManual); err != nil {
		b.send("❌ " + err.Error())
		return
	}

	pnl := pos.UnrealizedPnL(price)
	sign := "+"
	if pnl.IsNegative() {
		sign = ""
	}
	b.send(fmt.Sprintf("📊 Closed %s @ %s (%s$%s)", symbol, price.String(), sign, pnl.StringFixed(2)))
}

func (b *Bot) cmdRisk(args []string) {
	if len(args) < 3 {
		b.send("Usage: /risk SYMBOL SL|- TP|-  (dash clears)")
		return
	}
	symbol := strings.ToUpper(args[0])

	stopLoss, err := parseRiskArg(args, 1)
	if err != nil {
		b.send("Invalid stop-loss price")
		return
	}
	takeProfit, err := parseRiskArg(args, 2)
	if err != nil {
		b.send("Invalid take-profit price")
		return
	}

	if b.ledger.Position(symbol) == nil {
		b.send("📭 No open position for " + symbol)
		return
	}
	b.ledger.UpdateRisk(symbol, stopLoss, takeProfit)
	b.send(fmt.Sprintf("🎛 Risk updated for %s: SL %s, TP %s", symbol, formatRisk(stopLoss), formatRisk(takeProfit)))
}

func (b *Bot) cmdReset() {
	b.ledger.Reset()
	b.send(fmt.Sprintf("🔄 Account reset. Balance: $%s", b.ledger.Balance().StringFixed(2)))
}

// parseRiskArg reads an optional price argument; missing or "-" means unset.
func parseRiskArg(args []string, idx int) (*decimal.Decimal, error) {
	if len(args) <= idx || args[idx] == "-" {
		return nil, nil
	}
	d, err := decimal.NewFromString(args[idx])
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatRisk(d *decimal.Decimal) string {
	if d == nil {
		return "—"
	}
	return d.String()
}

func (b *Bot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *Bot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
