package feeds

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE FUTURES FEED - Real-time mark prices for the supported symbols
// ═══════════════════════════════════════════════════════════════════════════════
//
// Combined miniTicker stream over WebSocket, with automatic reconnect. The
// ledger core never talks to this directly; it only sees GetPrice and the
// tick channel.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	futuresWSBase     = "wss://fstream.binance.com/stream"
	reconnectDelay    = 3 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// Tick is a single price update for one symbol.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// streamEnvelope wraps every combined-stream message.
type streamEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Close     string `json:"c"`
	} `json:"data"`
}

// BinanceFeed provides real-time futures prices for a fixed symbol set.
type BinanceFeed struct {
	mu      sync.RWMutex
	symbols []string
	prices  map[string]decimal.Decimal
	running bool
	stopCh  chan struct{}

	subscribers []chan Tick
}

// NewBinanceFeed creates a feed for the given symbols.
func NewBinanceFeed(symbols []string) *BinanceFeed {
	return &BinanceFeed{
		symbols: append([]string(nil), symbols...),
		prices:  make(map[string]decimal.Decimal),
		stopCh:  make(chan struct{}),
	}
}

// Start seeds prices over REST, then keeps them live over the WebSocket
// stream. Returns an error only when the initial dial fails outright; later
// disconnects reconnect with backoff.
func (f *BinanceFeed) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.mu.Unlock()

	f.seedPrices()

	conn, err := f.dial()
	if err != nil {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		return err
	}

	go f.readLoop(conn)
	log.Info().Strs("symbols", f.symbols).Msg("📈 Binance feed started")
	return nil
}

// Stop stops the feed.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	log.Info().Msg("Binance feed stopped")
}

// Subscribe returns a buffered channel of ticks. Slow subscribers drop
// updates rather than block the read loop.
func (f *BinanceFeed) Subscribe() chan Tick {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Tick, 256)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// GetPrice returns the last price for symbol, zero when none seen yet.
func (f *BinanceFeed) GetPrice(symbol string) decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.prices[symbol]
}

// GetPrices returns a copy of all current prices.
func (f *BinanceFeed) GetPrices() map[string]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(f.prices))
	for s, p := range f.prices {
		out[s] = p
	}
	return out
}

func (f *BinanceFeed) streamURL() string {
	streams := make([]string, len(f.symbols))
	for i, s := range f.symbols {
		streams[i] = strings.ToLower(s) + "@miniTicker"
	}
	return fmt.Sprintf("%s?streams=%s", futuresWSBase, strings.Join(streams, "/"))
}

func (f *BinanceFeed) dial() (*websocket.Conn, error) {
	url := f.streamURL()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (f *BinanceFeed) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Error().Err(err).Msg("WebSocket read error")
			f.reconnect()
			return
		}
		f.handleMessage(message)
	}
}

// reconnect re-dials with backoff until it succeeds or the feed is stopped.
func (f *BinanceFeed) reconnect() {
	delay := reconnectDelay
	for {
		select {
		case <-f.stopCh:
			return
		case <-time.After(delay):
		}

		conn, err := f.dial()
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", delay).Msg("Reconnect failed")
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		log.Info().Msg("✅ Binance feed reconnected")
		go f.readLoop(conn)
		return
	}
}

func (f *BinanceFeed) handleMessage(data []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.Data.EventType != "24hrMiniTicker" || env.Data.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(env.Data.Close)
	if err != nil || !price.IsPositive() {
		return
	}
	f.setPrice(env.Data.Symbol, price)
}

// seedPrices does one REST round so GetPrice works before the first stream
// message lands.
func (f *BinanceFeed) seedPrices() {
	for _, symbol := range f.symbols {
		price, err := FetchTickerPrice(symbol)
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Price seed failed")
			continue
		}
		f.setPrice(symbol, price)
	}
}

func (f *BinanceFeed) setPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	old := f.prices[symbol]
	f.prices[symbol] = price
	f.mu.Unlock()

	if price.Equal(old) {
		return
	}
	f.broadcast(Tick{Symbol: symbol, Price: price, Timestamp: time.Now().UTC()})
}

func (f *BinanceFeed) broadcast(tick Tick) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- tick:
		default:
			// Channel full, skip
		}
	}
}
