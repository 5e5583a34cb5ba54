package feeds

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamURL(t *testing.T) {
	f := NewBinanceFeed([]string{"BTCUSDT", "ETHUSDT"})
	assert.Equal(t,
		"wss://fstream.binance.com/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker",
		f.streamURL())
}

func TestHandleMessageUpdatesPriceAndBroadcasts(t *testing.T) {
	f := NewBinanceFeed([]string{"BTCUSDT"})
	ch := f.Subscribe()

	msg := []byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"64250.10"}}`)
	f.handleMessage(msg)

	want, _ := decimal.NewFromString("64250.10")
	assert.True(t, f.GetPrice("BTCUSDT").Equal(want))

	select {
	case tick := <-ch:
		assert.Equal(t, "BTCUSDT", tick.Symbol)
		assert.True(t, tick.Price.Equal(want))
	default:
		t.Fatal("expected a tick on the subscriber channel")
	}
}

func TestHandleMessageIgnoresGarbage(t *testing.T) {
	f := NewBinanceFeed([]string{"BTCUSDT"})

	f.handleMessage([]byte(`not json`))
	f.handleMessage([]byte(`{"stream":"x","data":{"e":"otherEvent","s":"BTCUSDT","c":"1"}}`))
	f.handleMessage([]byte(`{"stream":"x","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"-5"}}`))
	f.handleMessage([]byte(`{"stream":"x","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"abc"}}`))

	assert.True(t, f.GetPrice("BTCUSDT").IsZero())
}

func TestUnchangedPriceNotRebroadcast(t *testing.T) {
	f := NewBinanceFeed([]string{"BTCUSDT"})
	ch := f.Subscribe()

	msg := []byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"100"}}`)
	f.handleMessage(msg)
	f.handleMessage(msg)

	<-ch
	select {
	case <-ch:
		t.Fatal("duplicate price must not be rebroadcast")
	default:
	}
}

func TestParseKline(t *testing.T) {
	raw := []byte(`[1700000000000,"100.5","110.0","99.5","105.25","1234.5",1700000899999,"ignored",42,"a","b","c"]`)
	var k []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &k))

	c, err := parseKline(k)
	require.NoError(t, err)

	assert.Equal(t, int64(1700000000000), c.OpenTime.UnixMilli())
	assert.Equal(t, int64(1700000899999), c.CloseTime.UnixMilli())
	assert.True(t, c.Open.Equal(decimal.NewFromFloat(100.5)))
	assert.True(t, c.High.Equal(decimal.NewFromInt(110)))
	assert.True(t, c.Low.Equal(decimal.NewFromFloat(99.5)))
	assert.True(t, c.Close.Equal(decimal.NewFromFloat(105.25)))
	assert.True(t, c.Volume.Equal(decimal.NewFromFloat(1234.5)))
}

func TestParseKlineBadField(t *testing.T) {
	raw := []byte(`[1700000000000,"oops","110.0","99.5","105.25","1234.5",1700000899999]`)
	var k []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &k))

	_, err := parseKline(k)
	assert.Error(t, err)
}
