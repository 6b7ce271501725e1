package marketfeed_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

func TestParseCurrencyPair(t *testing.T) {
	tests := []struct {
		name    string
		str     string
		want    marketfeed.CurrencyPair
		wantErr bool
	}{
		{"valid", "BTC_USD", btcUsd, false},
		{"lower case", "eth_usd", ethUsd, false},
		{"spaces", " BTC_USD ", btcUsd, false},
		{"missing quote", "BTC_", marketfeed.CurrencyPair{}, true},
		{"missing separator", "BTCUSD", marketfeed.CurrencyPair{}, true},
		{"too many parts", "BTC_USD_EUR", marketfeed.CurrencyPair{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marketfeed.ParseCurrencyPair(tt.str)
			if tt.wantErr {
				require.ErrorIs(t, err, marketfeed.ErrInvalidCurrencyPair)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want.String(), got.String())
		})
	}

	pairs, err := marketfeed.ParseCurrencyPairs([]string{"BTC_USD", "ETH_USD"})
	require.NoError(t, err)
	require.Equal(t, []marketfeed.CurrencyPair{btcUsd, ethUsd}, pairs)

	_, err = marketfeed.ParseCurrencyPairs([]string{"BTC_USD", "ETH"})
	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	opts := marketfeed.Options{
		"url":      "wss://example.com",
		"empty":    "",
		"interval": "2s",
		"ms":       300,
		"duration": time.Minute,
	}

	require.Equal(t, "wss://example.com", opts.GetString("url", "x"))
	require.Equal(t, "x", opts.GetString("empty", "x"))
	require.Equal(t, "x", opts.GetString("missing", "x"))
	require.Equal(t, 2*time.Second, opts.GetDuration("interval", 0))
	require.Equal(t, 300*time.Millisecond, opts.GetDuration("ms", 0))
	require.Equal(t, time.Minute, opts.GetDuration("duration", 0))
	require.Equal(t, time.Second, opts.GetDuration("missing", time.Second))

	var nilOpts marketfeed.Options
	require.Equal(t, "x", nilOpts.GetString("url", "x"))
}
