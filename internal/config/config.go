package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

const (
	// DatadirKey is the local data directory to store the internal state of the daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// WatchdogTimeoutKey is the number of milliseconds without inbound data after which a feed connection is closed. 0 disables the watchdog
	WatchdogTimeoutKey = "WATCHDOG_TIMEOUT_MS"
	// ReconnectDelayKey is the number of milliseconds to wait before reopening a closed feed connection
	ReconnectDelayKey = "RECONNECT_DELAY_MS"
	// CleanupTimeoutKey bounds the duration in milliseconds of each feed teardown step. 0 means unbounded
	CleanupTimeoutKey = "CLEANUP_TIMEOUT_MS"
	// ConnectTimeoutKey bounds the duration in milliseconds of feed connection establishment
	ConnectTimeoutKey = "CONNECT_TIMEOUT_MS"
	// DialRateKey is the max number of connection attempts per second across all feeds. 0 means unlimited
	DialRateKey = "DIAL_RATE"
	// FeedsKey lists the feeds started by the daemon in the form type:PAIR,PAIR;type2:PAIR
	FeedsKey = "FEEDS"
	// BitmexURLKey is the websocket endpoint of the bitmex feed
	BitmexURLKey = "BITMEX_URL"
	// RelayAddrKey is the address <host:port> of the gRPC liquidation relay
	RelayAddrKey = "RELAY_ADDR"
	// RelayApiKeyKey is the api key used to authenticate against the relay
	RelayApiKeyKey = "RELAY_API_KEY"
	// RelayApiSecretKey is the secret used to sign relay auth tokens
	RelayApiSecretKey = "RELAY_API_SECRET"
	// HTTPListeningPortKey is the port where the HTTP status interface will listen on
	HTTPListeningPortKey = "HTTP_LISTENING_PORT"
	// StatsIntervalKey defines interval in seconds for printing basic feeder statistics. 0 disables them
	StatsIntervalKey = "STATS_INTERVAL"

	DbLocation = "db"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tdex-feeder", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("FEEDER")
	vip.AutomaticEnv()

	defaultCfg := marketfeed.DefaultConfig()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(WatchdogTimeoutKey, defaultCfg.WatchdogTimeout.Milliseconds())
	vip.SetDefault(ReconnectDelayKey, defaultCfg.ReconnectDelay.Milliseconds())
	vip.SetDefault(CleanupTimeoutKey, defaultCfg.CleanupTimeout.Milliseconds())
	vip.SetDefault(ConnectTimeoutKey, defaultCfg.ConnectTimeout.Milliseconds())
	vip.SetDefault(DialRateKey, defaultCfg.DialRate)
	vip.SetDefault(FeedsKey, "bitmex:BTC_USD")
	vip.SetDefault(BitmexURLKey, "wss://ws.bitmex.com/realtime")
	vip.SetDefault(RelayAddrKey, "localhost:9050")
	vip.SetDefault(HTTPListeningPortKey, 9060)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetMarketfeedConfig returns the lifecycle settings shared by all feeds.
func GetMarketfeedConfig() marketfeed.Config {
	cfg := marketfeed.DefaultConfig()
	cfg.WatchdogTimeout = millis(WatchdogTimeoutKey)
	cfg.ReconnectDelay = millis(ReconnectDelayKey)
	cfg.CleanupTimeout = millis(CleanupTimeoutKey)
	cfg.ConnectTimeout = millis(ConnectTimeoutKey)
	cfg.DialRate = GetInt(DialRateKey)
	return cfg
}

// GetFeedOptions returns the construction options of every known feed type.
func GetFeedOptions() map[marketfeed.FeedType]marketfeed.Options {
	return map[marketfeed.FeedType]marketfeed.Options{
		"bitmex": {
			"url": GetString(BitmexURLKey),
		},
		"relay": {
			"addr":       GetString(RelayAddrKey),
			"api_key":    GetString(RelayApiKeyKey),
			"api_secret": GetString(RelayApiSecretKey),
		},
	}
}

func millis(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Millisecond
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	for _, key := range []string{
		WatchdogTimeoutKey, CleanupTimeoutKey, DialRateKey, StatsIntervalKey,
	} {
		if GetInt(key) < 0 {
			return fmt.Errorf("%s must not be a negative number", key)
		}
	}
	for _, key := range []string{ReconnectDelayKey, ConnectTimeoutKey} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
	}

	if len(GetString(FeedsKey)) <= 0 {
		return fmt.Errorf("missing feeds")
	}

	bitmexURL, err := url.Parse(GetString(BitmexURLKey))
	if err != nil {
		return fmt.Errorf("bitmex url is not valid: %s", err)
	}
	if bitmexURL.Scheme != "ws" && bitmexURL.Scheme != "wss" {
		return fmt.Errorf("bitmex url must use either ws or wss scheme")
	}

	apiKey, apiSecret := GetString(RelayApiKeyKey), GetString(RelayApiSecretKey)
	if apiKey != "" && apiSecret == "" {
		return fmt.Errorf("relay authentication requires both api key and secret when enabled")
	}

	port := GetInt(HTTPListeningPortKey)
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be in range [1, 65535]", HTTPListeningPortKey)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	return makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
