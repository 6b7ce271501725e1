package bitmexfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

const (
	// FeedType is the identifier under which the feed is registered.
	FeedType marketfeed.FeedType = "bitmex"
	// DefaultURL is the realtime endpoint of bitmex.
	DefaultURL = "wss://ws.bitmex.com/realtime"

	defaultPingInterval = 5 * time.Second
	liquidationTable    = "liquidation"
)

var (
	// bitmex lists bitcoin as XBT.
	assetAliases = map[string]string{
		"BTC": "XBT",
	}
)

func init() {
	marketfeed.Register(FeedType, NewConnector)
}

type connector struct {
	url          string
	pingInterval time.Duration
	dialer       *websocket.Dialer
}

// NewConnector returns the connector of the bitmex liquidation feed.
// Supported options are "url" and "ping_interval".
func NewConnector(opts marketfeed.Options) (marketfeed.Connector, error) {
	endpoint := opts.GetString("url", DefaultURL)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %s", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid url scheme %q, must be ws or wss", u.Scheme)
	}

	return &connector{
		url:          endpoint,
		pingInterval: opts.GetDuration("ping_interval", defaultPingInterval),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

func (c *connector) Kind() marketfeed.ConnectionKind {
	return marketfeed.RawSocket
}

func (c *connector) Connect(
	ctx context.Context, feed *marketfeed.Feed,
) (marketfeed.Transport, error) {
	pairs := feed.CurrencyPairs()
	pairBySymbol := make(map[string]marketfeed.CurrencyPair, len(pairs))
	topics := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		symbol := Symbol(pair)
		pairBySymbol[symbol] = pair
		topics = append(topics, fmt.Sprintf("%s:%s", liquidationTable, symbol))
	}

	u, _ := url.Parse(c.url)
	query := u.Query()
	query.Set("subscribe", strings.Join(topics, ","))
	u.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	t := marketfeed.NewSocketTransport(conn)
	t.OnMessage(func(data []byte) {
		feed.Touch()
		for _, liquidation := range parseLiquidations(data, pairBySymbol) {
			if _, err := feed.Emit(marketfeed.EventLiquidation, liquidation); err != nil {
				log.WithError(err).Warn("bitmex: failed to publish liquidation")
			}
		}
	})
	t.OnClose(func(err error) {
		feed.Disconnected(t, err)
	})
	t.Listen()

	go c.keepAlive(t)

	log.Debugf("bitmex: connected, subscribed to %s", strings.Join(topics, ","))
	return t, nil
}

// keepAlive sends text pings, bitmex answers with a pong frame that keeps the
// watchdog from firing when no liquidation happens.
func (c *connector) keepAlive(t *marketfeed.SocketTransport) {
	if c.pingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Done():
			return
		case <-ticker.C:
			if err := t.WriteMessage([]byte("ping")); err != nil {
				log.WithError(err).Debug("bitmex: failed to send ping")
			}
		}
	}
}

// Symbol returns the bitmex instrument symbol of the given pair, ie. XBTUSD
// for BTC_USD.
func Symbol(pair marketfeed.CurrencyPair) string {
	return alias(pair.Base) + alias(pair.Quote)
}

func alias(asset string) string {
	if a, ok := assetAliases[asset]; ok {
		return a
	}
	return asset
}

type tableMessage struct {
	Table  string           `json:"table"`
	Action string           `json:"action"`
	Data   []liquidationRow `json:"data"`
}

type liquidationRow struct {
	OrderID   string          `json:"orderID"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	LeavesQty decimal.Decimal `json:"leavesQty"`
}

// parseLiquidations returns the new liquidations of the subscribed pairs
// contained in msg. Anything else, including pongs, yields nothing.
func parseLiquidations(
	msg []byte, pairBySymbol map[string]marketfeed.CurrencyPair,
) []marketfeed.Liquidation {
	var m tableMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil
	}
	if m.Table != liquidationTable || m.Action != "insert" {
		return nil
	}

	liquidations := make([]marketfeed.Liquidation, 0, len(m.Data))
	for _, row := range m.Data {
		pair, ok := pairBySymbol[row.Symbol]
		if !ok {
			continue
		}
		liquidations = append(liquidations, marketfeed.Liquidation{
			OrderID:  row.OrderID,
			Symbol:   row.Symbol,
			Pair:     pair,
			Side:     row.Side,
			Price:    row.Price,
			Quantity: row.LeavesQty,
		})
	}
	return liquidations
}
