package relayfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/thanhpk/randstr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

const (
	// FeedType is the identifier under which the feed is registered.
	FeedType marketfeed.FeedType = "relay"
	// DefaultAddr is the default address of the relay server.
	DefaultAddr = "localhost:9050"

	endSessionTimeout = 5 * time.Second
)

var (
	ErrInvalidTransport = errors.New("transport is not a relay session")
	ErrMissingSecret    = errors.New("api secret is required when api key is set")
	ErrUnexpectedAck    = errors.New("relay did not acknowledge the session")
)

func init() {
	marketfeed.Register(FeedType, NewConnector)
}

type connector struct {
	addr      string
	apiKey    string
	apiSecret string
	dialOpts  []grpc.DialOption

	lock     sync.Mutex
	sessions map[string]*marketfeed.SessionTransport
	ended    map[string]struct{}
}

// NewConnector returns the connector of the relay feed. Supported options
// are "addr", "api_key", "api_secret" and "dial_options" ([]grpc.DialOption).
func NewConnector(opts marketfeed.Options) (marketfeed.Connector, error) {
	apiKey := opts.GetString("api_key", "")
	apiSecret := opts.GetString("api_secret", "")
	if len(apiKey) > 0 && len(apiSecret) <= 0 {
		return nil, ErrMissingSecret
	}

	c := &connector{
		addr:      opts.GetString("addr", DefaultAddr),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		sessions:  make(map[string]*marketfeed.SessionTransport),
		ended:     make(map[string]struct{}),
	}

	c.dialOpts = []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithUnaryInterceptor(
			middleware.ChainUnaryClient(unaryLogger, c.unaryAuth),
		),
		grpc.WithStreamInterceptor(
			middleware.ChainStreamClient(streamLogger, c.streamAuth),
		),
	}
	if extra, ok := opts["dial_options"].([]grpc.DialOption); ok {
		c.dialOpts = append(c.dialOpts, extra...)
	}

	return c, nil
}

func (c *connector) Kind() marketfeed.ConnectionKind {
	return marketfeed.APISession
}

func (c *connector) Connect(
	ctx context.Context, feed *marketfeed.Feed,
) (marketfeed.Transport, error) {
	conn, err := grpc.DialContext(ctx, c.addr, c.dialOpts...)
	if err != nil {
		return nil, err
	}

	sessionID := randstr.Hex(16)
	pairs := feed.CurrencyPairs()
	req, err := newSessionRequest(sessionID, pairs)
	if err != nil {
		conn.Close()
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := relayClient{conn}.streamLiquidations(streamCtx, req)
	if err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	if err := waitAck(ctx, stream); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	t := marketfeed.NewSessionTransport(sessionID, conn, cancel)

	c.lock.Lock()
	c.sessions[sessionID] = t
	c.lock.Unlock()

	go c.listen(streamCtx, feed, t, stream, pairs)

	log.Debugf("relay: session %s started", sessionID)
	return t, nil
}

// CloseAPISession notifies the relay that the session is over, before the
// underlying connection gets closed.
func (c *connector) CloseAPISession(t marketfeed.Transport) error {
	session, ok := t.(*marketfeed.SessionTransport)
	if !ok {
		return ErrInvalidTransport
	}

	ctx, cancel := context.WithTimeout(context.Background(), endSessionTimeout)
	defer cancel()

	req, _ := structpb.NewStruct(map[string]interface{}{
		"session_id": session.ID(),
	})

	c.lock.Lock()
	c.ended[session.ID()] = struct{}{}
	c.lock.Unlock()

	if _, err := (relayClient{session.Conn()}).endSession(ctx, req); err != nil {
		return fmt.Errorf("failed to end session %s: %w", session.ID(), err)
	}
	return nil
}

// Cleanup forgets the sessions ended so far.
func (c *connector) Cleanup() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	for id := range c.ended {
		delete(c.sessions, id)
		delete(c.ended, id)
	}
	return true
}

func (c *connector) activeSessions() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.sessions)
}

func (c *connector) listen(
	ctx context.Context, feed *marketfeed.Feed, t *marketfeed.SessionTransport,
	stream grpc.ClientStream, pairs []marketfeed.CurrencyPair,
) {
	subscribed := make(map[marketfeed.CurrencyPair]struct{}, len(pairs))
	for _, p := range pairs {
		subscribed[p] = struct{}{}
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			// Stream canceled by the transport close.
			if ctx.Err() != nil {
				return
			}
			feed.Disconnected(t, err)
			return
		}

		feed.Touch()

		if msgType(msg) != MsgLiquidation {
			continue
		}
		liquidation, err := parseLiquidation(msg)
		if err != nil {
			log.WithError(err).Warn("relay: skipping malformed liquidation")
			continue
		}
		if _, ok := subscribed[liquidation.Pair]; !ok {
			continue
		}
		if _, err := feed.Emit(marketfeed.EventLiquidation, liquidation); err != nil {
			log.WithError(err).Warn("relay: failed to publish liquidation")
		}
	}
}

func waitAck(ctx context.Context, stream grpc.ClientStream) error {
	ack := make(chan error, 1)
	go func() {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			ack <- err
			return
		}
		if msgType(msg) != MsgSessionStarted {
			ack <- fmt.Errorf("%w: got message of type %q", ErrUnexpectedAck, msgType(msg))
			return
		}
		ack <- nil
	}()

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newSessionRequest(
	sessionID string, pairs []marketfeed.CurrencyPair,
) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(pairs))
	for _, p := range pairs {
		list = append(list, p.String())
	}
	return structpb.NewStruct(map[string]interface{}{
		"session_id": sessionID,
		"pairs":      list,
	})
}

func msgType(msg *structpb.Struct) string {
	return msg.GetFields()["type"].GetStringValue()
}

func parseLiquidation(msg *structpb.Struct) (marketfeed.Liquidation, error) {
	fields := msg.GetFields()

	pair, err := marketfeed.ParseCurrencyPair(fields["pair"].GetStringValue())
	if err != nil {
		return marketfeed.Liquidation{}, err
	}
	price, err := parseDecimal(fields["price"])
	if err != nil {
		return marketfeed.Liquidation{}, fmt.Errorf("invalid price: %w", err)
	}
	quantity, err := parseDecimal(fields["quantity"])
	if err != nil {
		return marketfeed.Liquidation{}, fmt.Errorf("invalid quantity: %w", err)
	}

	return marketfeed.Liquidation{
		OrderID:  fields["order_id"].GetStringValue(),
		Symbol:   fields["symbol"].GetStringValue(),
		Pair:     pair,
		Side:     fields["side"].GetStringValue(),
		Price:    price,
		Quantity: quantity,
	}, nil
}

func parseDecimal(v *structpb.Value) (decimal.Decimal, error) {
	switch v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return decimal.NewFromString(v.GetStringValue())
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(v.GetNumberValue()), nil
	default:
		return decimal.Zero, fmt.Errorf("missing value")
	}
}
