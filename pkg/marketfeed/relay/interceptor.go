package relayfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	log "github.com/sirupsen/logrus"
	"github.com/thanhpk/randstr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const tokenTTL = time.Minute

func unaryLogger(
	ctx context.Context, method string, req, reply interface{},
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption,
) error {
	log.Debug(method)
	return invoker(ctx, method, req, reply, cc, opts...)
}

func streamLogger(
	ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn,
	method string, streamer grpc.Streamer, opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	log.Debug(method)
	return streamer(ctx, desc, cc, method, opts...)
}

func (c *connector) unaryAuth(
	ctx context.Context, method string, req, reply interface{},
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption,
) error {
	ctx, err := c.withAuth(ctx)
	if err != nil {
		return err
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *connector) streamAuth(
	ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn,
	method string, streamer grpc.Streamer, opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	ctx, err := c.withAuth(ctx)
	if err != nil {
		return nil, err
	}
	return streamer(ctx, desc, cc, method, opts...)
}

// withAuth attaches a short-lived HS256 bearer token to the outgoing
// metadata. Anonymous connectors send no credentials.
func (c *connector) withAuth(ctx context.Context) (context.Context, error) {
	if len(c.apiKey) <= 0 {
		return ctx, nil
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Issuer:    c.apiKey,
		Id:        randstr.Hex(8),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(c.apiSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign relay token: %w", err)
	}

	return metadata.AppendToOutgoingContext(
		ctx, "authorization", fmt.Sprintf("Bearer %s", signed),
	), nil
}
