package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/domain/release"
)

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Client pushes events to a remote EventService.
type Client struct {
	// conn is the underlying gRPC connection.
	conn *grpc.ClientConn

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// apiKey and deviceKey are attached to every call as metadata.
	apiKey    string
	deviceKey string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithCredentials attaches the account and device keys to every call.
func WithCredentials(apiKey, deviceKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
		c.deviceKey = deviceKey
	}
}

// Dial establishes a gRPC connection to the event service.
// Note: this uses insecure transport credentials; terminate TLS in a proxy
// when the endpoint is not on a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial event service: %w", err)
	}

	client := &Client{
		conn:        conn,
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// PushEvent delivers one event.
func (c *Client) PushEvent(ctx context.Context, event release.Event) error {
	payload, err := structpb.NewStruct(event.Fields())
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	callCtx = metadata.AppendToOutgoingContext(callCtx,
		MetadataAPIKey, c.apiKey,
		MetadataDeviceKey, c.deviceKey,
	)

	if err = c.conn.Invoke(callCtx, PushEventMethod, payload, new(emptypb.Empty)); err != nil {
		return fmt.Errorf("push event: %w", err)
	}

	return nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
