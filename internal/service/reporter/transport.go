package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oshokin/agent-updater/internal/api/grpc/events"
	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/service/common"
)

// ErrBadHTTPStatus is returned when the events endpoint does not answer 200.
var ErrBadHTTPStatus = common.ErrBadHTTPStatus

// deviceKeyHeader carries the device key on HTTP requests.
const deviceKeyHeader = "X-Device-Key"

// HTTPTransport posts events as JSON.
type HTTPTransport struct {
	client      common.HTTPClient
	url         string
	credentials Credentials
}

// NewHTTPTransport creates a transport posting to eventsURL.
func NewHTTPTransport(eventsURL string, credentials Credentials, client common.HTTPClient) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPTransport{
		client:      client,
		url:         eventsURL,
		credentials: credentials,
	}
}

// Push posts the event and expects 200.
func (t *HTTPTransport) Push(ctx context.Context, event release.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(deviceKeyHeader, t.credentials.DeviceKey)
	req.SetBasicAuth(t.credentials.APIKey, "x")

	response, err := t.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", t.url, response.Status, ErrBadHTTPStatus)
	}

	return nil
}

// GRPCTransport pushes events to the EventService.
type GRPCTransport struct {
	client *events.Client
}

// NewGRPCTransport dials address.
func NewGRPCTransport(
	ctx context.Context,
	address string,
	credentials Credentials,
	timeout time.Duration,
) (*GRPCTransport, error) {
	client, err := events.Dial(ctx, address,
		events.WithCallTimeout(timeout),
		events.WithCredentials(credentials.APIKey, credentials.DeviceKey),
	)
	if err != nil {
		return nil, err
	}

	return &GRPCTransport{client: client}, nil
}

// Push delivers the event over gRPC.
func (t *GRPCTransport) Push(ctx context.Context, event release.Event) error {
	return t.client.PushEvent(ctx, event)
}

// Close releases the connection.
func (t *GRPCTransport) Close() error {
	return t.client.Close()
}
