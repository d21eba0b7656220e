package reporter

import (
	"context"
	"errors"
	"net/http"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/domain/release"
)

// errNoEndpoint is returned by Push when no events URL is configured.
var errNoEndpoint = errors.New("events endpoint is not configured")

type disabledTransport struct{}

func (disabledTransport) Push(context.Context, release.Event) error {
	return errNoEndpoint
}

// FromConfig builds a reporter with the transport selected in cfg.
// The returned close function releases transport resources.
func FromConfig(ctx context.Context, cfg *config.Config) (*Reporter, func() error, error) {
	credentials := Credentials{
		APIKey:    cfg.Events.APIKey,
		DeviceKey: cfg.Events.DeviceKey,
	}

	client := &http.Client{Timeout: cfg.Timeout}
	opts := []Option{
		WithGeoURL(cfg.Events.GeoURL),
		WithHTTPClient(client),
	}

	noop := func() error { return nil }

	switch {
	case cfg.Events.URL == "":
		return New(disabledTransport{}, credentials, opts...), noop, nil
	case cfg.Events.Transport == config.TransportGRPC:
		transport, err := NewGRPCTransport(ctx, cfg.Events.URL, credentials, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}

		return New(transport, credentials, opts...), transport.Close, nil
	default:
		transport := NewHTTPTransport(cfg.Events.URL, credentials, client)

		return New(transport, credentials, opts...), noop, nil
	}
}
