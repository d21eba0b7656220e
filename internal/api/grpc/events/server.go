package events

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
)

// Sink abstracts whatever consumes accepted events.
type Sink interface {
	Accept(ctx context.Context, event release.Event) error
}

// Server implements EventServiceServer.
type Server struct {
	// sink receives validated events.
	sink Sink
	// apiKey, when set, must match the caller's metadata.
	apiKey string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAPIKey rejects callers that do not present key.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// NewServer wires the provided sink into a gRPC handler.
func NewServer(sink Sink, opts ...ServerOption) *Server {
	s := &Server{
		sink: sink,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// PushEvent validates and accepts one event.
func (s *Server) PushEvent(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	if !s.authorized(ctx) {
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}

	event, err := release.EventFromFields(req.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err = s.sink.Accept(ctx, event); err != nil {
		logger.ErrorKV(ctx, "Failed to accept event", "id", event.ID, "error", err)

		return nil, status.Error(codes.Internal, "unable to accept event")
	}

	return new(emptypb.Empty), nil
}

func (s *Server) authorized(ctx context.Context) bool {
	if s.apiKey == "" {
		return true
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return false
	}

	values := md.Get(MetadataAPIKey)
	if len(values) == 0 {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(values[0]), []byte(s.apiKey)) == 1
}
