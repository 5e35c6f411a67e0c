package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/battwatch/battwatch/internal/diagnose"
)

// LatestReader returns the current diagnostic record.
type LatestReader interface {
	Latest() *diagnose.Record
}

// Service implements DiagnosticsServer on top of the scheduler's latest
// record and the raw dataset.
type Service struct {
	latest  LatestReader
	samples *structpb.ListValue
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source reported by Health.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service. raw is converted to a ListValue once.
func NewService(latest LatestReader, raw []json.RawMessage, opts ...ServiceOption) (*Service, error) {
	if raw == nil {
		raw = []json.RawMessage{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode dataset: %w", err)
	}
	samples := &structpb.ListValue{}
	if err := protojson.Unmarshal(data, samples); err != nil {
		return nil, fmt.Errorf("rpc: convert dataset: %w", err)
	}

	s := &Service{latest: latest, samples: samples, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// GetLatest returns the most recent record as a Struct.
func (s *Service) GetLatest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	rec := s.latest.Latest()
	if rec == nil {
		return nil, status.Error(codes.Unavailable, "no record derived yet")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "convert record: %v", err)
	}
	return out, nil
}

// ListSamples returns the dataset as loaded.
func (s *Service) ListSamples(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	return s.samples, nil
}

// Health reports liveness independent of derivation state.
func (s *Service) Health(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":  structpb.NewBoolValue(true),
		"now": structpb.NewStringValue(diagnose.FormatTimestamp(s.now())),
	}}, nil
}
