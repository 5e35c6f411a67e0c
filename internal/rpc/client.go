package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/battwatch/battwatch/internal/diagnose"
)

// Health is the decoded Health response.
type Health struct {
	OK  bool   `json:"ok"`
	Now string `json:"now"`
}

// Client is a typed client for the Diagnostics service.
type Client struct {
	conn   *grpc.ClientConn
	header string
	key    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sends key in the header metadata entry on every call.
func WithAPIKey(header, key string) ClientOption {
	return func(c *Client) {
		c.header = header
		c.key = key
	}
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn, opts ...ClientOption) *Client {
	c := &Client{conn: conn}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial connects to endpoint without transport security and returns a Client.
// The caller must Close it.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.DialContext(ctx, endpoint, //nolint:staticcheck // DialContext kept for grpc 1.62 compat
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", endpoint, err)
	}
	return NewClient(conn, opts...), nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.key == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, c.header, c.key)
}

// GetLatest fetches the current diagnostic record.
func (c *Client) GetLatest(ctx context.Context) (*diagnose.Record, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), MethodGetLatest, &emptypb.Empty{}, out); err != nil {
		return nil, fmt.Errorf("rpc: get latest: %w", err)
	}
	rec := new(diagnose.Record)
	if err := decode(out, rec); err != nil {
		return nil, fmt.Errorf("rpc: get latest: %w", err)
	}
	return rec, nil
}

// ListSamples fetches the raw dataset, one JSON document per sample.
func (c *Client) ListSamples(ctx context.Context) ([]json.RawMessage, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(c.outgoing(ctx), MethodListSamples, &emptypb.Empty{}, out); err != nil {
		return nil, fmt.Errorf("rpc: list samples: %w", err)
	}
	var raw []json.RawMessage
	if err := decode(out, &raw); err != nil {
		return nil, fmt.Errorf("rpc: list samples: %w", err)
	}
	return raw, nil
}

// Health calls the liveness probe.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), MethodHealth, &emptypb.Empty{}, out); err != nil {
		return nil, fmt.Errorf("rpc: health: %w", err)
	}
	h := new(Health)
	if err := decode(out, h); err != nil {
		return nil, fmt.Errorf("rpc: health: %w", err)
	}
	return h, nil
}

// decode converts a well-known JSON-shaped message into v via its JSON form.
func decode(m proto.Message, v interface{}) error {
	data, err := protojson.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
