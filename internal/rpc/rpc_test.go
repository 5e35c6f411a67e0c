package rpc_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/battwatch/battwatch/internal/auth"
	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/rpc"
	"github.com/battwatch/battwatch/internal/scheduler"
	"github.com/battwatch/battwatch/internal/telemetry"
)

const dataset = `[
  {"temp": 47, "voltage": 376, "current": -130, "soc": 12, "soh": 70, "pack": "P-7"},
  {"enc": {"temp": 30, "voltage": 360, "current": 20, "soc": 85, "soh": 95}}
]`

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type nilLatest struct{}

func (nilLatest) Latest() *diagnose.Record { return nil }

// startServer serves svc on a loopback TCP listener behind the API key
// interceptor and returns the address.
func startServer(t *testing.T, svc rpc.DiagnosticsServer, key string) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := grpc.NewServer(grpc.UnaryInterceptor(auth.APIKeyInterceptor("apikey", "x-api-key", key)))
	rpc.Register(gs, svc)

	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	return lis.Addr().String()
}

func dial(t *testing.T, addr string, opts ...rpc.ClientOption) *rpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.Dial(ctx, addr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newService(t *testing.T) (*rpc.Service, *scheduler.Scheduler) {
	t.Helper()
	ds, err := telemetry.Parse([]byte(dataset))
	require.NoError(t, err)
	sched, err := scheduler.New(ds.Samples, scheduler.WithClock(func() time.Time { return start }))
	require.NoError(t, err)
	svc, err := rpc.NewService(sched, ds.Raw, rpc.WithClock(func() time.Time { return start.Add(90 * time.Second) }))
	require.NoError(t, err)
	return svc, sched
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetLatest(t *testing.T) {
	svc, _ := newService(t)
	c := dial(t, startServer(t, svc, ""))

	rec, err := c.GetLatest(callCtx(t))
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01T00:00:00.000Z", rec.Timestamp)
	assert.Equal(t, telemetry.Sample{Temp: 47, Voltage: 376, Current: -130, SoC: 12, SoH: 70}, rec.Telemetry)
	assert.Equal(t, 61, rec.Diagnostics.HealthScore)
	assert.Equal(t, 30, rec.Diagnostics.RULMonths)
	assert.Equal(t, []string{
		diagnose.AnomalyHighTemperature,
		diagnose.AnomalyOvervoltage,
		diagnose.AnomalyLowSoC,
	}, rec.Diagnostics.Anomalies)
}

func TestGetLatest_MatchesDerive(t *testing.T) {
	svc, sched := newService(t)
	c := dial(t, startServer(t, svc, ""))

	sched.Tick(start.Add(3 * time.Second))
	want := sched.Tick(start.Add(6 * time.Second))

	got, err := c.GetLatest(callCtx(t))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetLatest_NoRecordIsUnavailable(t *testing.T) {
	svc, err := rpc.NewService(nilLatest{}, nil)
	require.NoError(t, err)
	c := dial(t, startServer(t, svc, ""))

	_, err = c.GetLatest(callCtx(t))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestListSamples_ReturnsRawDataset(t *testing.T) {
	svc, _ := newService(t)
	c := dial(t, startServer(t, svc, ""))

	raw, err := c.ListSamples(callCtx(t))
	require.NoError(t, err)
	require.Len(t, raw, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(raw[0], &first))
	assert.Equal(t, "P-7", first["pack"])

	var second struct {
		Enc map[string]float64 `json:"enc"`
	}
	require.NoError(t, json.Unmarshal(raw[1], &second))
	assert.Equal(t, 95.0, second.Enc["soh"])
}

func TestListSamples_EmptyDataset(t *testing.T) {
	svc, err := rpc.NewService(nilLatest{}, nil)
	require.NoError(t, err)
	c := dial(t, startServer(t, svc, ""))

	raw, err := c.ListSamples(callCtx(t))
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestHealth(t *testing.T) {
	svc, err := rpc.NewService(nilLatest{}, nil, rpc.WithClock(func() time.Time { return start.Add(1500 * time.Millisecond) }))
	require.NoError(t, err)
	c := dial(t, startServer(t, svc, ""))

	h, err := c.Health(callCtx(t))
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.Equal(t, "2024-01-01T00:00:01.500Z", h.Now)
}

func TestAuth(t *testing.T) {
	svc, _ := newService(t)
	addr := startServer(t, svc, "s3cret")

	tests := []struct {
		name     string
		opts     []rpc.ClientOption
		wantCode codes.Code
	}{
		{"no key", nil, codes.Unauthenticated},
		{"wrong key", []rpc.ClientOption{rpc.WithAPIKey("x-api-key", "nope")}, codes.Unauthenticated},
		{"wrong header", []rpc.ClientOption{rpc.WithAPIKey("x-other", "s3cret")}, codes.Unauthenticated},
		{"correct key", []rpc.ClientOption{rpc.WithAPIKey("x-api-key", "s3cret")}, codes.OK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := dial(t, addr, tc.opts...)
			_, err := c.GetLatest(callCtx(t))
			assert.Equal(t, tc.wantCode, status.Code(err))
		})
	}
}
