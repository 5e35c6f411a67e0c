package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/battwatch/battwatch/internal/auth"
	"github.com/battwatch/battwatch/internal/metrics"
	"github.com/battwatch/battwatch/internal/rpc"
	"github.com/battwatch/battwatch/internal/scheduler"
	"github.com/battwatch/battwatch/internal/telemetry"
)

const testDataset = `[{"temp": 47, "voltage": 376, "current": -130, "soc": 12, "soh": 70}]`

func newScheduler(t *testing.T) (*scheduler.Scheduler, *telemetry.Dataset) {
	t.Helper()
	ds, err := telemetry.Parse([]byte(testDataset))
	require.NoError(t, err)
	sched, err := scheduler.New(ds.Samples, scheduler.WithInterval(time.Hour))
	require.NoError(t, err)
	return sched, ds
}

func startGRPC(t *testing.T, key string) string {
	t.Helper()
	sched, ds := newScheduler(t)

	svc, err := rpc.NewService(sched, ds.Raw)
	require.NoError(t, err)
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.APIKeyInterceptor(auth.ModeAPIKey, "x-api-key", key)))
	rpc.Register(srv, svc)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestRun_Latest(t *testing.T) {
	addr := startGRPC(t, "k")
	t.Setenv("BATTWATCH_TEST_KEY", "k")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, &out, "latest", options{endpoint: addr, header: "x-api-key", keyEnv: "BATTWATCH_TEST_KEY"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"healthScore": 61`)
	assert.Contains(t, out.String(), `"Low SoC"`)
}

func TestRun_MissingKeyRejected(t *testing.T) {
	addr := startGRPC(t, "k")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, &out, "health", options{endpoint: addr, header: "x-api-key", keyEnv: "BATTWATCH_UNSET_KEY"})
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	addr := startGRPC(t, "")

	err := run(context.Background(), &bytes.Buffer{}, "reboot", options{endpoint: addr})
	assert.ErrorContains(t, err, `unknown command "reboot"`)
}

func TestRun_Metrics(t *testing.T) {
	sched, ds := newScheduler(t)
	m := metrics.New(sched, ds.Len())

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	err := run(context.Background(), &out, "metrics", options{metricsURL: srv.URL + "/metrics"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "battwatch_health_score")
	assert.Contains(t, out.String(), "61")
	assert.Contains(t, out.String(), "[High Temperature Low SoC Overvoltage]")
}
