// Command battwatchctl queries a running battwatch server over gRPC and
// reads its Prometheus endpoint.
//
//	battwatchctl [flags] latest|samples|health|metrics
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/battwatch/battwatch/internal/metrics"
	"github.com/battwatch/battwatch/internal/rpc"
)

type options struct {
	endpoint   string
	metricsURL string
	header     string
	keyEnv     string
	timeout    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.endpoint, "endpoint", "localhost:50051", "gRPC endpoint (host:port)")
	flag.StringVar(&opts.metricsURL, "metrics-url", "http://localhost:4000/metrics", "Prometheus endpoint for the metrics command")
	flag.StringVar(&opts.header, "header", "x-api-key", "API key metadata header")
	flag.StringVar(&opts.keyEnv, "key-env", "BATTWATCH_API_KEY", "environment variable holding the API key")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: battwatchctl [flags] latest|samples|health|metrics\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if err := run(ctx, os.Stdout, flag.Arg(0), opts); err != nil {
		slog.Error("battwatchctl failed", "cmd", flag.Arg(0), "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, cmd string, opts options) error {
	if cmd == "metrics" {
		return printMetrics(ctx, w, opts.metricsURL)
	}

	var clientOpts []rpc.ClientOption
	if key := os.Getenv(opts.keyEnv); key != "" {
		clientOpts = append(clientOpts, rpc.WithAPIKey(opts.header, key))
	}
	client, err := rpc.Dial(ctx, opts.endpoint, clientOpts...)
	if err != nil {
		return err
	}
	defer client.Close()

	var v interface{}
	switch cmd {
	case "latest":
		v, err = client.GetLatest(ctx)
	case "samples":
		v, err = client.ListSamples(ctx)
	case "health":
		v, err = client.Health(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// summaryMetrics are printed by the metrics command, in order.
var summaryMetrics = []string{
	"battwatch_health_score",
	"battwatch_rul_months",
	"battwatch_temperature_celsius",
	"battwatch_voltage_volts",
	"battwatch_current_amperes",
	"battwatch_soc_percent",
	"battwatch_soh_percent",
	"battwatch_ticks_total",
	"battwatch_cursor",
}

func printMetrics(ctx context.Context, w io.Writer, url string) error {
	mfs, err := metrics.Fetch(ctx, &http.Client{}, url)
	if err != nil {
		return err
	}

	for _, name := range summaryMetrics {
		if v, ok := metrics.Value(mfs, name, nil); ok {
			fmt.Fprintf(w, "%-32s %g\n", name, v)
		}
	}

	var active []string
	if mf := mfs["battwatch_anomaly"]; mf != nil {
		for _, m := range mf.GetMetric() {
			if m.GetGauge().GetValue() != 1 {
				continue
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "name" {
					active = append(active, lp.GetValue())
				}
			}
		}
	}
	sort.Strings(active)
	fmt.Fprintf(w, "%-32s %v\n", "anomalies", active)
	return nil
}
