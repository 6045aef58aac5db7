package cratermcp

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"pkt.systems/pslog"
)

func TestResolveOTLPTarget(t *testing.T) {
	tests := []struct {
		raw      string
		protocol string
		endpoint string
		path     string
		insecure bool
	}{
		{raw: "collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "collector:5555", protocol: "grpc", endpoint: "collector:5555", insecure: true},
		{raw: "grpc://collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "grpcs://collector", protocol: "grpc", endpoint: "collector:4317"},
		{raw: "http://collector", protocol: "http", endpoint: "collector:4318", insecure: true},
		{raw: "https://collector:443/v1/traces/", protocol: "http", endpoint: "collector:443", path: "/v1/traces"},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := resolveOTLPTarget(tc.raw)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got.protocol != tc.protocol || got.endpoint != tc.endpoint || got.path != tc.path || got.insecure != tc.insecure {
				t.Fatalf("unexpected target %+v", got)
			}
		})
	}
	if _, err := resolveOTLPTarget("ftp://collector"); err == nil {
		t.Fatal("expected unknown scheme error")
	}
}

func TestStartTelemetryDisabled(t *testing.T) {
	tel, err := StartTelemetry(context.Background(), TelemetryConfig{}, nil)
	if err != nil || tel != nil {
		t.Fatalf("expected nil telemetry, got %v %v", tel, err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
}

func TestStartTelemetryServesMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	logger := pslog.NewStructured(context.Background(), io.Discard)
	tel, err := StartTelemetry(context.Background(), TelemetryConfig{MetricsListen: addr}, logger)
	if err != nil {
		t.Fatalf("start telemetry: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	})

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "target_info") {
		t.Fatalf("expected target_info in scrape output")
	}
}

func TestStartTelemetryRuntimeMetricsNeedListener(t *testing.T) {
	if _, err := StartTelemetry(context.Background(), TelemetryConfig{RuntimeMetrics: true}, nil); err == nil {
		t.Fatal("expected error for runtime metrics without listener")
	}
}
