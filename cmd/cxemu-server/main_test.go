package main

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glinharesb/cxemu/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		GRPCAddr:    "127.0.0.1:0",
		AuditBuffer: 8,
		Seed:        "000102030405060708090a0b0c0d0e0f",
	}
}

func TestRunReturnsStartupErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pem")
	cases := []struct {
		name   string
		mutate func(*config.Config)
		prefix string
	}{
		{"short seed", func(c *config.Config) { c.Seed = "0102" }, "load seed:"},
		{"missing tls files", func(c *config.Config) { c.TLSCert, c.TLSKey = missing, missing }, "tls:"},
		{"bad listen address", func(c *config.Config) { c.GRPCAddr = "127.0.0.1:-1" }, "listen:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := run(context.Background(), cfg, io.Discard)
			if err == nil || !strings.HasPrefix(err.Error(), tc.prefix) {
				t.Fatalf("expected a %q error, got %v", tc.prefix, err)
			}
		})
	}
}

func TestRunStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, testConfig(), io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}
}
