package config

import (
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CXEMU_GRPC_ADDR", "CXEMU_AUDIT_BUFFER", "CXEMU_LOG_LEVEL", "CXEMU_SEED"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.GRPCAddr != ":50051" {
		t.Fatalf("grpc addr: got %q", cfg.GRPCAddr)
	}
	if cfg.AuditBuffer != 1024 {
		t.Fatalf("audit buffer: got %d", cfg.AuditBuffer)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("level: got %v", cfg.SlogLevel())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CXEMU_GRPC_ADDR", "127.0.0.1:9999")
	t.Setenv("CXEMU_RATE_LIMIT_RPS", "7")
	t.Setenv("CXEMU_AUDIT_BUFFER", "not-a-number")
	t.Setenv("CXEMU_LOG_LEVEL", "DEBUG")

	cfg := Load()
	if cfg.GRPCAddr != "127.0.0.1:9999" {
		t.Fatalf("grpc addr: got %q", cfg.GRPCAddr)
	}
	if cfg.RateLimitRPS != 7 {
		t.Fatalf("rps: got %d", cfg.RateLimitRPS)
	}
	if cfg.AuditBuffer != 1024 {
		t.Fatalf("invalid int should fall back, got %d", cfg.AuditBuffer)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("level: got %v", cfg.SlogLevel())
	}
}

func TestMnemonicToSeedVector(t *testing.T) {
	// BIP-39 vector: "abandon" x11 "about" with passphrase TREZOR.
	m := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	want := "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04"
	if got := hex.EncodeToString(MnemonicToSeed(m, "TREZOR")); got != want {
		t.Fatalf("seed: got %s", got)
	}
	// Extra whitespace is not significant.
	if got := hex.EncodeToString(MnemonicToSeed("  "+m+"\n", "TREZOR")); got != want {
		t.Fatalf("seed with whitespace: got %s", got)
	}
}

func TestLoadSeedDefaultMnemonic(t *testing.T) {
	seed, err := Config{}.LoadSeed()
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	want := "b11997faff420a331bb4a4ffdc8bdc8ba7c01732a99a30d83dbbebd469666c84b47d09d3f5f472b3b9384ac634beba2a440ba36ec7661144132f35e206873564"
	if hex.EncodeToString(seed) != want {
		t.Fatalf("default seed: got %x", seed)
	}
}

func TestLoadSeedHexAndFile(t *testing.T) {
	seed, err := Config{Seed: "0x000102030405060708090a0b0c0d0e0f"}.LoadSeed()
	if err != nil {
		t.Fatalf("hex seed: %v", err)
	}
	if len(seed) != 16 || seed[15] != 0x0f {
		t.Fatalf("hex seed: got %x", seed)
	}

	if _, err := (Config{Seed: "00010203"}).LoadSeed(); err == nil {
		t.Fatal("short raw seed should fail")
	}

	path := filepath.Join(t.TempDir(), "seed")
	if err := os.WriteFile(path, []byte("000102030405060708090a0b0c0d0e0f\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fromFile, err := Config{Seed: "ignored words", SeedFile: path}.LoadSeed()
	if err != nil {
		t.Fatalf("file seed: %v", err)
	}
	if hex.EncodeToString(fromFile) != hex.EncodeToString(seed) {
		t.Fatalf("file seed: got %x", fromFile)
	}

	if _, err := (Config{SeedFile: filepath.Join(t.TempDir(), "missing")}).LoadSeed(); err == nil {
		t.Fatal("missing seed file should fail")
	}
}
