package audit

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Tests use logger.Close() to drain entries instead of time.Sleep,
// ensuring deterministic behavior with the race detector.

func TestRecordAndQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(100, &buf)

	logger.Record("DeriveKey", "key-1", "secp256k1", "127.0.0.1:50051", nil, nil)
	logger.Record("Sign", "key-1", "secp256k1", "127.0.0.1:50051", nil, nil)
	logger.Record("DeriveKey", "key-2", "Ed25519", "127.0.0.1:50051", nil, nil)

	// Close drains the channel and waits for the loop to finish.
	logger.Close()

	entries := logger.Query(Filter{KeyID: "key-1"})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for key-1, got %d", len(entries))
	}
	if entries[0].Operation != "Sign" {
		t.Fatalf("expected newest first, got %s", entries[0].Operation)
	}

	entries = logger.Query(Filter{Operation: "Sign"})
	if len(entries) != 1 {
		t.Fatalf("expected 1 Sign entry, got %d", len(entries))
	}

	// Safe to read buf now - processLoop has exited.
	if !strings.Contains(buf.String(), `"operation":"DeriveKey"`) {
		t.Fatal("expected DeriveKey in output")
	}
}

func TestRecordCarriesStatusWord(t *testing.T) {
	logger := NewLogger(100, nil)
	logger.Record("Sign", "key-1", "", "", fmt.Errorf("decode: %w", cxerr.ErrInvalidPoint), nil)
	logger.Record("Sign", "key-1", "", "", nil, nil)
	logger.Close()

	entries := logger.Query(Filter{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	failed := entries[1]
	if failed.OK() || failed.Code != cxerr.CodeInvalidPoint || failed.Error == "" {
		t.Fatalf("unexpected failed entry: %+v", failed)
	}
	if !entries[0].OK() {
		t.Fatalf("unexpected ok entry: %+v", entries[0])
	}
}

func TestQueryLimitAndTimeWindow(t *testing.T) {
	logger := NewLogger(100, nil)
	before := time.Now()
	for i := range 10 {
		logger.Record("Sign", "key-1", "", "", nil, map[string]string{"i": fmt.Sprint(i)})
	}
	logger.Close()

	if entries := logger.Query(Filter{Limit: 3}); len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries := logger.Query(Filter{Start: before}); len(entries) != 10 {
		t.Fatalf("expected 10 entries after start, got %d", len(entries))
	}
	if entries := logger.Query(Filter{End: before.Add(-time.Second)}); len(entries) != 0 {
		t.Fatalf("expected no entries before start, got %d", len(entries))
	}
}

func TestSubscribeReceivesEntries(t *testing.T) {
	logger := NewLogger(100, nil)
	defer logger.Close()

	sub := logger.Subscribe()
	defer logger.Unsubscribe(sub)

	logger.Record("Agree", "key-1", "", "", nil, nil)

	select {
	case entry := <-sub.C:
		if entry.Operation != "Agree" {
			t.Fatalf("expected Agree, got %s", entry.Operation)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive entry")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	logger := NewLogger(100, nil)
	defer logger.Close()

	sub := logger.Subscribe()
	logger.Unsubscribe(sub)
	logger.Unsubscribe(sub)

	// Channel should be closed
	_, ok := <-sub.C
	if ok {
		t.Fatal("expected closed channel")
	}
}

func TestEntryHasID(t *testing.T) {
	logger := NewLogger(100, nil)

	logger.Record("DeriveSymmetric", "", "", "", nil, nil)
	logger.Close()

	entries := logger.Query(Filter{})
	if len(entries) != 1 {
		t.Fatal("expected 1 entry")
	}
	if entries[0].ID == "" {
		t.Fatal("entry should have an ID")
	}
}
