// Package audit records every coprocessor call asynchronously so that the
// request path never waits on log output.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Entry is one audited call. Code is the device status word of the outcome.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Operation   string            `json:"operation"`
	KeyID       string            `json:"key_id,omitempty"`
	Curve       string            `json:"curve,omitempty"`
	Code        uint32            `json:"code"`
	Error       string            `json:"error,omitempty"`
	PeerAddress string            `json:"peer_address,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// OK reports whether the audited call succeeded.
func (e Entry) OK() bool { return e.Code == cxerr.CodeOK }

// Filter selects entries in Query. Zero fields match everything.
type Filter struct {
	KeyID     string
	Operation string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Match reports whether e passes the filter. Limit is ignored.
func (f Filter) Match(e Entry) bool {
	switch {
	case f.KeyID != "" && e.KeyID != f.KeyID:
		return false
	case f.Operation != "" && e.Operation != f.Operation:
		return false
	case !f.Start.IsZero() && e.Timestamp.Before(f.Start):
		return false
	case !f.End.IsZero() && e.Timestamp.After(f.End):
		return false
	}
	return true
}

// Subscriber receives audit entries via a channel.
type Subscriber struct {
	C  chan Entry
	id string
}

// Logger fans audited calls out to an optional writer, an in-memory history
// and live subscribers.
type Logger struct {
	entries chan Entry
	out     io.Writer

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	store       []Entry

	done chan struct{}
}

// NewLogger creates a logger with the given buffer size and output writer.
func NewLogger(bufferSize int, out io.Writer) *Logger {
	l := &Logger{
		entries:     make(chan Entry, bufferSize),
		out:         out,
		subscribers: make(map[string]*Subscriber),
		done:        make(chan struct{}),
	}
	go l.processLoop()
	return l
}

// Record audits the outcome err of operation. It never blocks: when the
// buffer is full the entry is dropped with a warning.
func (l *Logger) Record(operation, keyID, curve, peerAddr string, err error, metadata map[string]string) {
	entry := Entry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Operation:   operation,
		KeyID:       keyID,
		Curve:       curve,
		Code:        cxerr.Code(err),
		PeerAddress: peerAddr,
		Metadata:    metadata,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	select {
	case l.entries <- entry:
	default:
		slog.Warn("audit log buffer full, dropping entry", "operation", operation)
	}
}

// Subscribe creates a new subscriber that receives entries via a buffered channel.
func (l *Logger) Subscribe() *Subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &Subscriber{
		C:  make(chan Entry, 64),
		id: uuid.NewString(),
	}
	l.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber.
func (l *Logger) Unsubscribe(sub *Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.subscribers[sub.id]; !ok {
		return
	}
	delete(l.subscribers, sub.id)
	close(sub.C)
}

// Query returns stored entries matching f, newest first.
func (l *Logger) Query(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for i := len(l.store) - 1; i >= 0; i-- {
		if !f.Match(l.store[i]) {
			continue
		}
		results = append(results, l.store[i])
		if f.Limit > 0 && len(results) >= f.Limit {
			break
		}
	}
	return results
}

// Close stops the processing loop and waits for it to finish.
func (l *Logger) Close() {
	close(l.entries)
	<-l.done
}

func (l *Logger) processLoop() {
	defer close(l.done)

	for entry := range l.entries {
		l.mu.Lock()
		l.store = append(l.store, entry)
		l.mu.Unlock()

		if l.out != nil {
			data, err := json.Marshal(entry)
			if err != nil {
				slog.Error("audit marshal", "error", err)
				continue
			}
			fmt.Fprintf(l.out, "%s\n", data)
		}

		// Slow subscribers miss entries rather than stall the loop.
		l.mu.RLock()
		for _, sub := range l.subscribers {
			select {
			case sub.C <- entry:
			default:
			}
		}
		l.mu.RUnlock()
	}
}
