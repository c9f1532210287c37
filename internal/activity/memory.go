package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger is an in-memory, thread-safe Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewMemoryLedger creates a ledger holding only the genesis entry.
func NewMemoryLedger() *MemoryLedger {
	l := &MemoryLedger{now: func() time.Time { return time.Now().UTC() }}
	l.entries = append(l.entries, genesis(l.now()))
	return l
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, rec Record, payload any) (*Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.entries[len(l.entries)-1]
	entry := &Entry{
		Index:       len(l.entries),
		Timestamp:   l.now(),
		ReportID:    rec.ReportID,
		UserID:      rec.UserID,
		UserName:    rec.UserName,
		Action:      rec.Action,
		Description: rec.Description,
		DataHash:    sha256Sum(payloadJSON),
		PrevHash:    prev.Hash,
	}
	entry.Hash = hashEntry(entry)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// ForReport implements Ledger.
func (l *MemoryLedger) ForReport(_ context.Context, reportID string) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Entry
	for _, e := range l.entries[1:] {
		if e.ReportID == reportID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Ledger.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var prev *Entry
	for _, curr := range l.entries {
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

// tamper rewrites an entry in place. Tests only.
func (l *MemoryLedger) tamper(index int, fn func(*Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.entries[index])
}
