// Package activity keeps a hash-chained log of who did what to which report.
//
// The chain begins with a genesis entry whose Hash equals GenesisHash.
// Every later entry records the hash of its predecessor, so Verify detects
// any edit or removal.
//
// Two implementations of Ledger are provided:
//   - MemoryLedger: in-process, for tests and single-node demos.
//   - PostgresLedger: durable, backed by the activity_log table.
package activity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the well-known hash of entry 0.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Actions recorded on reports.
const (
	ActionCreated       = "created"
	ActionEdited        = "edited"
	ActionStatusChanged = "status_changed"
	ActionNoteAdded     = "note_added"
	ActionCommented     = "commented"
	actionGenesis       = "genesis"
)

// Record is what a caller supplies for a new entry.
type Record struct {
	ReportID    string
	UserID      string
	UserName    string
	Action      string
	Description string
}

// Entry is a single activity record in the chain.
type Entry struct {
	Index       int       `json:"index"`
	Timestamp   time.Time `json:"timestamp"`
	ReportID    string    `json:"reportId"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	DataHash    string    `json:"dataHash"` // SHA-256 of the payload
	PrevHash    string    `json:"prevHash"`
	Hash        string    `json:"hash"`
}

// Ledger is the append-only activity log.
type Ledger interface {
	// Append chains a new entry. payload is JSON-encoded and only its hash
	// is kept.
	Append(ctx context.Context, rec Record, payload any) (*Entry, error)
	// ForReport returns the entries about one report, oldest first.
	ForReport(ctx context.Context, reportID string) ([]*Entry, error)
	// Len returns the number of entries including genesis.
	Len(ctx context.Context) (int, error)
	// Verify walks the chain and reports the first inconsistency.
	Verify(ctx context.Context) error
	// Root returns the hash of the newest entry.
	Root(ctx context.Context) (string, error)
}

func genesis(now time.Time) *Entry {
	return &Entry{
		Index:     0,
		Timestamp: now,
		Action:    actionGenesis,
		UserID:    "system",
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// hashEntry must never be called on the genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.ReportID, e.UserID, e.UserName, e.Action, e.Description,
		e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// verifyLink checks curr against its predecessor. prev is nil for genesis.
func verifyLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}
