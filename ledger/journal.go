package ledger

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Submission lifecycle values stored in the journal
const (
	SubmissionPending   = "pending"
	SubmissionConfirmed = "confirmed"
	SubmissionReverted  = "reverted"
)

// JournalEntry records the outcome of one submission attempt
type JournalEntry struct {
	TxHash     string    `json:"tx_hash"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Journal is a local, durable record of submitted mutating calls keyed
// by idempotency key. It lets a restarted or timed-out caller resolve
// "was my last submission actually mined" by re-querying the recorded
// hash instead of submitting again.
type Journal struct {
	db *badger.DB
}

// OpenJournal opens (or creates) the journal at the given path
func OpenJournal(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying store
func (j *Journal) Close() error {
	return j.db.Close()
}

func journalKey(key string) []byte {
	return append([]byte("sub:"), []byte(key)...)
}

// Record stores or updates the submission entry for the key
func (j *Journal) Record(key, txHash, status string) error {
	entry := JournalEntry{
		TxHash:     txHash,
		Status:     status,
		RecordedAt: time.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(key), raw)
	})
}

// Lookup returns the recorded entry for the key, if any
func (j *Journal) Lookup(key string) (JournalEntry, bool, error) {
	var entry JournalEntry
	found := false
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(journalKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	return entry, found, err
}
