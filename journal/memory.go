package journal

import "sync"

// MemoryJournal keeps the ledger in process.
type MemoryJournal struct {
	mu   sync.Mutex
	rows []LedgerRow
}

func NewMemory() *MemoryJournal { return &MemoryJournal{} }

func (j *MemoryJournal) Record(r LedgerRow) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r.Seq = int64(len(j.rows) + 1)
	j.rows = append(j.rows, r)
	return nil
}

func (j *MemoryJournal) Rows() ([]LedgerRow, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]LedgerRow, len(j.rows))
	copy(out, j.rows)
	return out, nil
}

func (j *MemoryJournal) Close() error { return nil }

// Discard drops every row.
type Discard struct{}

func (Discard) Record(LedgerRow) error { return nil }
func (Discard) Close() error           { return nil }
