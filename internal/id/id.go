// Package id issues time-sortable identifiers for orders and closed trades.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Source hands out monotonic ULIDs. Identifiers created within the same
// millisecond still sort in creation order, which keeps ledger rows and
// SQLite indexes ordered by submission.
type Source struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewSource returns a Source seeded from crypto/rand.
func NewSource() *Source {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		now:     time.Now,
	}
}

// Next returns a new identifier with the given prefix ("ord", "trd", ...).
// An empty prefix yields the bare ULID.
func (s *Source) Next(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(s.now().UTC()), s.entropy)
	if err != nil {
		// only reachable if the clock runs backwards past the monotonic window
		panic(err)
	}
	if prefix == "" {
		return u.String()
	}
	return prefix + "_" + u.String()
}

var std = NewSource()

// Order returns a new order identifier.
func Order() string { return std.Next("ord") }

// Trade returns a new closed-trade identifier.
func Trade() string { return std.Next("trd") }
