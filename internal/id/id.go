// Package id generates time-sortable record identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints strictly increasing ULIDs. The embedded timestamp never
// goes below the last one issued, so a caller passing an earlier time still
// gets an id that sorts after every previous one.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    ulid.ULID
}

// NewGenerator returns a generator with its own entropy stream.
func NewGenerator() *Generator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// At returns an id stamped with t, or with the last issued millisecond if t
// is earlier.
func (g *Generator) At(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(t.UTC())
	if last := g.last.Time(); ms < last {
		ms = last
	}
	v, err := ulid.New(ms, g.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		// Entropy for this millisecond is exhausted; move to the next one.
		v, err = ulid.New(ms+1, g.entropy)
	}
	if err != nil {
		panic(err)
	}
	g.last = v
	return v.String()
}

// New returns an id for the current time.
func (g *Generator) New() string {
	return g.At(time.Now())
}

var std = NewGenerator()

// New returns a ULID for the current time from the process-wide generator.
// IDs from one generator are strictly increasing, so sorting by id matches
// creation order.
func New() string {
	return std.New()
}

// At returns a ULID stamped with t from the process-wide generator.
func At(t time.Time) string {
	return std.At(t)
}
