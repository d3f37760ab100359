package membership

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SessionGenerator produces room session tokens.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session tokens, so session
// ids in logs sort by the time the local participant entered the room.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens, then numbered fallbacks
// once they run out. Safe for concurrent use.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next token. After the list is exhausted it returns
// "session-<n>" with n counting every call from 1.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.tokens) {
		return g.tokens[g.idx-1]
	}
	return fmt.Sprintf("session-%d", g.idx)
}

// Clock numbers evaluation passes. Strictly increasing, never reset
// within a Context, so pass numbers stay unique across sessions.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next pass number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last pass number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
