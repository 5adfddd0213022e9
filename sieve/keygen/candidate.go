// Package keygen produces candidate keypairs and their addresses.
package keygen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const seedSize = 32

var (
	// ErrInvalidScalar is returned for a seed that is zero or not below the
	// curve order.
	ErrInvalidScalar = errors.New("seed is not a valid private scalar")
	// ErrSourceExhausted is returned by finite sources once every scripted
	// candidate has been handed out.
	ErrSourceExhausted = errors.New("candidate source exhausted")
)

// Candidate is one generated keypair and the address derived from it.
type Candidate struct {
	Secret      string // WIF, compressed
	SecretHex   string
	Public      string // compressed SEC, hex
	Address     string
	GeneratedAt time.Time
}

// String never includes secret material.
func (c Candidate) String() string {
	return fmt.Sprintf("candidate(%s)", c.Address)
}

// Deriver turns a 32-byte seed into a candidate.
type Deriver interface {
	Derive(seed []byte) (Candidate, error)
}

// Source yields candidates one at a time.
type Source interface {
	Next() (Candidate, error)
}

// Generator draws a fresh seed from a secure random source on every call.
// It holds no state between calls and is safe for concurrent use when its
// reader is.
type Generator struct {
	rand    io.Reader
	deriver Deriver
}

// NewGenerator creates a Generator reading from crypto/rand.
func NewGenerator(deriver Deriver) *Generator {
	return NewGeneratorWithReader(rand.Reader, deriver)
}

// NewGeneratorWithReader creates a Generator reading seeds from r.
func NewGeneratorWithReader(r io.Reader, deriver Deriver) *Generator {
	return &Generator{rand: r, deriver: deriver}
}

// Next reads a seed and derives a candidate from it.
func (g *Generator) Next() (Candidate, error) {
	var seed [seedSize]byte
	if _, err := io.ReadFull(g.rand, seed[:]); err != nil {
		return Candidate{}, fmt.Errorf("failed to read seed: %w", err)
	}
	return g.deriver.Derive(seed[:])
}

// FixedSource hands out a scripted list of candidates, then returns
// ErrSourceExhausted. It is safe for concurrent use.
type FixedSource struct {
	mu         sync.Mutex
	candidates []Candidate
	next       int
}

// NewFixedSource creates a source that emits one candidate per address.
func NewFixedSource(addresses ...string) *FixedSource {
	candidates := make([]Candidate, len(addresses))
	for i, a := range addresses {
		candidates[i] = Candidate{
			Secret:    fmt.Sprintf("secret-%d", i),
			SecretHex: fmt.Sprintf("%064x", i+1),
			Public:    fmt.Sprintf("public-%d", i),
			Address:   a,
		}
	}
	return NewFixedSourceOf(candidates...)
}

// NewFixedSourceOf creates a source that emits candidates in order.
func NewFixedSourceOf(candidates ...Candidate) *FixedSource {
	return &FixedSource{candidates: candidates}
}

// Next returns the next scripted candidate.
func (s *FixedSource) Next() (Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.candidates) {
		return Candidate{}, ErrSourceExhausted
	}
	c := s.candidates[s.next]
	s.next++
	if c.GeneratedAt.IsZero() {
		c.GeneratedAt = time.Now().UTC()
	}
	return c, nil
}

// Remaining returns how many candidates have not been handed out yet.
func (s *FixedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates) - s.next
}
