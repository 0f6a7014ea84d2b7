package ids

import (
	"fmt"
	"github.com/google/uuid"
	"sync"
)

// Generator hands out unique identifiers.
type Generator interface {
	Next() string
}

// UUIDGenerator produces random v4 UUIDs, optionally prefixed.
type UUIDGenerator struct {
	Prefix string
}

func NewUUIDGenerator(prefix string) UUIDGenerator {
	return UUIDGenerator{Prefix: prefix}
}

func (g UUIDGenerator) Next() string {
	return g.Prefix + uuid.NewString()
}

// Sequence is a deterministic Generator: prefix-1, prefix-2, ...
type Sequence struct {
	prefix string
	mu     sync.Mutex
	n      int
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}
