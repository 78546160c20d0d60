package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator mints ids for collections, fields and records that are saved
// without one.
type IDGenerator interface {
	CollectionID() string
	FieldID() string
	RecordID() string
}

// UUIDGenerator derives ids from random (v4) and time-ordered (v7) UUIDs.
//
// Collection ids are 15 characters and field ids 8, matching the lengths of
// ids in exported collection JSON. Record ids are full UUIDv7 hex so they sort
// by creation time.
type UUIDGenerator struct{}

func (UUIDGenerator) CollectionID() string { return hexUUID(uuid.New())[:15] }

func (UUIDGenerator) FieldID() string { return hexUUID(uuid.New())[:8] }

func (UUIDGenerator) RecordID() string { return hexUUID(uuid.Must(uuid.NewV7())) }

func hexUUID(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")
}

// SequenceGenerator returns predictable ids ("col001", "fld001", "rec001", ...)
// for deterministic tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu sync.Mutex
	n  map[string]int
}

func (g *SequenceGenerator) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == nil {
		g.n = make(map[string]int)
	}
	g.n[prefix]++
	return fmt.Sprintf("%s%03d", prefix, g.n[prefix])
}

func (g *SequenceGenerator) CollectionID() string { return g.next("col") }
func (g *SequenceGenerator) FieldID() string      { return g.next("fld") }
func (g *SequenceGenerator) RecordID() string     { return g.next("rec") }
