package migrate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/catalogmigrate/internal/store"
)

// Func is one direction of a migration. It receives the catalog handle of
// the step's transaction.
type Func func(ctx context.Context, cat store.Catalog) error

// Migration is a reversible catalog change.
type Migration struct {
	// ID is "<unix-timestamp>_<description>". Migrations run in ascending ID order.
	ID          string
	Description string
	Up          Func
	// Down may be nil for an irreversible migration.
	Down Func
}

var idPattern = regexp.MustCompile(`^[0-9]+_[a-zA-Z0-9_]+$`)

func (m Migration) validate() error {
	if !idPattern.MatchString(m.ID) {
		return fmt.Errorf("migration id %q must look like <timestamp>_<name>", m.ID)
	}
	if m.Up == nil {
		return fmt.Errorf("migration %q has no up function", m.ID)
	}
	return nil
}

// CompareIDs orders migration ids by their numeric timestamp prefix, then
// by the remainder. "999_a" sorts before "1000_b".
func CompareIDs(a, b string) int {
	pa, ra := splitID(a)
	pb, rb := splitID(b)
	if c := len(pa) - len(pb); c != 0 {
		if c < 0 {
			return -1
		}
		return 1
	}
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	return strings.Compare(ra, rb)
}

// splitID returns the timestamp prefix without leading zeros and the rest of id.
func splitID(id string) (prefix, rest string) {
	i := strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' })
	if i < 0 {
		i = len(id)
	}
	return strings.TrimLeft(id[:i], "0"), id[i:]
}

// Direction is the way a migration step runs.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

var (
	// ErrNotRegistered is returned when an applied migration has no
	// registered definition and therefore cannot be reverted.
	ErrNotRegistered = errors.New("migration is not registered")

	// ErrIrreversible is returned when reverting a migration without Down.
	ErrIrreversible = errors.New("migration has no down function")
)

// MigrationError reports the failed step of a run.
type MigrationError struct {
	ID        string
	Direction Direction
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.ID, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
