// Package allocation pairs mentees with mentors by writing records to the
// allocations collection.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
)

// MaxMenteesPerMentor is the number of open allocations a mentor may hold.
const MaxMenteesPerMentor = 15

const (
	usersCollection       = "users"
	allocationsCollection = "allocations"
)

// Allocation status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

var (
	ErrNoMentors  = errors.New("no mentors found")
	ErrNoCapacity = errors.New("no mentors with available capacity")
	ErrNotMentee  = errors.New("user is not a mentee")
)

// Service allocates mentors and groups allocations into sessions. Each
// operation runs in one transaction.
type Service struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time
	venue string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithVenue sets the venue of sessions created by CreateSessions.
func WithVenue(venue string) Option {
	return func(s *Service) {
		if venue != "" {
			s.venue = venue
		}
	}
}

// WithClock overrides the clock used for allocated_on and session datetimes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a Service backed by st.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{store: st, log: zap.NewNop(), now: time.Now, venue: DefaultVenue}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindAvailableMentor returns the first mentor, in id order, with fewer than
// MaxMenteesPerMentor open allocations.
func (s *Service) FindAvailableMentor(ctx context.Context) (mentor *store.Record, err error) {
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		mentor, err = findAvailableMentor(ctx, tx)
		return err
	})
	return mentor, err
}

// Allocate assigns a mentor to the mentee and records a pending allocation.
// If the mentee already has an open allocation, that allocation is returned
// unchanged.
func (s *Service) Allocate(ctx context.Context, menteeID string) (alloc *store.Record, err error) {
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		alloc, err = s.allocate(ctx, tx, menteeID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("allocate mentee %q: %w", menteeID, err)
	}
	return alloc, nil
}

func (s *Service) allocate(ctx context.Context, cat store.Catalog, menteeID string) (*store.Record, error) {
	mentee, err := cat.FindRecord(ctx, usersCollection, menteeID)
	if err != nil {
		return nil, err
	}
	if mentee.GetString("role") != "mentee" {
		return nil, ErrNotMentee
	}

	allocations, err := cat.ListRecords(ctx, allocationsCollection)
	if err != nil {
		return nil, err
	}
	for _, a := range allocations {
		if a.GetString("mentee_id") == menteeID && isOpen(a) {
			s.log.Info("Mentee already allocated",
				zap.String("mentee_id", menteeID),
				zap.String("allocation_id", a.ID))
			return a, nil
		}
	}

	mentor, err := findAvailableMentor(ctx, cat)
	if err != nil {
		return nil, err
	}

	alloc := store.NewRecord(map[string]any{
		"mentor_id":    mentor.ID,
		"mentee_id":    menteeID,
		"allocated_on": schema.FormatDate(s.now().UTC()),
		"status":       StatusPending,
	})
	if err := cat.SaveRecord(ctx, allocationsCollection, alloc); err != nil {
		return nil, err
	}

	s.log.Info("Allocated mentor",
		zap.String("mentor_id", mentor.ID),
		zap.String("mentee_id", menteeID),
		zap.String("allocation_id", alloc.ID))
	return alloc, nil
}

// listMentors returns the users with role mentor in id order.
func listMentors(ctx context.Context, cat store.Catalog) ([]*store.Record, error) {
	users, err := cat.ListRecords(ctx, usersCollection)
	if err != nil {
		return nil, err
	}
	var mentors []*store.Record
	for _, u := range users {
		if u.GetString("role") == "mentor" {
			mentors = append(mentors, u)
		}
	}
	slices.SortFunc(mentors, func(a, b *store.Record) int { return strings.Compare(a.ID, b.ID) })
	return mentors, nil
}

func findAvailableMentor(ctx context.Context, cat store.Catalog) (*store.Record, error) {
	mentors, err := listMentors(ctx, cat)
	if err != nil {
		return nil, err
	}
	if len(mentors) == 0 {
		return nil, ErrNoMentors
	}

	allocations, err := cat.ListRecords(ctx, allocationsCollection)
	if err != nil {
		return nil, err
	}
	load := make(map[string]int)
	for _, a := range allocations {
		if isOpen(a) {
			load[a.GetString("mentor_id")]++
		}
	}

	for _, m := range mentors {
		if load[m.ID] < MaxMenteesPerMentor {
			return m, nil
		}
	}
	return nil, ErrNoCapacity
}

// isOpen reports whether an allocation still counts against its mentor.
func isOpen(a *store.Record) bool {
	switch a.GetString("status") {
	case StatusActive, StatusPending:
		return true
	}
	return false
}
