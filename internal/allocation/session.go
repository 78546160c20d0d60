package allocation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
)

// StudentsPerSession is the number of allocations grouped into one session.
const StudentsPerSession = 5

// DefaultVenue is the venue written to new sessions.
const DefaultVenue = "Room 101"

const sessionsCollection = "sessions"

// ErrInvalidTransition is returned when an allocation cannot move to the
// requested status.
var ErrInvalidTransition = errors.New("invalid allocation status transition")

// Session is a mentor's session with the mentees of its allocations.
type Session struct {
	ID          string   `json:"id" yaml:"id"`
	MentorID    string   `json:"mentor_id" yaml:"mentor_id"`
	Venue       string   `json:"venue" yaml:"venue"`
	Datetime    string   `json:"datetime" yaml:"datetime"`
	Allocations []string `json:"allocations" yaml:"allocations"`
	Mentees     []string `json:"mentees" yaml:"mentees"`
}

// Activate moves a pending allocation to active. An active allocation is
// returned unchanged; a completed one fails with ErrInvalidTransition.
func (s *Service) Activate(ctx context.Context, allocationID string) (alloc *store.Record, err error) {
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		alloc, err = tx.FindRecord(ctx, allocationsCollection, allocationID)
		if err != nil {
			return err
		}
		switch status := alloc.GetString("status"); status {
		case StatusActive:
			return nil
		case StatusPending:
			alloc.Data["status"] = StatusActive
			return tx.SaveRecord(ctx, allocationsCollection, alloc)
		default:
			return fmt.Errorf("%w: %q to %q", ErrInvalidTransition, status, StatusActive)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("activate allocation %q: %w", allocationID, err)
	}
	s.log.Info("Activated allocation",
		zap.String("allocation_id", alloc.ID),
		zap.String("mentor_id", alloc.GetString("mentor_id")))
	return alloc, nil
}

// CreateSessions groups every mentor's active allocations, in creation
// order, into sessions of up to StudentsPerSession and marks the grouped
// allocations completed. It runs in one transaction and returns the new
// session records in mentor id order.
func (s *Service) CreateSessions(ctx context.Context) (sessions []*store.Record, err error) {
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		sessions, err = s.createSessions(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) createSessions(ctx context.Context, cat store.Catalog) ([]*store.Record, error) {
	if _, err := cat.FindCollection(ctx, sessionsCollection); err != nil {
		return nil, err
	}
	mentors, err := listMentors(ctx, cat)
	if err != nil {
		return nil, err
	}
	allocations, err := cat.ListRecords(ctx, allocationsCollection)
	if err != nil {
		return nil, err
	}
	active := make(map[string][]*store.Record)
	for _, a := range allocations {
		if a.GetString("status") == StatusActive {
			mentorID := a.GetString("mentor_id")
			active[mentorID] = append(active[mentorID], a)
		}
	}

	now := schema.FormatDate(s.now().UTC())
	var created []*store.Record
	for _, m := range mentors {
		for group := range slices.Chunk(active[m.ID], StudentsPerSession) {
			ids := make([]string, 0, len(group))
			for _, a := range group {
				ids = append(ids, a.ID)
			}
			session := store.NewRecord(map[string]any{
				"mentor_id":        m.ID,
				"session_students": ids,
				"venue":            s.venue,
				"datetime":         now,
			})
			if err := cat.SaveRecord(ctx, sessionsCollection, session); err != nil {
				return nil, err
			}
			for _, a := range group {
				a.Data["status"] = StatusCompleted
				if err := cat.SaveRecord(ctx, allocationsCollection, a); err != nil {
					return nil, fmt.Errorf("complete allocation %q: %w", a.ID, err)
				}
			}
			s.log.Info("Created session",
				zap.String("mentor_id", m.ID),
				zap.String("session_id", session.ID),
				zap.Int("student_count", len(group)))
			created = append(created, session)
		}
	}
	return created, nil
}

// MentorSessions returns the sessions of a mentor with the mentee ids of
// their allocations. Allocations that no longer exist are skipped.
func (s *Service) MentorSessions(ctx context.Context, mentorID string) (out []Session, err error) {
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.FindRecord(ctx, usersCollection, mentorID); err != nil {
			return err
		}
		records, err := tx.ListRecords(ctx, sessionsCollection)
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.GetString("mentor_id") != mentorID {
				continue
			}
			session := Session{
				ID:          r.ID,
				MentorID:    mentorID,
				Venue:       r.GetString("venue"),
				Datetime:    r.GetString("datetime"),
				Allocations: schema.RelationIDs(r.Get("session_students")),
				Mentees:     []string{},
			}
			for _, id := range session.Allocations {
				alloc, err := tx.FindRecord(ctx, allocationsCollection, id)
				if store.IsNotFound(err) {
					continue
				}
				if err != nil {
					return err
				}
				session.Mentees = append(session.Mentees, alloc.GetString("mentee_id"))
			}
			out = append(out, session)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions of mentor %q: %w", mentorID, err)
	}
	return out, nil
}
