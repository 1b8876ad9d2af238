package administration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardline/mar/internal/platform/db"
	"github.com/wardline/mar/internal/platform/metrics"
	"github.com/wardline/mar/internal/platform/outbox"
	"github.com/wardline/mar/pkg/pagination"
)

// Service owns every mutation of administration records. Each write runs as
// a unit of work: the row update, the ledger append where applicable, and
// the outbox entry commit together or not at all.
type Service struct {
	admins  Repository
	ledger  AdjustmentRepository
	events  outbox.Writer
	tx      db.TxRunner
	machine *Machine
	clock   Clock
	metrics *metrics.Metrics
}

func NewService(admins Repository, ledger AdjustmentRepository, events outbox.Writer, tx db.TxRunner, clock Clock) *Service {
	return &Service{
		admins:  admins,
		ledger:  ledger,
		events:  events,
		tx:      tx,
		machine: NewMachine(clock),
		clock:   clock,
	}
}

// SetMetrics attaches optional metrics to the service.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// CreateScheduled inserts a new dose in status scheduled. Records normally
// arrive through the scheduling pipeline; this path exists for ad hoc and
// PRN doses entered at the ward.
func (s *Service) CreateScheduled(ctx context.Context, prescriptionRef uuid.UUID, scheduledTime time.Time, notes *string) (*Administration, error) {
	if prescriptionRef == uuid.Nil {
		return nil, validationErr("prescription_ref", "prescription reference is required")
	}
	if scheduledTime.IsZero() {
		return nil, validationErr("scheduled_time", "scheduled time is required")
	}

	a := &Administration{
		PrescriptionRef: prescriptionRef,
		ScheduledTime:   scheduledTime,
		Status:          StatusScheduled,
		Notes:           notes,
	}
	if err := s.admins.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns a single administration with read-time derived fields.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	a, err := s.admins.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.detail(s.clock.Now()), nil
}

// AdministerRequest carries the clinical facts recorded when a dose is given.
type AdministerRequest struct {
	Dosage string  `json:"dosage_given"`
	Route  string  `json:"route_given"`
	Notes  *string `json:"notes"`
}

// Administer records that a dose was given.
func (s *Service) Administer(ctx context.Context, id uuid.UUID, req AdministerRequest, actor uuid.UUID) (*Administration, error) {
	return s.transition(ctx, id, ActionAdminister, EventGiven, actor, func(a *Administration) error {
		return s.machine.Administer(a, req.Dosage, req.Route, req.Notes, actor)
	})
}

// Hold pauses a scheduled dose pending clinical review.
func (s *Service) Hold(ctx context.Context, id uuid.UUID, notes string, actor uuid.UUID) (*Administration, error) {
	return s.transition(ctx, id, ActionHold, EventHeld, actor, func(a *Administration) error {
		return s.machine.Hold(a, notes)
	})
}

// Refuse records a patient refusal.
func (s *Service) Refuse(ctx context.Context, id uuid.UUID, notes *string, actor uuid.UUID) (*Administration, error) {
	return s.transition(ctx, id, ActionRefuse, EventRefused, actor, func(a *Administration) error {
		return s.machine.Refuse(a, notes)
	})
}

// Omit records that a dose was not given, with the reason.
func (s *Service) Omit(ctx context.Context, id uuid.UUID, notes string, actor uuid.UUID) (*Administration, error) {
	return s.transition(ctx, id, ActionOmit, EventOmitted, actor, func(a *Administration) error {
		return s.machine.Omit(a, notes)
	})
}

// Cancel voids a scheduled dose, typically because the order changed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor uuid.UUID) (*Administration, error) {
	return s.transition(ctx, id, ActionCancel, EventCancelled, actor, func(a *Administration) error {
		return s.machine.Cancel(a)
	})
}

// transition runs one state change as a unit of work: fresh read, machine
// application, version-conditioned write, outbox append.
func (s *Service) transition(ctx context.Context, id uuid.UUID, action Action, eventType string, actor uuid.UUID, apply func(*Administration) error) (*Administration, error) {
	var out *Administration
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.admins.GetByID(ctx, id)
		if err != nil {
			return err
		}

		prev := a.Version
		if err := apply(a); err != nil {
			return err
		}

		if err := s.admins.UpdateVersioned(ctx, a, prev); err != nil {
			return err
		}

		if err := s.emit(ctx, a, eventType, actor, nil); err != nil {
			return err
		}

		out = a
		return nil
	})
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(action)).Inc()
	}
	return out, nil
}

// AdjustTime reschedules a dose that has not yet been actioned. The change
// is recorded in the append-only adjustment ledger; the new ledger entry's
// original time must equal the record's current scheduled time, so the
// chain replays without gaps.
func (s *Service) AdjustTime(ctx context.Context, id uuid.UUID, newTime time.Time, reason *string, actor uuid.UUID) (*Administration, error) {
	if newTime.IsZero() {
		return nil, validationErr("adjusted_time", "adjusted time is required")
	}

	var out *Administration
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.admins.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled {
			return invalidStateErr(id, a.Status, "only scheduled doses can be rescheduled")
		}

		latest, err := s.ledger.Latest(ctx, id)
		if err != nil {
			return err
		}
		if latest != nil && !latest.AdjustedTime.Equal(a.ScheduledTime) {
			return continuityErr(id, "latest ledger entry does not match the current scheduled time")
		}

		adj := &ScheduleAdjustment{
			AdministrationID: id,
			OriginalTime:     a.ScheduledTime,
			AdjustedTime:     newTime,
			Reason:           reason,
			AdjustedByRef:    actor,
		}
		if err := s.ledger.Append(ctx, adj); err != nil {
			return err
		}

		prev := a.Version
		a.ScheduledTime = newTime
		a.IsAdjusted = true
		if err := s.admins.UpdateVersioned(ctx, a, prev); err != nil {
			return err
		}

		if err := s.emit(ctx, a, EventTimeAdjusted, actor, adj); err != nil {
			return err
		}

		out = a
		return nil
	})
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AdjustmentsTotal.Inc()
	}
	return out, nil
}

// ListAdjustments returns the full adjustment chain for a dose, most
// recent first for display. The administration must exist. Storage order
// stays chronological; only the returned slice is reversed.
func (s *Service) ListAdjustments(ctx context.Context, id uuid.UUID) ([]*ScheduleAdjustment, error) {
	if _, err := s.admins.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByAdministration(ctx, id)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ListByPrescription returns all doses for a prescription in schedule order.
func (s *Service) ListByPrescription(ctx context.Context, prescriptionRef uuid.UUID, p pagination.Params) ([]*Detail, int64, error) {
	items, total, err := s.admins.ListByPrescription(ctx, prescriptionRef, p)
	if err != nil {
		return nil, 0, err
	}
	return s.details(items), total, nil
}

// ListDue returns scheduled doses whose time has arrived, oldest first.
func (s *Service) ListDue(ctx context.Context, p pagination.Params) ([]*Detail, int64, error) {
	items, total, err := s.admins.ListDue(ctx, s.clock.Now(), p)
	if err != nil {
		return nil, 0, err
	}
	return s.details(items), total, nil
}

// CancelFutureScheduled voids every not-yet-due scheduled dose of a
// prescription, for use when the order is discontinued. Each dose is
// cancelled in its own unit of work; a dose that a concurrent writer moved
// out of scheduled is skipped. Returns the number cancelled.
func (s *Service) CancelFutureScheduled(ctx context.Context, prescriptionRef uuid.UUID, actor uuid.UUID) (int, error) {
	if prescriptionRef == uuid.Nil {
		return 0, validationErr("prescription_ref", "prescription reference is required")
	}

	pending, err := s.admins.ListScheduledAfter(ctx, prescriptionRef, s.clock.Now())
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, a := range pending {
		_, err := s.Cancel(ctx, a.ID, actor)
		if err == nil {
			cancelled++
			continue
		}
		switch KindOf(err) {
		case KindConcurrentModification:
			// Lost the race; one retry against the fresh row.
			if _, retryErr := s.Cancel(ctx, a.ID, actor); retryErr == nil {
				cancelled++
			} else if KindOf(retryErr) != KindInvalidTransition {
				return cancelled, retryErr
			}
		case KindInvalidTransition, KindNotFound:
			// Actioned or removed since the listing; nothing to void.
		default:
			return cancelled, err
		}
	}
	return cancelled, nil
}

func (s *Service) details(items []*Administration) []*Detail {
	now := s.clock.Now()
	out := make([]*Detail, 0, len(items))
	for _, a := range items {
		out = append(out, a.detail(now))
	}
	return out
}

func (s *Service) emit(ctx context.Context, a *Administration, eventType string, actor uuid.UUID, adj *ScheduleAdjustment) error {
	if s.events == nil {
		return nil
	}

	event := newEvent(a, actor, s.clock.Now())
	if adj != nil {
		event.OriginalTime = &adj.OriginalTime
		event.AdjustedTime = &adj.AdjustedTime
	}
	payload, err := event.marshal()
	if err != nil {
		return err
	}

	return s.events.Write(ctx, &outbox.Entry{
		AggregateID:   a.ID.String(),
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		Topic:         EventsTopic,
		Key:           a.ID.String(),
	})
}

func (s *Service) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	kind := KindOf(err)
	if kind == "" {
		return
	}
	s.metrics.TransitionFailuresTotal.WithLabelValues(string(kind)).Inc()
	switch kind {
	case KindConcurrentModification:
		s.metrics.VersionConflictsTotal.Inc()
	case KindContinuityViolation:
		s.metrics.ContinuityViolationsTotal.Inc()
	}
}
