package administration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardline/mar/pkg/pagination"
)

// Repository persists administration records.
type Repository interface {
	Create(ctx context.Context, a *Administration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Administration, error)
	// UpdateVersioned persists a only if the stored row still carries
	// expectedVersion. On success the record's Version is incremented and
	// UpdatedAt refreshed. A version mismatch on an existing row yields a
	// concurrent modification error.
	UpdateVersioned(ctx context.Context, a *Administration, expectedVersion int64) error
	ListByPrescription(ctx context.Context, prescriptionRef uuid.UUID, p pagination.Params) ([]*Administration, int64, error)
	// ListDue returns scheduled administrations with scheduled_time <= until,
	// ordered by scheduled_time ascending.
	ListDue(ctx context.Context, until time.Time, p pagination.Params) ([]*Administration, int64, error)
	// ListScheduledAfter returns scheduled administrations for a prescription
	// whose scheduled_time is strictly after the cutoff.
	ListScheduledAfter(ctx context.Context, prescriptionRef uuid.UUID, after time.Time) ([]*Administration, error)
}

// AdjustmentRepository persists the append-only schedule adjustment ledger.
type AdjustmentRepository interface {
	// Append inserts an adjustment, stamping CreatedAt at write time.
	Append(ctx context.Context, adj *ScheduleAdjustment) error
	// Latest returns the most recent adjustment for an administration, or
	// nil when none exist.
	Latest(ctx context.Context, administrationID uuid.UUID) (*ScheduleAdjustment, error)
	// ListByAdministration returns all adjustments in chronological order.
	ListByAdministration(ctx context.Context, administrationID uuid.UUID) ([]*ScheduleAdjustment, error)
}
