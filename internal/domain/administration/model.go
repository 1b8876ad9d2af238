package administration

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a scheduled dose.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusGiven     Status = "given"
	StatusHeld      Status = "held"
	StatusRefused   Status = "refused"
	StatusOmitted   Status = "omitted"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true, StatusGiven: true, StatusHeld: true,
	StatusRefused: true, StatusOmitted: true, StatusCancelled: true,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return validStatuses[s]
}

// Terminal reports whether s admits no further transitions. "held" is the
// only non-initial state that re-enters the machine.
func (s Status) Terminal() bool {
	switch s {
	case StatusGiven, StatusRefused, StatusOmitted, StatusCancelled:
		return true
	}
	return false
}

// Administration maps to the medication_administration table. One row per
// scheduled dose of a prescription for an admitted patient.
//
// Records are created in status "scheduled" by an external scheduling
// process and from then on mutated only through the Service. Version is
// bumped on every write and is the optimistic-concurrency token: an update
// conditioned on a stale version fails instead of overwriting.
type Administration struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PrescriptionRef   uuid.UUID  `db:"prescription_ref" json:"prescription_ref"`
	ScheduledTime     time.Time  `db:"scheduled_time" json:"scheduled_time"`
	Status            Status     `db:"status" json:"status"`
	DosageGiven       *string    `db:"dosage_given" json:"dosage_given,omitempty"`
	RouteGiven        *string    `db:"route_given" json:"route_given,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	AdministeredAt    *time.Time `db:"administered_at" json:"administered_at,omitempty"`
	AdministeredByRef *uuid.UUID `db:"administered_by_ref" json:"administered_by_ref,omitempty"`
	IsAdjusted        bool       `db:"is_adjusted" json:"is_adjusted"`
	Version           int64      `db:"version" json:"version"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ScheduleAdjustment maps to the medication_schedule_adjustment table.
// Rows are append-only: never updated, never deleted. The chain for one
// administration, ordered by created_at, replays every value scheduled_time
// has held; entry n's OriginalTime must equal entry n-1's AdjustedTime.
type ScheduleAdjustment struct {
	ID               uuid.UUID `db:"id" json:"id"`
	AdministrationID uuid.UUID `db:"administration_id" json:"administration_id"`
	OriginalTime     time.Time `db:"original_time" json:"original_time"`
	AdjustedTime     time.Time `db:"adjusted_time" json:"adjusted_time"`
	Reason           *string   `db:"reason" json:"reason,omitempty"`
	AdjustedByRef    uuid.UUID `db:"adjusted_by_ref" json:"adjusted_by_ref"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Detail is an Administration plus read-time derived fields. Overdue is
// recomputed on every read and never stored, so it can't go stale.
type Detail struct {
	Administration
	IsOverdue bool `json:"is_overdue"`
}

// IsOverdue reports whether a dose is past due: still scheduled and its
// scheduled time has passed. Any transition out of "scheduled" clears it
// regardless of wall-clock time.
func IsOverdue(a *Administration, now time.Time) bool {
	return a.Status == StatusScheduled && a.ScheduledTime.Before(now)
}

func (a *Administration) detail(now time.Time) *Detail {
	return &Detail{Administration: *a, IsOverdue: IsOverdue(a, now)}
}
