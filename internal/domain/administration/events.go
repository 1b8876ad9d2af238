package administration

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventsTopic receives every administration lifecycle event, keyed by
// administration id so per-dose ordering is preserved across partitions.
const EventsTopic = "mar.administration.events"

const aggregateType = "medication_administration"

const (
	EventGiven        = "administration.given"
	EventHeld         = "administration.held"
	EventRefused      = "administration.refused"
	EventOmitted      = "administration.omitted"
	EventCancelled    = "administration.cancelled"
	EventTimeAdjusted = "administration.time_adjusted"
)

// Event is the payload published for every committed transition.
type Event struct {
	AdministrationID uuid.UUID  `json:"administration_id"`
	PrescriptionRef  uuid.UUID  `json:"prescription_ref"`
	Status           Status     `json:"status"`
	ScheduledTime    time.Time  `json:"scheduled_time"`
	Version          int64      `json:"version"`
	ActorRef         uuid.UUID  `json:"actor_ref"`
	OccurredAt       time.Time  `json:"occurred_at"`
	Notes            *string    `json:"notes,omitempty"`
	OriginalTime     *time.Time `json:"original_time,omitempty"`
	AdjustedTime     *time.Time `json:"adjusted_time,omitempty"`
}

func newEvent(a *Administration, actor uuid.UUID, occurredAt time.Time) Event {
	return Event{
		AdministrationID: a.ID,
		PrescriptionRef:  a.PrescriptionRef,
		Status:           a.Status,
		ScheduledTime:    a.ScheduledTime,
		Version:          a.Version,
		ActorRef:         actor,
		OccurredAt:       occurredAt,
		Notes:            a.Notes,
	}
}

func (e Event) marshal() (json.RawMessage, error) {
	return json.Marshal(e)
}
