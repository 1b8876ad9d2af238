package administration

import "github.com/google/uuid"

// Action is a clinical action requested against a dose.
type Action string

const (
	ActionAdminister Action = "administer"
	ActionHold       Action = "hold"
	ActionRefuse     Action = "refuse"
	ActionOmit       Action = "omit"
	ActionCancel     Action = "cancel"
)

// transitions is the full state table. Absence of an entry means the
// transition is rejected; terminal states have no entries at all.
var transitions = map[Status]map[Action]Status{
	StatusScheduled: {
		ActionAdminister: StatusGiven,
		ActionHold:       StatusHeld,
		ActionRefuse:     StatusRefused,
		ActionOmit:       StatusOmitted,
		ActionCancel:     StatusCancelled,
	},
	StatusHeld: {
		ActionAdminister: StatusGiven,
		ActionRefuse:     StatusRefused,
		ActionOmit:       StatusOmitted,
	},
}

// Next resolves the target status for an action from the given status.
func Next(id uuid.UUID, from Status, action Action) (Status, error) {
	to, ok := transitions[from][action]
	if !ok {
		return "", invalidTransitionErr(id, from, action)
	}
	return to, nil
}

// defaultRefusalNote matches the note the ward UI records when a patient
// refuses without further comment.
const defaultRefusalNote = "Patient refused medication"

const defaultRoute = "oral"

// Machine validates and applies status transitions to an in-memory record.
// It never persists anything; the Service wraps each application in a
// version-conditioned store write.
type Machine struct {
	clock Clock
}

func NewMachine(clock Clock) *Machine {
	return &Machine{clock: clock}
}

// Administer moves a scheduled or held dose to given, stamping the
// administered time and actor exactly once. Dosage is required; route
// defaults to oral when omitted.
func (m *Machine) Administer(a *Administration, dosage, route string, notes *string, actor uuid.UUID) error {
	if dosage == "" {
		return validationErr("dosage_given", "dosage is required to record an administration")
	}
	to, err := Next(a.ID, a.Status, ActionAdminister)
	if err != nil {
		return err
	}
	if route == "" {
		route = defaultRoute
	}
	now := m.clock.Now()
	a.Status = to
	a.DosageGiven = &dosage
	a.RouteGiven = &route
	a.Notes = notes
	a.AdministeredAt = &now
	a.AdministeredByRef = &actor
	return nil
}

// Hold moves a scheduled dose to held. A hold always carries a reason.
func (m *Machine) Hold(a *Administration, notes string) error {
	if notes == "" {
		return validationErr("notes", "a reason is required to hold a dose")
	}
	to, err := Next(a.ID, a.Status, ActionHold)
	if err != nil {
		return err
	}
	a.Status = to
	a.Notes = &notes
	return nil
}

// Refuse moves a scheduled or held dose to refused. Notes are optional.
func (m *Machine) Refuse(a *Administration, notes *string) error {
	to, err := Next(a.ID, a.Status, ActionRefuse)
	if err != nil {
		return err
	}
	if notes == nil || *notes == "" {
		def := defaultRefusalNote
		notes = &def
	}
	a.Status = to
	a.Notes = notes
	return nil
}

// Omit moves a scheduled or held dose to omitted. A reason is required.
func (m *Machine) Omit(a *Administration, notes string) error {
	if notes == "" {
		return validationErr("notes", "a reason is required to omit a dose")
	}
	to, err := Next(a.ID, a.Status, ActionOmit)
	if err != nil {
		return err
	}
	a.Status = to
	a.Notes = &notes
	return nil
}

// Cancel moves a scheduled dose to cancelled. Held doses cannot be
// cancelled; they must be administered, refused, or omitted.
func (m *Machine) Cancel(a *Administration) error {
	to, err := Next(a.ID, a.Status, ActionCancel)
	if err != nil {
		return err
	}
	a.Status = to
	return nil
}
