package administration

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)}
}

func scheduledDose(clock Clock) *Administration {
	now := clock.Now()
	return &Administration{
		ID:              uuid.New(),
		PrescriptionRef: uuid.New(),
		ScheduledTime:   now.Add(time.Hour),
		Status:          StatusScheduled,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestNext_FromScheduled(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		action Action
		want   Status
	}{
		{ActionAdminister, StatusGiven},
		{ActionHold, StatusHeld},
		{ActionRefuse, StatusRefused},
		{ActionOmit, StatusOmitted},
		{ActionCancel, StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			got, err := Next(id, StatusScheduled, tt.action)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Next(scheduled, %s) = %s, want %s", tt.action, got, tt.want)
			}
		})
	}
}

func TestNext_FromHeld(t *testing.T) {
	id := uuid.New()

	for _, action := range []Action{ActionAdminister, ActionRefuse, ActionOmit} {
		if _, err := Next(id, StatusHeld, action); err != nil {
			t.Errorf("Next(held, %s): unexpected error: %v", action, err)
		}
	}

	for _, action := range []Action{ActionHold, ActionCancel} {
		_, err := Next(id, StatusHeld, action)
		if KindOf(err) != KindInvalidTransition {
			t.Errorf("Next(held, %s): expected invalid transition, got %v", action, err)
		}
	}
}

func TestNext_TerminalStatesRejectEverything(t *testing.T) {
	id := uuid.New()
	terminals := []Status{StatusGiven, StatusRefused, StatusOmitted, StatusCancelled}
	actions := []Action{ActionAdminister, ActionHold, ActionRefuse, ActionOmit, ActionCancel}

	for _, from := range terminals {
		for _, action := range actions {
			_, err := Next(id, from, action)
			if KindOf(err) != KindInvalidTransition {
				t.Errorf("Next(%s, %s): expected invalid transition, got %v", from, action, err)
			}
		}
	}
}

func TestMachine_Administer(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)
	actor := uuid.New()

	if err := m.Administer(a, "500mg", "IV", nil, actor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Status != StatusGiven {
		t.Errorf("expected status given, got %s", a.Status)
	}
	if a.DosageGiven == nil || *a.DosageGiven != "500mg" {
		t.Errorf("unexpected dosage: %v", a.DosageGiven)
	}
	if a.RouteGiven == nil || *a.RouteGiven != "IV" {
		t.Errorf("unexpected route: %v", a.RouteGiven)
	}
	if a.AdministeredAt == nil || !a.AdministeredAt.Equal(clock.now) {
		t.Errorf("expected administered_at %v, got %v", clock.now, a.AdministeredAt)
	}
	if a.AdministeredByRef == nil || *a.AdministeredByRef != actor {
		t.Errorf("unexpected administered_by_ref: %v", a.AdministeredByRef)
	}
}

func TestMachine_Administer_RequiresDosage(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	err := m.Administer(a, "", "oral", nil, uuid.New())
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if a.Status != StatusScheduled {
		t.Errorf("status should be unchanged, got %s", a.Status)
	}
}

func TestMachine_Administer_DefaultsRoute(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	if err := m.Administer(a, "500mg", "", nil, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.RouteGiven == nil || *a.RouteGiven != "oral" {
		t.Errorf("expected default route oral, got %v", a.RouteGiven)
	}
}

func TestMachine_Hold_RequiresNotes(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	if err := m.Hold(a, ""); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := m.Hold(a, "awaiting INR result"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusHeld {
		t.Errorf("expected held, got %s", a.Status)
	}
	if a.Notes == nil || *a.Notes != "awaiting INR result" {
		t.Errorf("unexpected notes: %v", a.Notes)
	}
}

func TestMachine_HeldDoseCanBeGiven(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	if err := m.Hold(a, "awaiting INR result"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Administer(a, "5mg", "oral", nil, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusGiven {
		t.Errorf("expected given, got %s", a.Status)
	}
}

func TestMachine_HeldDoseCannotBeCancelled(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	if err := m.Hold(a, "pharmacy query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Cancel(a); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if a.Status != StatusHeld {
		t.Errorf("status should be unchanged, got %s", a.Status)
	}
}

func TestMachine_Refuse_DefaultNote(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	if err := m.Refuse(a, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusRefused {
		t.Errorf("expected refused, got %s", a.Status)
	}
	if a.Notes == nil || *a.Notes != "Patient refused medication" {
		t.Errorf("expected default refusal note, got %v", a.Notes)
	}
}

func TestMachine_Refuse_KeepsProvidedNote(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	note := "nauseated, will retry at lunch round"
	if err := m.Refuse(a, &note); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Notes == nil || *a.Notes != note {
		t.Errorf("expected provided note, got %v", a.Notes)
	}
}

func TestMachine_Omit_RequiresNotes(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	if err := m.Omit(a, ""); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := m.Omit(a, "patient NPO before surgery"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusOmitted {
		t.Errorf("expected omitted, got %s", a.Status)
	}
}

func TestMachine_Cancel(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock)
	a := scheduledDose(clock)

	if err := m.Cancel(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", a.Status)
	}
}
