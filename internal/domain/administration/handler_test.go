package administration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardline/mar/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *fakeClock, *echo.Echo) {
	svc, _, _, _, clock := newTestService()
	return NewHandler(svc), svc, clock, echo.New()
}

func authedContext(e *echo.Echo, method, target string, body string, actor uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, actor.String())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Create(t *testing.T) {
	h, _, clock, e := newTestHandler()

	body := `{"prescription_ref":"` + uuid.NewString() + `","scheduled_time":"` +
		clock.now.Add(time.Hour).Format(time.RFC3339) + `"}`
	c, rec := authedContext(e, http.MethodPost, "/api/v1/administrations", body, uuid.New())

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var a Administration
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", a.Status)
	}
}

func TestHandler_Create_MissingPrescription(t *testing.T) {
	h, _, clock, e := newTestHandler()

	body := `{"scheduled_time":"` + clock.now.Format(time.RFC3339) + `"}`
	c, _ := authedContext(e, http.MethodPost, "/api/v1/administrations", body, uuid.New())

	err := h.Create(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Get(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)

	c, rec := authedContext(e, http.MethodGet, "/api/v1/administrations/"+a.ID.String(), "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var d Detail
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.ID != a.ID {
		t.Errorf("expected id %s, got %s", a.ID, d.ID)
	}
	if d.IsOverdue {
		t.Error("future dose should not be overdue")
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _, _, e := newTestHandler()

	c, _ := authedContext(e, http.MethodGet, "/api/v1/administrations/"+uuid.NewString(), "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _, _, e := newTestHandler()

	c, _ := authedContext(e, http.MethodGet, "/api/v1/administrations/not-a-uuid", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Administer(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)
	actor := uuid.New()

	body := `{"dosage_given":"500mg","route_given":"IV"}`
	c, rec := authedContext(e, http.MethodPost, "/api/v1/administrations/"+a.ID.String()+"/administer", body, actor)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.Administer(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var out Administration
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Status != StatusGiven {
		t.Errorf("expected given, got %s", out.Status)
	}
	if out.AdministeredByRef == nil || *out.AdministeredByRef != actor {
		t.Errorf("expected actor %s, got %v", actor, out.AdministeredByRef)
	}
}

func TestHandler_Administer_MissingIdentity(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/administrations/"+a.ID.String()+"/administer",
		strings.NewReader(`{"dosage_given":"500mg"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.Administer(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_Administer_TerminalConflict(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)
	if _, err := svc.Cancel(context.Background(), a.ID, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := `{"dosage_given":"500mg"}`
	c, _ := authedContext(e, http.MethodPost, "/api/v1/administrations/"+a.ID.String()+"/administer", body, uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.Administer(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_Hold_MissingNotes(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)

	c, _ := authedContext(e, http.MethodPost, "/api/v1/administrations/"+a.ID.String()+"/hold", `{}`, uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.Hold(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Refuse_NoBodyNeeded(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)

	c, rec := authedContext(e, http.MethodPost, "/api/v1/administrations/"+a.ID.String()+"/refuse", `{}`, uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.Refuse(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out Administration
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Status != StatusRefused {
		t.Errorf("expected refused, got %s", out.Status)
	}
	if out.Notes == nil || *out.Notes != "Patient refused medication" {
		t.Errorf("expected default refusal note, got %v", out.Notes)
	}
}

func TestHandler_AdjustTime(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)
	newTime := a.ScheduledTime.Add(2 * time.Hour)

	body := `{"adjusted_time":"` + newTime.Format(time.RFC3339) + `","reason":"patient in radiology"}`
	c, rec := authedContext(e, http.MethodPost, "/api/v1/administrations/"+a.ID.String()+"/adjust-time", body, uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.AdjustTime(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out Administration
	json.Unmarshal(rec.Body.Bytes(), &out)
	if !out.ScheduledTime.Equal(newTime) {
		t.Errorf("expected %v, got %v", newTime, out.ScheduledTime)
	}
	if !out.IsAdjusted {
		t.Error("expected is_adjusted true")
	}
}

func TestHandler_ListAdjustments(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	a := seedScheduled(t, svc, clock)
	actor := uuid.New()
	if _, err := svc.AdjustTime(context.Background(), a.ID, a.ScheduledTime.Add(time.Hour), nil, actor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, rec := authedContext(e, http.MethodGet, "/api/v1/administrations/"+a.ID.String()+"/adjustments", "", actor)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.ListAdjustments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var adjustments []*ScheduleAdjustment
	json.Unmarshal(rec.Body.Bytes(), &adjustments)
	if len(adjustments) != 1 {
		t.Fatalf("expected 1 adjustment, got %d", len(adjustments))
	}
}

func TestHandler_ListDue(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	svc.CreateScheduled(context.Background(), uuid.New(), clock.now.Add(-time.Hour), nil)
	svc.CreateScheduled(context.Background(), uuid.New(), clock.now.Add(time.Hour), nil)

	c, rec := authedContext(e, http.MethodGet, "/api/v1/administrations/due", "", uuid.New())

	if err := h.ListDue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Data  []*Detail `json:"data"`
		Total int       `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected total 1, got %d", resp.Total)
	}
	if len(resp.Data) != 1 || !resp.Data[0].IsOverdue {
		t.Errorf("expected a single overdue dose, got %+v", resp.Data)
	}
}

func TestHandler_CancelScheduled(t *testing.T) {
	h, svc, clock, e := newTestHandler()
	rx := uuid.New()
	svc.CreateScheduled(context.Background(), rx, clock.now.Add(time.Hour), nil)
	svc.CreateScheduled(context.Background(), rx, clock.now.Add(2*time.Hour), nil)

	c, rec := authedContext(e, http.MethodPost, "/api/v1/prescriptions/"+rx.String()+"/cancel-scheduled", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(rx.String())

	if err := h.CancelScheduled(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp map[string]int
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["cancelled"] != 2 {
		t.Errorf("expected 2 cancelled, got %d", resp["cancelled"])
	}
}
