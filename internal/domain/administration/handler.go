package administration

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardline/mar/internal/platform/auth"
	"github.com/wardline/mar/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, physician, nurse, pharmacist
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))
	readGroup.GET("/administrations/due", h.ListDue)
	readGroup.GET("/administrations/:id", h.Get)
	readGroup.GET("/administrations/:id/adjustments", h.ListAdjustments)
	readGroup.GET("/prescriptions/:id/administrations", h.ListByPrescription)

	// Write endpoints – admin, physician, nurse
	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	writeGroup.POST("/administrations", h.Create)
	writeGroup.POST("/administrations/:id/administer", h.Administer)
	writeGroup.POST("/administrations/:id/hold", h.Hold)
	writeGroup.POST("/administrations/:id/refuse", h.Refuse)
	writeGroup.POST("/administrations/:id/omit", h.Omit)
	writeGroup.POST("/administrations/:id/cancel", h.Cancel)
	writeGroup.POST("/administrations/:id/adjust-time", h.AdjustTime)
	writeGroup.POST("/prescriptions/:id/cancel-scheduled", h.CancelScheduled)
}

// httpError translates a domain error into the right status code. Stale
// version and wrong-state failures are conflicts the client can resolve by
// re-reading; a broken ledger chain is a data fault, not a client error.
func httpError(err error) error {
	switch KindOf(err) {
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case KindInvalidTransition, KindInvalidState, KindConcurrentModification:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case KindContinuityViolation:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func actorRef(c echo.Context) (uuid.UUID, error) {
	actor, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid user identity")
	}
	return actor, nil
}

type createRequest struct {
	PrescriptionRef uuid.UUID `json:"prescription_ref"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	Notes           *string   `json:"notes"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CreateScheduled(c.Request().Context(), req.PrescriptionRef, req.ScheduledTime, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Administer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := actorRef(c)
	if err != nil {
		return err
	}
	var req AdministerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Administer(c.Request().Context(), id, req, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

func (r notesRequest) required() string {
	if r.Notes == nil {
		return ""
	}
	return *r.Notes
}

func (h *Handler) Hold(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := actorRef(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Hold(c.Request().Context(), id, req.required(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Refuse(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := actorRef(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Refuse(c.Request().Context(), id, req.Notes, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Omit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := actorRef(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Omit(c.Request().Context(), id, req.required(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := actorRef(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type adjustTimeRequest struct {
	AdjustedTime time.Time `json:"adjusted_time"`
	Reason       *string   `json:"reason"`
}

func (h *Handler) AdjustTime(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := actorRef(c)
	if err != nil {
		return err
	}
	var req adjustTimeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AdjustTime(c.Request().Context(), id, req.AdjustedTime, req.Reason, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAdjustments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	adjustments, err := h.svc.ListAdjustments(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if adjustments == nil {
		adjustments = []*ScheduleAdjustment{}
	}
	return c.JSON(http.StatusOK, adjustments)
}

func (h *Handler) ListByPrescription(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListByPrescription(c.Request().Context(), id, p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, int(total), p.Limit, p.Offset))
}

func (h *Handler) ListDue(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListDue(c.Request().Context(), p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, int(total), p.Limit, p.Offset))
}

func (h *Handler) CancelScheduled(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := actorRef(c)
	if err != nil {
		return err
	}
	cancelled, err := h.svc.CancelFutureScheduled(c.Request().Context(), id, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"cancelled": cancelled})
}
