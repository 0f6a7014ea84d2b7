package handlers

import (
	"errors"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"net/http"
	"paygate/internal/payments"
	"paygate/internal/payments/workers"
)

// HealthReporter exposes the last known state of the decision service.
type HealthReporter interface {
	Health() workers.DecisionHealth
}

type PaymentHandler struct {
	orchestrator *payments.Orchestrator
	monitor      HealthReporter
}

func NewPaymentHandler(orchestrator *payments.Orchestrator, monitor HealthReporter) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		monitor:      monitor,
	}
}

// Register mounts the payments routes on g, usually the /api/payments group.
func (h *PaymentHandler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *PaymentHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	tracer := otel.Tracer("payment-handler")
	ctx, span := tracer.Start(ctx, "payment-handler.create", trace.WithAttributes(
		attribute.String("handler", "payment"),
	))
	defer span.End()

	var req payments.CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payment request")
	}

	p, err := h.orchestrator.Create(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return toHTTPError(err)
	}

	span.SetAttributes(
		attribute.String("payment.id", p.ID),
		attribute.String("payment.status", string(p.Status)),
	)

	c.Response().Header().Set(echo.HeaderLocation, c.Path()+"/"+p.ID)
	return c.JSON(http.StatusCreated, p)
}

func (h *PaymentHandler) Get(c echo.Context) error {
	p, err := h.orchestrator.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) List(c echo.Context) error {
	list, err := h.orchestrator.List(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	if list == nil {
		list = []*payments.Payment{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *PaymentHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	tracer := otel.Tracer("payment-handler")
	ctx, span := tracer.Start(ctx, "payment-handler.update", trace.WithAttributes(
		attribute.String("payment.id", c.Param("id")),
	))
	defer span.End()

	var patch payments.PaymentPatch
	if err := c.Bind(&patch); err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payment patch")
	}

	p, err := h.orchestrator.Update(ctx, c.Param("id"), patch)
	if err != nil {
		span.RecordError(err)
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) Delete(c echo.Context) error {
	if err := h.orchestrator.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Health always answers 200; the body carries decision service reachability.
func (h *PaymentHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "UP",
		"decision": h.monitor.Health(),
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, payments.ErrInvalidPayment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "payment not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
}
