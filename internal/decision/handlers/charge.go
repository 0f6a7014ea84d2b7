package handlers

import (
	"errors"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"net/http"
	"paygate/internal/decision"
)

type ChargeHandler struct {
	pipeline      *decision.Pipeline
	lenientAmount bool
}

func NewChargeHandler(pipeline *decision.Pipeline, lenientAmount bool) *ChargeHandler {
	return &ChargeHandler{
		pipeline:      pipeline,
		lenientAmount: lenientAmount,
	}
}

func (h *ChargeHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()
	tracer := otel.Tracer("charge-handler")
	_, span := tracer.Start(ctx, "charge-handler", trace.WithAttributes(
		attribute.String("handler", "charge"),
	))
	defer span.End()

	var payload decision.ChargePayload
	if err := c.Bind(&payload); err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, "malformed charge request")
	}

	req, err := payload.ChargeRequest(h.lenientAmount)
	if errors.Is(err, decision.ErrInvalidAmount) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid amount")
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcome := h.pipeline.Evaluate(req)

	span.SetAttributes(
		attribute.String("charge.amount", req.Amount.String()),
		attribute.String("charge.disposition", string(outcome.Disposition)),
		attribute.String("charge.reason", string(outcome.Reason)),
	)

	return c.JSON(http.StatusOK, decision.NewOutcomePayload(outcome))
}

func (h *ChargeHandler) Health(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
