package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ramin-sadeghi/briefer/internal/brief"
	"github.com/ramin-sadeghi/briefer/internal/engine"
)

// Runner is the engine surface the handler needs; narrowed for tests.
type Runner interface {
	Run(ctx context.Context, req engine.Request) (*engine.Outcome, error)
}

// BriefsHandler serves brief generation requests.
type BriefsHandler struct {
	Runner Runner
	Logger *log.Logger
}

func (h *BriefsHandler) Register(g *echo.Group) {
	g.POST("/briefs", h.create)
}

type briefRequest struct {
	UserID      string `json:"user_id"`
	Topic       string `json:"topic"`
	FollowUp    bool   `json:"follow_up"`
	SearchDepth string `json:"search_depth"`
}

type briefResponse struct {
	RunID              string                `json:"run_id"`
	Topic              string                `json:"topic"`
	Introduction       string                `json:"introduction"`
	Synthesis          string                `json:"synthesis"`
	References         []brief.SourceSummary `json:"references"`
	PotentialFollowUps []string              `json:"potential_follow_ups"`
	Warnings           []string              `json:"warnings,omitempty"`
	ElapsedMS          int64                 `json:"elapsed_ms"`
	TokensUsed         int64                 `json:"tokens_used"`
	CostEstimate       float64               `json:"cost_estimate"`
}

func (h *BriefsHandler) create(c echo.Context) error {
	var req briefRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	outcome, err := h.Runner.Run(c.Request().Context(), engine.Request{
		Identity:    req.UserID,
		Topic:       req.Topic,
		FollowUp:    req.FollowUp,
		SearchDepth: req.SearchDepth,
	})
	if err != nil {
		return h.mapError(err)
	}

	if strings.Contains(c.Request().Header.Get("Accept"), "text/markdown") {
		return c.String(http.StatusOK, brief.Markdown(outcome.Brief))
	}

	return c.JSON(http.StatusOK, briefResponse{
		RunID:              outcome.RunID,
		Topic:              outcome.Brief.Topic,
		Introduction:       outcome.Brief.Introduction,
		Synthesis:          outcome.Brief.Synthesis,
		References:         outcome.Brief.References,
		PotentialFollowUps: outcome.Brief.PotentialFollowUps,
		Warnings:           outcome.Warnings,
		ElapsedMS:          outcome.Elapsed.Milliseconds(),
		TokensUsed:         outcome.TokensUsed,
		CostEstimate:       outcome.CostEstimate,
	})
}

// mapError translates the run error taxonomy onto HTTP statuses.
func (h *BriefsHandler) mapError(err error) error {
	if h.Logger != nil {
		h.Logger.Printf("run failed: %v", err)
	}

	if errors.Is(err, engine.ErrInvalidRequest) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var sv *brief.SchemaViolation
	if errors.As(err, &sv) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, sv.Error())
	}
	var sf *brief.StageFailure
	if errors.As(err, &sf) {
		return echo.NewHTTPError(http.StatusBadGateway, sf.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "run exceeded its time budget")
	}
	if errors.Is(err, context.Canceled) {
		return echo.NewHTTPError(499, "client closed request")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
