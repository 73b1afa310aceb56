// Package merge exposes the merge session lifecycle, undo and activity over HTTP
package merge

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/automerge"
	"github.com/Ramsey-B/clover/pkg/context"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type Handler struct {
	engine       *reconcile.Engine
	scorer       *matching.Scorer
	provider     reconcile.SuggestionProvider
	orchestrator *automerge.Orchestrator
	threshold    int
	logger       ectologger.Logger
}

type Config struct {
	Engine       *reconcile.Engine
	Scorer       *matching.Scorer
	Provider     reconcile.SuggestionProvider
	Orchestrator *automerge.Orchestrator
	Threshold    int
}

func NewHandler(cfg Config, logger ectologger.Logger) *Handler {
	return &Handler{
		engine:       cfg.Engine,
		scorer:       cfg.Scorer,
		provider:     cfg.Provider,
		orchestrator: cfg.Orchestrator,
		threshold:    cfg.Threshold,
		logger:       logger,
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/merges", h.List)
	g.POST("/merges", h.Open)
	g.GET("/merges/:id", h.Get)
	g.GET("/merges/:id/conflicts", h.Conflicts)
	g.POST("/merges/:id/select", h.Select)
	g.POST("/merges/:id/suggest", h.Suggest)
	g.DELETE("/merges/:id/suggest", h.CancelSuggestion)
	g.PUT("/merges/:id/overrides", h.SetOverrides)
	g.POST("/merges/:id/approve", h.Approve)
	g.POST("/merges/:id/apply", h.Apply)
	g.POST("/merges/:id/dismiss", h.Dismiss)
	g.POST("/keepers/:id/undo", h.Undo)
	g.GET("/activity", h.Activity)
	g.POST("/automerge", h.AutoMerge)
}

// SessionResponse adds the derived approval flag to a session
type SessionResponse struct {
	*models.MergeSession
	ReadyToApprove bool `json:"ready_to_approve"`
}

func toResponse(s *models.MergeSession) SessionResponse {
	return SessionResponse{MergeSession: s, ReadyToApprove: s.ReadyToApprove()}
}

type OpenRequest struct {
	KeeperID     string   `json:"keeper_id" validate:"required"`
	CandidateIDs []string `json:"candidate_ids" validate:"omitempty,dive,required"`
	Threshold    *int     `json:"threshold" validate:"omitempty,gte=0,lte=100"`
}

// Open builds the group for keeper_id and starts a session. When candidate_ids is
// given the session moves straight to selected_for_merge.
func (h *Handler) Open(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[OpenRequest](c)
	if err != nil {
		return err
	}
	threshold := h.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	store := h.engine.Store()
	found, err := store.GetMany(ctx, []string{req.KeeperID})
	if err != nil {
		return clovererrors.NewExternalServiceError("record store", "get records", err)
	}
	if len(found) == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "record %s not found", req.KeeperID)
	}
	pool, err := store.FetchPool(ctx, models.PoolFilter{})
	if err != nil {
		return clovererrors.NewExternalServiceError("record store", "fetch pool", err)
	}

	session, err := h.engine.Open(ctx, h.scorer.BuildGroup(found[0], pool, threshold))
	if err != nil {
		return err
	}
	if len(req.CandidateIDs) > 0 {
		if session, err = h.engine.Select(ctx, session.ID, req.CandidateIDs); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusCreated, toResponse(session))
}

func (h *Handler) List(c echo.Context) error {
	sessions := h.engine.Sessions(c.Request().Context())
	state := models.MergeState(c.QueryParam("state"))

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		if state != "" && s.State != state {
			continue
		}
		out = append(out, toResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c echo.Context) error {
	session, err := h.engine.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) Conflicts(c echo.Context) error {
	conflicts, err := h.engine.Conflicts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conflicts)
}

type SelectRequest struct {
	CandidateIDs []string `json:"candidate_ids" validate:"required,min=1,dive,required"`
}

func (h *Handler) Select(c echo.Context) error {
	req, err := utils.BindRequest[SelectRequest](c)
	if err != nil {
		return err
	}
	session, err := h.engine.Select(c.Request().Context(), c.Param("id"), req.CandidateIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

type SuggestRequest struct {
	// Manual skips the provider and keeps the keeper's values
	Manual         bool `json:"manual"`
	TimeoutSeconds int  `json:"timeout_seconds" validate:"gte=0,lte=600"`
}

// Suggest blocks until the provider answers, times out, or the request is cancelled
func (h *Handler) Suggest(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[SuggestRequest](c)
	if err != nil {
		return err
	}

	var session *models.MergeSession
	if req.Manual || h.provider == nil {
		session, err = h.engine.ResolveManually(ctx, c.Param("id"))
	} else {
		session, err = h.engine.RequestSuggestion(ctx, c.Param("id"), h.provider, time.Duration(req.TimeoutSeconds)*time.Second)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) CancelSuggestion(c echo.Context) error {
	if err := h.engine.CancelSuggestion(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type OverridesRequest struct {
	Overrides map[string]string `json:"overrides" validate:"required"`
}

func (h *Handler) SetOverrides(c echo.Context) error {
	req, err := utils.BindRequest[OverridesRequest](c)
	if err != nil {
		return err
	}
	session, err := h.engine.SetOverrides(c.Request().Context(), c.Param("id"), req.Overrides)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) Approve(c echo.Context) error {
	ctx := c.Request().Context()
	session, err := h.engine.Approve(ctx, c.Param("id"), context.GetActor(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) Apply(c echo.Context) error {
	ctx := c.Request().Context()
	event, err := h.engine.Apply(ctx, c.Param("id"), context.GetActor(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Dismiss(c echo.Context) error {
	ctx := c.Request().Context()
	session, err := h.engine.Dismiss(ctx, c.Param("id"), context.GetActor(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

type UndoRequest struct {
	// EventID pins the merge being undone; empty undoes whatever the keeper's slot holds
	EventID string `json:"event_id"`
}

func (h *Handler) Undo(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[UndoRequest](c)
	if err != nil {
		return err
	}
	event, err := h.engine.Undo(ctx, c.Param("id"), req.EventID, context.GetActor(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Activity(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "limit must be a non-negative integer, got %q", raw)
		}
		limit = n
	}

	events, err := h.engine.Activity(ctx, context.GetActor(ctx), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

type AutoMergeRequest struct {
	Threshold   *int   `json:"threshold" validate:"omitempty,gte=0,lte=100"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Limit       int    `json:"limit" validate:"gte=0"`
}

// AutoMerge scans the pool and pushes every group through suggestion and apply
func (h *Handler) AutoMerge(c echo.Context) error {
	ctx := c.Request().Context()

	actor := context.GetActor(ctx)
	if !actor.Role.CanApprove() {
		return clovererrors.NewAuthorizationError(actor.ID, string(actor.Role), "run auto-merge")
	}
	if h.orchestrator == nil || h.provider == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "auto-merge requires a suggestion provider")
	}

	req, err := utils.BindRequest[AutoMergeRequest](c)
	if err != nil {
		return err
	}
	threshold := h.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	pool, err := h.engine.Store().FetchPool(ctx, models.PoolFilter{
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Limit:       req.Limit,
	})
	if err != nil {
		return clovererrors.NewExternalServiceError("record store", "fetch pool", err)
	}

	groups := h.scorer.BuildGroups(pool, threshold)
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"actor":  actor.ID,
		"groups": len(groups),
	}).Info("Starting auto-merge")

	return c.JSON(http.StatusOK, h.orchestrator.AutoMerge(ctx, groups, h.provider))
}
