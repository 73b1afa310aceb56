// Package record serves candidate ranking and duplicate group discovery
package record

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type Handler struct {
	store     reconcile.RecordStore
	scorer    *matching.Scorer
	engine    *reconcile.Engine
	threshold int
	logger    ectologger.Logger
}

func NewHandler(engine *reconcile.Engine, scorer *matching.Scorer, threshold int, logger ectologger.Logger) *Handler {
	return &Handler{
		store:     engine.Store(),
		scorer:    scorer,
		engine:    engine,
		threshold: threshold,
		logger:    logger,
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/records/:id/candidates", h.Candidates)
	g.GET("/records/:id/group", h.Group)
	g.POST("/groups/scan", h.Scan)
}

type CandidatesResponse struct {
	Record     models.PersonRecord     `json:"record"`
	Threshold  int                     `json:"threshold"`
	Candidates []models.MatchCandidate `json:"candidates"`
}

// Candidates ranks every active record against :id
func (h *Handler) Candidates(c echo.Context) error {
	threshold, err := h.thresholdParam(c)
	if err != nil {
		return err
	}
	ref, pool, err := h.referenceAndPool(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, CandidatesResponse{
		Record:     ref,
		Threshold:  threshold,
		Candidates: h.scorer.Rank(ref, pool, threshold),
	})
}

// Group returns the duplicate group keyed by :id with its confidence tier
func (h *Handler) Group(c echo.Context) error {
	threshold, err := h.thresholdParam(c)
	if err != nil {
		return err
	}
	ref, pool, err := h.referenceAndPool(c)
	if err != nil {
		return err
	}

	group := h.scorer.BuildGroup(ref, pool, threshold)
	return c.JSON(http.StatusOK, GroupResponse{DuplicateGroup: group, Tier: group.ConfidenceTier()})
}

type GroupResponse struct {
	models.DuplicateGroup
	Tier models.ConfidenceTier `json:"tier"`
}

type ScanRequest struct {
	Threshold   *int   `json:"threshold" validate:"omitempty,gte=0,lte=100"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Limit       int    `json:"limit" validate:"gte=0"`
	Open        bool   `json:"open"`
}

type ScanResponse struct {
	Groups   []GroupResponse   `json:"groups"`
	Sessions map[string]string `json:"sessions,omitempty"`
}

// Scan clusters the pool into disjoint duplicate groups, optionally opening a session per group
func (h *Handler) Scan(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[ScanRequest](c)
	if err != nil {
		return err
	}
	threshold := h.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	pool, err := h.store.FetchPool(ctx, models.PoolFilter{
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Limit:       req.Limit,
	})
	if err != nil {
		return clovererrors.NewExternalServiceError("record store", "fetch pool", err)
	}

	groups := h.scorer.BuildGroups(pool, threshold)
	resp := ScanResponse{Groups: make([]GroupResponse, 0, len(groups))}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, GroupResponse{DuplicateGroup: g, Tier: g.ConfidenceTier()})
	}

	if req.Open {
		resp.Sessions = make(map[string]string, len(groups))
		for _, g := range groups {
			session, err := h.engine.Open(ctx, g)
			if err != nil {
				return err
			}
			resp.Sessions[g.ID] = session.ID
		}
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"pool":      len(pool),
		"groups":    len(groups),
		"threshold": threshold,
		"opened":    req.Open,
	}).Info("Scanned for duplicate groups")

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) thresholdParam(c echo.Context) (int, error) {
	raw := c.QueryParam("threshold")
	if raw == "" {
		return h.threshold, nil
	}
	threshold, err := strconv.Atoi(raw)
	if err != nil || threshold < 0 || threshold > 100 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "threshold must be an integer between 0 and 100, got %q", raw)
	}
	return threshold, nil
}

func (h *Handler) referenceAndPool(c echo.Context) (models.PersonRecord, []models.PersonRecord, error) {
	ctx := c.Request().Context()
	id := c.Param("id")

	found, err := h.store.GetMany(ctx, []string{id})
	if err != nil {
		return models.PersonRecord{}, nil, clovererrors.NewExternalServiceError("record store", "get records", err)
	}
	if len(found) == 0 {
		return models.PersonRecord{}, nil, httperror.NewHTTPErrorf(http.StatusNotFound, "record %s not found", id)
	}

	pool, err := h.store.FetchPool(ctx, models.PoolFilter{})
	if err != nil {
		return models.PersonRecord{}, nil, clovererrors.NewExternalServiceError("record store", "fetch pool", err)
	}
	return found[0], pool, nil
}
