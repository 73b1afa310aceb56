package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/internal/repositories/memory"
	"github.com/Ramsey-B/clover/pkg/automerge"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/routes/record"
	"github.com/Ramsey-B/clover/pkg/suggestion"
)

func getTestLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

type apiFixture struct {
	e     *echo.Echo
	store *memory.PersonStore
}

func newAPIFixture() *apiFixture {
	store := memory.NewPersonStore(
		models.PersonRecord{
			ID: "p1", FirstName: "Raymond", LastName: "Smith", DateOfBirth: "1980-01-01",
			PhoneNumber: "555-0100", Email: "ray@example.com", Street: "Main St", Number: "12",
			City: "Springfield", Gender: "male", Active: true,
		},
		models.PersonRecord{
			ID: "p2", FirstName: "Raymogond", LastName: "Smith", DateOfBirth: "1980-01-01",
			SSN: "123-45-6789", PhoneNumber: "555-0101", Email: "ray@example.com", Active: true,
		},
		models.PersonRecord{
			ID: "p3", FirstName: "Ada", LastName: "Lovelace", DateOfBirth: "1815-12-10", Active: true,
		},
	)
	engine := reconcile.NewEngine(getTestLogger(), store, memory.NewActivityLog(), memory.NewSnapshotStore())

	e := NewServer(Deps{
		ServiceName:  "clover-test",
		Engine:       engine,
		Scorer:       matching.NewScorer(matching.DefaultWeights()),
		Provider:     suggestion.RulesProvider{},
		Orchestrator: automerge.NewOrchestrator(engine, getTestLogger(), automerge.Config{Workers: 2}),
		Health:       health.NewChecker("test"),
		Threshold:    40,
	}, getTestLogger())

	return &apiFixture{e: e, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path, role, body string, out any) int {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(middleware.HeaderUserID, "user-"+role)
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestAPI_Candidates(t *testing.T) {
	f := newAPIFixture()

	var resp record.CandidatesResponse
	code := f.do(t, http.MethodGet, "/api/v1/records/p1/candidates", "viewer", "", &resp)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "p2", resp.Candidates[0].Record.ID)
	assert.Equal(t, 40, resp.Threshold)

	var errResp middleware.ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/records/nope/candidates", "viewer", "", &errResp))
	assert.NotEmpty(t, errResp.RequestID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/records/p1/candidates?threshold=abc", "viewer", "", nil))

	var group record.GroupResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/records/p3/group", "viewer", "", &group))
	assert.Empty(t, group.Candidates)
	assert.Equal(t, models.ConfidenceLow, group.Tier)
}

func TestAPI_Scan(t *testing.T) {
	f := newAPIFixture()

	var resp record.ScanResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/groups/scan", "viewer", `{"open":true}`, &resp))
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "p1", resp.Groups[0].Keeper.ID)
	assert.NotEmpty(t, resp.Sessions["p1"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/groups/scan", "viewer", `{"threshold":150}`, nil))
}

func TestAPI_ReviewApplyUndo(t *testing.T) {
	f := newAPIFixture()

	var session merge.SessionResponse
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/merges", "receptionist", `{"keeper_id":"p1","candidate_ids":["p2"]}`, &session))
	assert.Equal(t, models.StateSelectedForMerge, session.State)
	id := session.ID

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/merges/"+id+"/suggest", "receptionist", `{}`, &session))
	assert.Equal(t, models.StateNeedsReview, session.State, "phone digits differ")
	assert.False(t, session.ReadyToApprove)

	var errResp middleware.ErrorResponse
	require.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodPost, "/api/v1/merges/"+id+"/approve", "approver", "", &errResp))
	assert.Contains(t, errResp.Message, models.FieldPhoneNumber)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/merges/"+id+"/overrides", "receptionist", `{"overrides":{"phone_number":"555-0101"}}`, &session))
	assert.True(t, session.ReadyToApprove)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/v1/merges/"+id+"/approve", "receptionist", "", nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/merges/"+id+"/approve", "approver", "", &session))
	assert.Equal(t, models.StateApproved, session.State)

	var event models.MergeActivityEvent
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/merges/"+id+"/apply", "approver", "", &event))
	assert.Equal(t, "p1", event.KeeperID)
	assert.Equal(t, []string{"p2"}, event.MergedIDs)

	keeper, err := f.store.Get(t.Context(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "123-45-6789", keeper.SSN)
	assert.Equal(t, "555-0101", keeper.PhoneNumber)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/v1/merges/"+id+"/apply", "approver", "", nil), "already applied")

	var undo models.MergeActivityEvent
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/keepers/p1/undo", "approver", `{"event_id":"`+event.ID+`"}`, &undo))
	assert.Equal(t, models.ActivityUndo, undo.Kind)

	restored, err := f.store.Get(t.Context(), "p2")
	require.NoError(t, err)
	assert.True(t, restored.Active)
	assert.Nil(t, restored.MergedInto)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/v1/activity", "viewer", "", nil))
	var history []models.MergeActivityEvent
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/activity?limit=10", "auditor", "", &history))
	require.Len(t, history, 2)
	assert.Equal(t, models.ActivityUndo, history[0].Kind, "newest first")
}

func TestAPI_Dismiss(t *testing.T) {
	f := newAPIFixture()

	var session merge.SessionResponse
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/merges", "receptionist", `{"keeper_id":"p1"}`, &session))
	assert.Equal(t, models.StateIdentified, session.State)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/merges/"+session.ID+"/dismiss", "receptionist", "", &session))
	assert.Equal(t, models.StateDismissed, session.State)

	var list []merge.SessionResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/merges?state=dismissed", "viewer", "", &list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodGet, "/api/v1/merges/missing", "viewer", "", nil))
}

func TestAPI_AutoMerge(t *testing.T) {
	f := newAPIFixture()

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/v1/automerge", "receptionist", `{}`, nil))

	var result automerge.Result
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/automerge", "admin", `{}`, &result))
	assert.Empty(t, result.Applied)
	assert.Equal(t, []string{"p1"}, result.NeedsReview, "rules provider cannot settle the phone conflict")
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	f := newAPIFixture()

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/live", "", "", nil))
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", "", nil))

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
