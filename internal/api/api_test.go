package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/explain"
	"welfare-caseworker/internal/models"
	"welfare-caseworker/internal/risk"
	"welfare-caseworker/internal/service"
	"welfare-caseworker/internal/store"
	"welfare-caseworker/internal/workflow"
)

// ==========================
// Test Helper Functions
// ==========================

// stubScorer derives the level from the citizen's interruptions so tests can mix risk levels.
type stubScorer struct {
	loaded bool
}

func (s *stubScorer) Loaded() bool { return s.loaded }

func (s *stubScorer) Score(c models.CitizenCase) (*risk.Assessment, error) {
	score := 20.0 + float64(c.PastBenefitInterruptions)*20 + 7.456
	return &risk.Assessment{
		RiskScore: score,
		RiskLevel: models.RiskLevelForScore(score),
		Reasons: map[string]models.FeatureReason{
			"past_benefit_interruptions": {Value: float64(c.PastBenefitInterruptions), Importance: 0.5},
		},
	}, nil
}

type failingStore struct {
	store.Store
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func (failingStore) List(context.Context, store.Filter) ([]*models.Case, error) {
	return nil, errors.New("connection refused")
}

type testServer struct {
	router *gin.Engine
	wf     *workflow.Workflow
}

func newTestServer(t *testing.T, loaded bool, s store.Store) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewTestLogger(t)
	if s == nil {
		s = store.NewMemoryStore()
	}
	scorer := &stubScorer{loaded: loaded}
	renderer := explain.NewRenderer(nil, time.Second, log)
	wf := workflow.New(s, nil, log)

	router := NewRouter(Deps{
		Analyzer:  service.NewAnalyzer(scorer, renderer, wf, nil, log),
		Workflow:  wf,
		Model:     scorer,
		Generator: renderer,
		Logger:    log,
	}, Options{
		AppName:        "Welfare Caseworker API",
		Version:        "1.0.0",
		StorageDriver:  "memory",
		AllowedOrigins: []string{"http://localhost:3000"},
		MetricsEnabled: true,
	})
	return &testServer{router: router, wf: wf}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func citizen(id string, interruptions int) map[string]interface{} {
	return map[string]interface{}{
		"citizen_id":                  id,
		"income":                      35000,
		"last_document_update_months": 18,
		"scheme_type":                 "pension",
		"past_benefit_interruptions":  interruptions,
	}
}

func (s *testServer) analyze(t *testing.T, id string, interruptions int) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/analyze_case", map[string]interface{}{"case": citizen(id, interruptions)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["case_id"].(string)
}

func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	envelope, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "missing error envelope: %v", body)
	return envelope["code"].(string)
}

// ==========================
// Analyze / Approve Flow
// ==========================

func TestAnalyzeAndApproveFlow(t *testing.T) {
	srv := newTestServer(t, true, nil)

	w, created := srv.do(t, http.MethodPost, "/analyze_case", map[string]interface{}{"case": citizen("CIT_000042", 3)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	caseID := created["case_id"].(string)
	assert.Regexp(t, `^CASE_\d{8}_\d{6}_[0-9a-f]{8}$`, caseID)
	assert.Equal(t, "PENDING_APPROVAL", created["status"])
	assert.Equal(t, "high", created["risk_level"])
	assert.InDelta(t, 87.46, created["risk_score"], 1e-9)
	assert.Equal(t, "URGENT_REVIEW", created["recommended_action"])
	assert.Equal(t, "fallback", created["explanation_source"])
	assert.Equal(t, "CIT_000042", created["citizen_id"])
	assert.Contains(t, created["explanation"], "high risk score (87)")

	w, fetched := srv.do(t, http.MethodGet, "/cases/"+caseID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, caseID, fetched["case_id"])

	w, approved := srv.do(t, http.MethodPost, "/approve_case", map[string]interface{}{
		"case_id":       caseID,
		"officer_id":    "OFF_7",
		"decision":      "APPROVE",
		"officer_notes": "documents verified in person",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Case "+caseID+" successfully approved", approved["message"])
	assert.Equal(t, "APPROVE", approved["decision"])
	assert.Equal(t, "OVERRIDE", approved["decision_alignment"])
	assert.Equal(t, "OFF_7", approved["officer_id"])
	assert.NotEmpty(t, approved["approval_id"])
	updated := approved["case"].(map[string]interface{})
	assert.Equal(t, "APPROVED", updated["status"])
	assert.Equal(t, "documents verified in person", updated["officer_notes"])

	w, conflict := srv.do(t, http.MethodPost, "/approve_case", map[string]interface{}{
		"case_id":    caseID,
		"officer_id": "OFF_8",
		"decision":   "REJECT",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CASE_ALREADY_PROCESSED", errorCode(t, conflict))
	assert.Contains(t, conflict["error"].(map[string]interface{})["details"], "status: APPROVED")

	_, fetched = srv.do(t, http.MethodGet, "/cases/"+caseID, nil)
	assert.Equal(t, "APPROVED", fetched["status"])
	assert.Equal(t, "OFF_7", fetched["officer_id"])
}

func TestAnalyzeCase_BareBody(t *testing.T) {
	srv := newTestServer(t, true, nil)

	w, created := srv.do(t, http.MethodPost, "/analyze_case", citizen("CIT_000001", 0))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "low", created["risk_level"])
	assert.Equal(t, "ROUTINE_REVIEW", created["recommended_action"])
}

func TestAnalyzeCase_Validation(t *testing.T) {
	srv := newTestServer(t, true, nil)

	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{
			name:  "missing income",
			body:  map[string]interface{}{"citizen_id": "CIT_1", "last_document_update_months": 2, "scheme_type": "pension", "past_benefit_interruptions": 0},
			field: "income",
		},
		{
			name: "unknown scheme",
			body: map[string]interface{}{"case": map[string]interface{}{
				"citizen_id": "CIT_1", "income": 1000, "last_document_update_months": 2,
				"scheme_type": "housing", "past_benefit_interruptions": 0,
			}},
			field: "scheme_type",
		},
		{
			name:  "malformed json",
			body:  `{"citizen_id": `,
			field: "(root)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := srv.do(t, http.MethodPost, "/analyze_case", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
			assert.Contains(t, body["error"].(map[string]interface{})["details"], tt.field)
		})
	}

	w, list := srv.do(t, http.MethodGet, "/cases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, list["total_count"])
}

func TestAnalyzeCase_ModelNotLoaded(t *testing.T) {
	srv := newTestServer(t, false, nil)

	w, body := srv.do(t, http.MethodPost, "/analyze_case", citizen("CIT_1", 1))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "MODEL_NOT_LOADED", errorCode(t, body))
}

func TestApproveCase_Errors(t *testing.T) {
	srv := newTestServer(t, true, nil)
	caseID := srv.analyze(t, "CIT_000042", 1)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "unknown case",
			body:   map[string]interface{}{"case_id": "CASE_missing", "officer_id": "OFF_1", "decision": "APPROVE"},
			status: http.StatusNotFound,
			code:   "CASE_NOT_FOUND",
		},
		{
			name:   "invalid decision",
			body:   map[string]interface{}{"case_id": caseID, "officer_id": "OFF_1", "decision": "MAYBE"},
			status: http.StatusBadRequest,
			code:   "INVALID_DECISION",
		},
		{
			name:   "missing officer",
			body:   map[string]interface{}{"case_id": caseID, "decision": "APPROVE"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "non-string notes alias",
			body:   map[string]interface{}{"case_id": caseID, "officer_id": "OFF_1", "decision": "APPROVE", "notes": 5},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "notes alias too long",
			body:   map[string]interface{}{"case_id": caseID, "officer_id": "OFF_1", "decision": "REJECT", "notes": strings.Repeat("n", 2001)},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "invalid decision and missing officer",
			body:   map[string]interface{}{"case_id": caseID, "decision": "MAYBE"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := srv.do(t, http.MethodPost, "/approve_case", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}

	_, fetched := srv.do(t, http.MethodGet, "/cases/"+caseID, nil)
	assert.Equal(t, "PENDING_APPROVAL", fetched["status"])
}

func TestApproveCase_RejectMessageAndNotesAlias(t *testing.T) {
	srv := newTestServer(t, true, nil)
	caseID := srv.analyze(t, "CIT_000002", 0)

	w, body := srv.do(t, http.MethodPost, "/approve_case", map[string]interface{}{
		"case_id":    caseID,
		"officer_id": "OFF_2",
		"decision":   "REJECT",
		"notes":      "income proof missing",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Case "+caseID+" successfully rejected", body["message"])
	assert.Equal(t, "OVERRIDE", body["decision_alignment"])
	assert.Equal(t, "income proof missing", body["officer_notes"])
}

func TestAnalyzeCase_FractionalMonths(t *testing.T) {
	srv := newTestServer(t, true, nil)

	input := citizen("CIT_000065", 1)
	input["last_document_update_months"] = 6.5
	w, body := srv.do(t, http.MethodPost, "/analyze_case", map[string]interface{}{"case": input})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data, ok := body["citizen_data"].(map[string]interface{})
	require.True(t, ok, "missing citizen_data: %v", body)
	assert.Equal(t, 6.5, data["last_document_update_months"])
}

func TestGetCase_NotFound(t *testing.T) {
	srv := newTestServer(t, true, nil)

	w, body := srv.do(t, http.MethodGet, "/cases/CASE_nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CASE_NOT_FOUND", errorCode(t, body))
}

// ==========================
// Listing
// ==========================

func TestGetCases_FiltersAndOrder(t *testing.T) {
	srv := newTestServer(t, true, nil)
	first := srv.analyze(t, "CIT_A", 0)
	second := srv.analyze(t, "CIT_B", 3)
	third := srv.analyze(t, "CIT_C", 3)

	w, _ := srv.do(t, http.MethodPost, "/approve_case", map[string]interface{}{
		"case_id": second, "officer_id": "OFF_1", "decision": "APPROVE",
	})
	require.Equal(t, http.StatusOK, w.Code)

	ids := func(body map[string]interface{}) []string {
		var out []string
		for _, c := range body["cases"].([]interface{}) {
			out = append(out, c.(map[string]interface{})["case_id"].(string))
		}
		return out
	}

	_, all := srv.do(t, http.MethodGet, "/cases", nil)
	assert.Equal(t, []string{third, second, first}, ids(all))
	assert.EqualValues(t, 3, all["total_count"])

	_, limited := srv.do(t, http.MethodGet, "/cases?limit=1", nil)
	assert.Equal(t, []string{third}, ids(limited))
	assert.EqualValues(t, 3, limited["total_count"])

	_, approved := srv.do(t, http.MethodGet, "/cases?status=APPROVE", nil)
	assert.Equal(t, []string{second}, ids(approved))

	_, pendingHigh := srv.do(t, http.MethodGet, "/cases?status=PENDING_APPROVAL&risk_level=HIGH", nil)
	assert.Equal(t, []string{third}, ids(pendingHigh))

	_, pending := srv.do(t, http.MethodGet, "/approvals/pending", nil)
	assert.Equal(t, []string{first, third}, ids(pending))

	for _, query := range []string{"status=DONE", "risk_level=extreme", "limit=abc", "limit=0"} {
		w, body := srv.do(t, http.MethodGet, "/cases?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body), query)
	}
}

func TestGetApprovals(t *testing.T) {
	srv := newTestServer(t, true, nil)
	a := srv.analyze(t, "CIT_A", 1)
	b := srv.analyze(t, "CIT_B", 3)

	for _, id := range []string{a, b} {
		w, _ := srv.do(t, http.MethodPost, "/approve_case", map[string]interface{}{
			"case_id": id, "officer_id": "OFF_1", "decision": "REJECT",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	_, all := srv.do(t, http.MethodGet, "/approvals", nil)
	records := all["approvals"].([]interface{})
	require.Len(t, records, 2)
	assert.Equal(t, b, records[0].(map[string]interface{})["case_id"])
	assert.EqualValues(t, 2, all["total_count"])

	_, forA := srv.do(t, http.MethodGet, "/approvals?case_id="+a, nil)
	records = forA["approvals"].([]interface{})
	require.Len(t, records, 1)
	assert.Equal(t, "ALIGNED", records[0].(map[string]interface{})["decision_alignment"])

	w, _ := srv.do(t, http.MethodGet, "/approvals?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetApprovalHistory(t *testing.T) {
	srv := newTestServer(t, true, nil)
	a := srv.analyze(t, "CIT_A", 1)
	b := srv.analyze(t, "CIT_B", 3)

	w, _ := srv.do(t, http.MethodPost, "/approve_case", map[string]interface{}{
		"case_id": b, "officer_id": "OFF_1", "decision": "APPROVE",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := srv.do(t, http.MethodGet, "/approvals/history", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entries := body["history"].([]interface{})
	require.Len(t, entries, 2)
	assert.EqualValues(t, 2, body["total_count"])

	first := entries[0].(map[string]interface{})
	assert.Equal(t, a, first["case_id"])
	assert.Equal(t, "PENDING_APPROVAL", first["status"])
	assert.NotContains(t, first, "decision")

	second := entries[1].(map[string]interface{})
	assert.Equal(t, b, second["case_id"])
	assert.Equal(t, "APPROVED", second["status"])
	assert.Equal(t, "APPROVE", second["decision"])
	assert.Equal(t, "OVERRIDE", second["decision_alignment"])

	_, pending := srv.do(t, http.MethodGet, "/approvals/history?case_id="+a, nil)
	entries = pending["history"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "PENDING_APPROVAL", entries[0].(map[string]interface{})["status"])

	_, none := srv.do(t, http.MethodGet, "/approvals/history?case_id=CASE_none", nil)
	assert.Empty(t, none["history"])
}

// ==========================
// Service Endpoints
// ==========================

func TestHealth(t *testing.T) {
	srv := newTestServer(t, true, nil)
	srv.analyze(t, "CIT_A", 1)

	w, body := srv.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["models_loaded"])
	assert.Equal(t, false, body["text_generation_configured"])
	assert.Equal(t, "fallback", body["text_generation_provider"])
	assert.Equal(t, "memory", body["storage_driver"])
	assert.EqualValues(t, 1, body["cases_count"])
	assert.EqualValues(t, 0, body["approvals_count"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHealth_Unhealthy(t *testing.T) {
	srv := newTestServer(t, false, nil)
	_, body := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "unhealthy", body["status"])

	srv = newTestServer(t, true, failingStore{Store: store.NewMemoryStore()})
	_, body = srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Contains(t, body["store_error"], "connection refused")
}

func TestStoreUnavailable(t *testing.T) {
	srv := newTestServer(t, true, failingStore{Store: store.NewMemoryStore()})

	w, body := srv.do(t, http.MethodGet, "/cases", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "STORE_UNAVAILABLE", errorCode(t, body))
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t, true, nil)

	w, body := srv.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Welfare Caseworker API", body["message"])
	assert.NotEmpty(t, body["operations"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, true, nil)
	srv.analyze(t, "CIT_A", 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "caseworker_cases_analyzed_total")
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, true, nil)

	req := httptest.NewRequest(http.MethodOptions, "/cases", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/cases", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseStatus(t *testing.T) {
	tests := map[string]models.CaseStatus{
		"APPROVE":          models.StatusApproved,
		"reject":           models.StatusRejected,
		"approved":         models.StatusApproved,
		"PENDING_APPROVAL": models.StatusPendingApproval,
	}
	for raw, want := range tests {
		got, err := parseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseStatus("CLOSED")
	assert.Error(t, err)
}

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("")
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, n)

	n, err = parseLimit("5000")
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, n)

	_, err = parseLimit("-3")
	assert.Error(t, err)
}
