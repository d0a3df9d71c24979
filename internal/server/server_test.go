package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/assignment"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/classifier"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/idempotency"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/intake"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/quarantine"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/ratelimit"
	storagemock "gitlab.com/funnelworks/api/lead-intake-service/internal/storage/mock"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
)

func init() {
	// Initialize logger for tests
	logger.Log = zap.NewNop()
}

type serverFixture struct {
	server *Server
	leads  *storagemock.LeadRepoMock
	rules  *storagemock.RuleRepoMock
}

func newServerFixture(burstLimit int) *serverFixture {
	leads := new(storagemock.LeadRepoMock)
	rules := new(storagemock.RuleRepoMock)
	unassigned := new(storagemock.UnassignedRepoMock)
	unassigned.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Maybe()
	events := new(storagemock.PublisherMock)
	events.On("PublishLeadAccepted", mock.Anything, mock.Anything).Return().Maybe()
	events.On("Audit", mock.Anything, mock.Anything).Return().Maybe()

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(1000), config.RateLimitConfig{
		MaxRequests:        1000,
		WindowSeconds:      3600,
		BurstLimit:         burstLimit,
		BurstWindowSeconds: 60,
	})
	cls := classifier.New(config.ClassifierConfig{SpamThreshold: 0.5, BlockThreshold: 0.8})
	checker := quarantine.NewChecker(leads, config.QuarantineConfig{
		EmailVelocityLimit:  10,
		EmailVelocityWindow: time.Hour,
		DuplicateWindow:     time.Hour,
	})
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), config.IdempotencyConfig{
		Retention:  24 * time.Hour,
		BucketSize: 5 * time.Minute,
	})
	engine := assignment.NewEngine(leads, rules, unassigned, events)
	pipeline := intake.NewPipeline(limiter, cls, checker, guard, leads, engine, nil, events)
	service := intake.NewLeadService(leads, unassigned, events)

	return &serverFixture{
		server: NewServer("0", pipeline, service, engine, zap.NewNop()),
		leads:  leads,
		rules:  rules,
	}
}

func (f *serverFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleSubmit_Created(t *testing.T) {
	f := newServerFixture(100)
	f.leads.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rules.On("ActiveRulesForFunnel", mock.Anything, mock.Anything).
		Return([]model.AssignmentRule{}, nil)
	f.leads.On("MarkUnassigned", mock.Anything, mock.Anything).Return(nil)

	rec := f.do(http.MethodPost, "/v1/leads", map[string]string{
		"email":    "jane.doe@gmail.com",
		"name":     "Jane Doe",
		"funnelId": "funnel-1",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var result model.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.LeadID)
}

func TestHandleSubmit_MalformedJSON(t *testing.T) {
	f := newServerFixture(100)

	req := httptest.NewRequest(http.MethodPost, "/v1/leads", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmit_ValidationErrorsListFields(t *testing.T) {
	f := newServerFixture(100)

	rec := f.do(http.MethodPost, "/v1/leads", map[string]string{
		"name": "Jane Doe",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Fields []apperrors.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Fields)

	names := make([]string, 0, len(body.Fields))
	for _, fe := range body.Fields {
		names = append(names, fe.Field)
	}
	assert.Contains(t, names, "email")
}

func TestHandleSubmit_HoneypotStillSucceeds(t *testing.T) {
	f := newServerFixture(100)
	f.leads.On("Save", mock.Anything, mock.Anything).Return(nil)

	rec := f.do(http.MethodPost, "/v1/leads", map[string]string{
		"email":   "jane.doe@gmail.com",
		"website": "http://bot.example",
	})

	// A trapped bot gets a normal-looking success, not a rejection.
	assert.Equal(t, http.StatusCreated, rec.Code)

	var result model.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, model.StatusQuarantined, result.Status)
}

func TestHandleSubmit_RateLimitedWithRetryAfter(t *testing.T) {
	f := newServerFixture(1)
	f.leads.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.rules.On("ActiveRulesForFunnel", mock.Anything, mock.Anything).
		Return([]model.AssignmentRule{}, nil)
	f.leads.On("MarkUnassigned", mock.Anything, mock.Anything).Return(nil)

	payload := func(i int) map[string]string {
		return map[string]string{
			"email":          "jane.doe@gmail.com",
			"funnelId":       "funnel-1",
			"idempotencyKey": fmt.Sprintf("key-%d", i),
		}
	}

	first := f.do(http.MethodPost, "/v1/leads", payload(0))
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(http.MethodPost, "/v1/leads", payload(1))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestHandleSubmit_ReplayReturns200(t *testing.T) {
	f := newServerFixture(100)
	f.leads.On("Save", mock.Anything, mock.Anything).Return(nil)
	// The replay reaches the duplicate checker before the guard, with the
	// email already in the seen filter.
	f.leads.On("CountByEmailSince", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(1), nil)
	f.leads.On("FindRecentByEmail", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.Lead{}, nil)
	f.rules.On("ActiveRulesForFunnel", mock.Anything, mock.Anything).
		Return([]model.AssignmentRule{}, nil)
	f.leads.On("MarkUnassigned", mock.Anything, mock.Anything).Return(nil)

	payload := map[string]string{
		"email":          "jane.doe@gmail.com",
		"funnelId":       "funnel-1",
		"idempotencyKey": "stable-key",
	}

	first := f.do(http.MethodPost, "/v1/leads", payload)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(http.MethodPost, "/v1/leads", payload)
	assert.Equal(t, http.StatusOK, second.Code)

	var firstResult, secondResult model.SubmissionResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResult))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResult))
	assert.Equal(t, firstResult.LeadID, secondResult.LeadID)
	assert.True(t, secondResult.Duplicate)
}

func TestHandleGetLead_NotFound(t *testing.T) {
	f := newServerFixture(100)
	f.leads.On("FindByID", mock.Anything, "missing").Return(nil, apperrors.ErrNotFound)

	rec := f.do(http.MethodGet, "/v1/leads/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateStatus_IllegalTransition(t *testing.T) {
	f := newServerFixture(100)
	f.leads.On("FindByID", mock.Anything, "lead-1").
		Return(&model.Lead{ID: "lead-1", Status: model.StatusNew}, nil)

	rec := f.do(http.MethodPatch, "/v1/leads/lead-1/status", map[string]interface{}{
		"status": "won",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Allowed []string `json:"allowedTransitions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Allowed)
}

func TestHandleUpdateStatus_ForceRequiresActor(t *testing.T) {
	f := newServerFixture(100)

	rec := f.do(http.MethodPatch, "/v1/leads/lead-1/status", map[string]interface{}{
		"status": "lost",
		"force":  true,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReassign_RequiresOrg(t *testing.T) {
	f := newServerFixture(100)

	rec := f.do(http.MethodPost, "/v1/leads/lead-1/assign", map[string]interface{}{
		"actor": "admin@funnelworks.io",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
