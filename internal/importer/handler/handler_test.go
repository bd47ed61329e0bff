package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bizreg/internal/importer/handler/mocks"
	"bizreg/internal/importer/models"
	jwttoken "bizreg/internal/jwt_token"
	dErrors "bizreg/pkg/domain-errors"
	"bizreg/pkg/domain"
	"bizreg/pkg/platform/audit"
	auditmemory "bizreg/pkg/platform/audit/store/memory"
	"bizreg/pkg/platform/middleware/admin"
	"bizreg/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/import-mocks.go -package=mocks Service
type ImportHandlerSuite struct {
	suite.Suite
	pipeline *mocks.MockService
	audit    *auditmemory.InMemoryStore
	router   chi.Router
}

func TestImportHandlerSuite(t *testing.T) {
	suite.Run(t, new(ImportHandlerSuite))
}

func (s *ImportHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.pipeline = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwttoken.NewJWTService("secret", "bizreg")

	s.audit = auditmemory.NewInMemoryStore()

	s.router = chi.NewRouter()
	New(s.pipeline, admin.RequireAdmin("admin-token", tokens, jwttoken.ScopeImport, logger), logger, nil,
		WithAudit(s.audit),
	).Register(s.router)
}

func (s *ImportHandlerSuite) trigger(body string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/import", strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *ImportHandlerSuite) TestTriggerAccepted() {
	job := domain.NewJobID()
	s.pipeline.EXPECT().Start(gomock.Any(), models.ModeFull).
		Return(models.Job{ID: job, Status: models.StatusStarted}, nil)

	w := s.trigger(`{"mode":"full"}`, "admin-token")

	s.Equal(http.StatusAccepted, w.Code)
	var resp models.TriggerResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(job.String(), resp.JobID)
	s.Equal(models.StatusStarted, resp.Status)
}

func (s *ImportHandlerSuite) TestEmptyBodyMeansFull() {
	s.pipeline.EXPECT().Start(gomock.Any(), models.ModeFull).
		Return(models.Job{ID: domain.NewJobID(), Status: models.StatusStarted}, nil)

	w := s.trigger("", "admin-token")

	s.Equal(http.StatusAccepted, w.Code)
}

func (s *ImportHandlerSuite) TestSecondTriggerConflicts() {
	s.pipeline.EXPECT().Start(gomock.Any(), models.ModeFull).Return(models.Job{}, models.ErrAlreadyRunning)

	w := s.trigger(`{"mode":"full"}`, "admin-token")

	s.Equal(http.StatusConflict, w.Code)
	s.Contains(w.Body.String(), "conflict")
}

func (s *ImportHandlerSuite) TestUnknownMode() {
	s.pipeline.EXPECT().Start(gomock.Any(), models.Mode("delta")).
		Return(models.Job{}, dErrors.New(dErrors.CodeBadRequest, `unsupported import mode "delta"`))

	w := s.trigger(`{"mode":"delta"}`, "admin-token")

	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(w.Body.String(), "delta")
}

func (s *ImportHandlerSuite) TestMalformedBody() {
	w := s.trigger(`{"mode":`, "admin-token")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ImportHandlerSuite) TestUnexpectedStartFailure() {
	s.pipeline.EXPECT().Start(gomock.Any(), gomock.Any()).Return(models.Job{}, errors.New("boom"))

	w := s.trigger(`{"mode":"full"}`, "admin-token")

	s.Equal(http.StatusInternalServerError, w.Code)
	s.NotContains(w.Body.String(), "boom")
}

func (s *ImportHandlerSuite) TestRequiresAdmin() {
	w := s.trigger(`{"mode":"full"}`, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.trigger(`{"mode":"full"}`, "wrong")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *ImportHandlerSuite) TestStatus() {
	job := domain.NewJobID()
	started := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	s.pipeline.EXPECT().Running().Return(false)
	s.pipeline.EXPECT().Last().Return(models.Result{
		JobID:      job,
		Status:     models.StatusOK,
		Generation: 4,
		Companies:  1200,
		Skipped:    3,
		StartedAt:  started,
		Duration:   90 * time.Second,
	}, true)

	req := httptest.NewRequest(http.MethodGet, "/admin/import", nil)
	req.Header.Set("X-Admin-Token", "admin-token")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	var resp models.StatusResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Running)
	s.Require().NotNil(resp.Last)
	s.Equal(job.String(), resp.Last.JobID)
	s.Equal(int64(1200), resp.Last.Companies)
	s.Equal(int64(90000), resp.Last.DurationMS)
}

func (s *ImportHandlerSuite) TestStatusBeforeAnyRun() {
	s.pipeline.EXPECT().Running().Return(true)
	s.pipeline.EXPECT().Last().Return(models.Result{}, false)

	req := httptest.NewRequest(http.MethodGet, "/admin/import", nil)
	req.Header.Set("X-Admin-Token", "admin-token")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"running":true}`, w.Body.String())
}

func (s *ImportHandlerSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Admin-Token", "admin-token")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *ImportHandlerSuite) TestTriggersAreAudited() {
	job := domain.NewJobID()
	gomock.InOrder(
		s.pipeline.EXPECT().Start(gomock.Any(), models.ModeFull).
			Return(models.Job{ID: job, Status: models.StatusStarted}, nil),
		s.pipeline.EXPECT().Start(gomock.Any(), models.ModeFull).
			Return(models.Job{}, models.ErrAlreadyRunning),
	)

	s.trigger(`{"mode":"full"}`, "admin-token")
	s.trigger(`{"mode":"full"}`, "admin-token")

	w := s.get("/admin/audit?limit=10")
	s.Equal(http.StatusOK, w.Code)
	var resp struct {
		Events []audit.Event `json:"events"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().Len(resp.Events, 2)
	s.Equal(audit.ActionImportRejected, resp.Events[0].Action)
	s.Equal(audit.ActionImportTriggered, resp.Events[1].Action)
	s.Equal(job.String(), resp.Events[1].Subject)
	s.Equal(admin.StaticTokenActor, resp.Events[1].Actor)
}

func (s *ImportHandlerSuite) TestAuditEmptyAndValidation() {
	w := s.get("/admin/audit")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"events":[]}`, w.Body.String())

	w = s.get("/admin/audit?limit=zero")
	testutil.AssertError(s.T(), w, http.StatusBadRequest, "bad_request")
}

func (s *ImportHandlerSuite) TestTriggerWithBearerRecordsSubject() {
	tokens := jwttoken.NewJWTService("secret", "bizreg")
	bearer, err := tokens.GenerateAdminToken("ops@example.com", []string{jwttoken.ScopeImport}, time.Hour)
	s.Require().NoError(err)
	s.pipeline.EXPECT().Start(gomock.Any(), models.ModeFull).
		Return(models.Job{ID: domain.NewJobID(), Status: models.StatusStarted}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/import", models.TriggerRequest{Mode: models.ModeFull})
	req.Header.Set("Authorization", "Bearer "+bearer)
	w := testutil.Serve(s.router, req)
	s.Equal(http.StatusAccepted, w.Code)

	events, err := s.audit.ListRecent(req.Context(), 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("ops@example.com", events[0].Actor)
}
