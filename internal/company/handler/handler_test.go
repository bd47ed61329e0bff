package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bizreg/internal/company/handler/mocks"
	"bizreg/internal/company/models"
	"bizreg/internal/company/search"
	enrichModels "bizreg/internal/enrichment/models"
	rlModels "bizreg/internal/ratelimit/models"
	"bizreg/pkg/domain"
	"bizreg/pkg/platform/sentinel"
)

//go:generate mockgen -source=handler.go -destination=mocks/company-mocks.go -package=mocks Service,Enricher
type CompanyHandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	enricher *mocks.MockEnricher
	router   chi.Router
}

func TestCompanyHandlerSuite(t *testing.T) {
	suite.Run(t, new(CompanyHandlerSuite))
}

func (s *CompanyHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.enricher = mocks.NewMockEnricher(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, s.enricher, logger, nil).Register(s.router)
}

func (s *CompanyHandlerSuite) do(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func sampleCompany() *models.Company {
	city := "Bratislava"
	return &models.Company{Identifier: "00123456", Name: "Firma s.r.o.", City: &city, Country: "SK", Active: true}
}

func (s *CompanyHandlerSuite) TestSearch() {
	s.service.EXPECT().Search(gomock.Any(), search.Query{Text: "firma", Limit: 5, IncludeInactive: true}).
		Return([]models.Summary{{Identifier: "00123456", Name: "Firma s.r.o.", Active: true}}, nil)

	w := s.do("/companies/search?q=%20firma%20&limit=5&include_inactive=true")

	s.Equal(http.StatusOK, w.Code)
	var resp struct {
		Results []map[string]any `json:"results"`
		Count   int              `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(1, resp.Count)
	s.Equal("00123456", resp.Results[0]["identifier"])
}

func (s *CompanyHandlerSuite) TestSearchEmptyResultIsArray() {
	s.service.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, nil)

	w := s.do("/companies/search?q=nothing")

	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"results":[],"count":0}`, w.Body.String())
}

func (s *CompanyHandlerSuite) TestSearchValidation() {
	for _, path := range []string{
		"/companies/search",
		"/companies/search?q=a",
		"/companies/search?q=%20%20b%20",
		"/companies/search?q=firma&limit=x",
	} {
		w := s.do(path)
		s.Equal(http.StatusBadRequest, w.Code, path)
		s.Contains(w.Body.String(), "bad_request", path)
	}
}

func (s *CompanyHandlerSuite) TestSearchFailureHidesCause() {
	s.service.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("pq: relation missing"))

	w := s.do("/companies/search?q=firma")

	s.Equal(http.StatusInternalServerError, w.Code)
	s.NotContains(w.Body.String(), "relation")
}

func (s *CompanyHandlerSuite) TestGet() {
	s.service.EXPECT().Get(gomock.Any(), "123456").Return(sampleCompany(), nil)

	w := s.do("/companies/123456")

	s.Equal(http.StatusOK, w.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("00123456", body["identifier"])
	s.Equal("Bratislava", body["city"])
	s.NotContains(body, "NormalizedName")
}

func (s *CompanyHandlerSuite) TestGetNotFound() {
	s.service.EXPECT().Get(gomock.Any(), "99999999").
		Return(nil, fmt.Errorf("company 99999999: %w", sentinel.ErrNotFound))

	w := s.do("/companies/99999999")

	s.Equal(http.StatusNotFound, w.Code)
	s.Contains(w.Body.String(), "not_found")
}

func (s *CompanyHandlerSuite) TestGetInvalidIdentifier() {
	s.service.EXPECT().Get(gomock.Any(), "abc").DoAndReturn(
		func(_ context.Context, raw string) (*models.Company, error) {
			_, err := domain.ParseIdentifier(raw)
			return nil, err
		})

	w := s.do("/companies/abc")

	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *CompanyHandlerSuite) TestDetailReportsUnavailableFields() {
	c := sampleCompany()
	s.service.EXPECT().Get(gomock.Any(), "00123456").Return(c, nil)
	s.enricher.EXPECT().Enrich(gomock.Any(), *c).Return(enrichModels.Result{
		Company:      *c,
		Stakeholders: []enrichModels.Stakeholder{{Name: "Jana", Role: "director"}},
		Unavailable:  []string{enrichModels.FieldDetail},
	})

	w := s.do("/companies/00123456/detail")

	s.Equal(http.StatusOK, w.Code)
	var body struct {
		Company      map[string]any   `json:"company"`
		Detail       any              `json:"detail"`
		Stakeholders []map[string]any `json:"stakeholders"`
		Unavailable  []string         `json:"unavailable"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("00123456", body.Company["identifier"])
	s.Nil(body.Detail)
	s.Len(body.Stakeholders, 1)
	s.Equal([]string{"detail"}, body.Unavailable)
}

func (s *CompanyHandlerSuite) TestDetailNotFoundSkipsEnrichment() {
	s.service.EXPECT().Get(gomock.Any(), "00000001").Return(nil, sentinel.ErrNotFound)

	w := s.do("/companies/00000001/detail")

	s.Equal(http.StatusNotFound, w.Code)
}

func (s *CompanyHandlerSuite) TestStats() {
	s.service.EXPECT().Count(gomock.Any()).Return(models.Counts{Total: 10, Active: 7}, nil)

	w := s.do("/companies/stats")

	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"total":10,"active":7}`, w.Body.String())
}

func TestDetailWithoutEnricher(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := mocks.NewMockService(ctrl)
	service.EXPECT().Get(gomock.Any(), "00123456").Return(sampleCompany(), nil)

	r := chi.NewRouter()
	New(service, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/companies/00123456/detail", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Unavailable []string `json:"unavailable"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"detail", "stakeholders"}, body.Unavailable)
}

type classLimiter struct {
	blocked rlModels.EndpointClass
	seen    []rlModels.EndpointClass
}

func (l *classLimiter) RateLimit(class rlModels.EndpointClass) func(http.Handler) http.Handler {
	l.seen = append(l.seen, class)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if class == l.blocked {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TestLimiterAppliesPerClass(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := mocks.NewMockService(ctrl)
	service.EXPECT().Get(gomock.Any(), "00123456").Return(sampleCompany(), nil)

	limiter := &classLimiter{blocked: rlModels.ClassSearch}
	router := chi.NewRouter()
	New(service, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, WithLimiter(limiter)).Register(router)
	assert.ElementsMatch(t, []rlModels.EndpointClass{rlModels.ClassSearch, rlModels.ClassRead}, limiter.seen)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/companies/search?q=firma", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/companies/00123456", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
