package handler

import (
	"context"
	"encoding/json"
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

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/handler/mocks"
	"citywalk/internal/certification/models"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/resolver"
	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
	"citywalk/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type CertificationHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
}

func TestCertificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(CertificationHandlerSuite))
}

func (s *CertificationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
}

func (s *CertificationHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *CertificationHandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var notarizedAt = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func nightMarketCert() *certificate.Certificate {
	return &certificate.Certificate{
		Version:    certificate.Version,
		Type:       certificate.TypeSeal,
		SealID:     "seal-001",
		UserID:     "user-42",
		SealName:   "Night Market Explorer",
		EarnedTime: "2025-01-15T10:30:00.000Z",
		Location:   "Taipei",
		Timestamp:  1736936400000,
		Nonce:      "00112233445566778899aabbccddeeff",
	}
}

func (s *CertificationHandlerSuite) TestHandleChain() {
	s.Run("chains with requested provider", func() {
		s.SetupTest()
		s.service.EXPECT().
			Chain(gomock.Any(), id.OwnershipID("own-1"), "local").
			Return(&providers.NotarizationResult{
				ReferenceID:  "0xabc",
				Ordinal:      "136936400",
				NotarizedAt:  notarizedAt,
				ProviderName: "local",
				Certificate:  nightMarketCert(),
			}, nil)

		rec := s.do(http.MethodPost, "/admin/seal-ownerships/own-1/chain", `{"provider":" Local "}`)

		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal("0xabc", body["referenceId"])
		s.Equal("local", body["providerName"])
		s.Equal("2025-01-15T12:00:00Z", body["notarizedAt"])
		cert := body["certificate"].(map[string]any)
		s.Equal("Night Market Explorer", cert["sealName"])
	})

	s.Run("empty body uses active provider", func() {
		s.SetupTest()
		s.service.EXPECT().
			Chain(gomock.Any(), id.OwnershipID("own-1"), "").
			Return(&providers.NotarizationResult{ProviderName: "local", Certificate: nightMarketCert()}, nil)

		rec := s.do(http.MethodPost, "/admin/seal-ownerships/own-1/chain", "")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("already chained maps to 409", func() {
		s.SetupTest()
		s.service.EXPECT().
			Chain(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAlreadyChained, "seal ownership is already certified"))

		rec := s.do(http.MethodPost, "/admin/seal-ownerships/own-1/chain", `{}`)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "already_chained")
	})

	s.Run("provider unavailable maps to 503", func() {
		s.SetupTest()
		s.service.EXPECT().
			Chain(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeProviderUnavailable, "backend down"))

		rec := s.do(http.MethodPost, "/admin/seal-ownerships/own-1/chain", `{"provider":"polygon"}`)
		s.Equal(http.StatusServiceUnavailable, rec.Code)
	})

	s.Run("unknown field rejected", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/admin/seal-ownerships/own-1/chain", `{"providr":"local"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("overlong provider rejected", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/admin/seal-ownerships/own-1/chain",
			`{"provider":"`+strings.Repeat("x", maxProviderLength+1)+`"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *CertificationHandlerSuite) TestHandleVerify() {
	s.Run("valid", func() {
		s.SetupTest()
		s.service.EXPECT().
			Verify(gomock.Any(), id.OwnershipID("own-1")).
			Return(&providers.VerificationResult{
				Valid:        true,
				ReferenceID:  "0xabc",
				Ordinal:      "136936400",
				NotarizedAt:  notarizedAt,
				ProviderName: "local",
				Certificate:  nightMarketCert(),
			}, nil)

		rec := s.do(http.MethodGet, "/admin/seal-ownerships/own-1/verify", "")
		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal(true, body["valid"])
		s.Equal("0xabc", body["referenceId"])
	})

	s.Run("tampered is still 200 with valid false", func() {
		s.SetupTest()
		s.service.EXPECT().
			Verify(gomock.Any(), gomock.Any()).
			Return(&providers.VerificationResult{Valid: false, ProviderName: "local"}, nil)

		rec := s.do(http.MethodGet, "/admin/seal-ownerships/own-1/verify", "")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(false, s.decode(rec)["valid"])
	})

	s.Run("not chained maps to 409", func() {
		s.SetupTest()
		s.service.EXPECT().
			Verify(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotChained, "seal ownership is not certified"))

		rec := s.do(http.MethodGet, "/admin/seal-ownerships/own-1/verify", "")
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "not_chained")
	})

	s.Run("not found maps to 404", func() {
		s.SetupTest()
		s.service.EXPECT().
			Verify(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "seal ownership not found"))

		rec := s.do(http.MethodGet, "/admin/seal-ownerships/missing/verify", "")
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *CertificationHandlerSuite) TestHandleStatus() {
	s.Run("unchained omits chain fields", func() {
		s.SetupTest()
		s.service.EXPECT().
			Status(gomock.Any(), id.OwnershipID("own-2")).
			Return(&models.ChainStatusView{OwnershipID: "own-2", Status: models.ChainStatusUnchained}, nil)

		rec := s.do(http.MethodGet, "/admin/seal-ownerships/own-2/chain", "")
		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal("unchained", body["status"])
		s.Equal(false, body["chained"])
		s.NotContains(body, "referenceId")
		s.NotContains(body, "notarizedAt")
	})

	s.Run("chained", func() {
		s.SetupTest()
		s.service.EXPECT().
			Status(gomock.Any(), id.OwnershipID("own-1")).
			Return(&models.ChainStatusView{
				OwnershipID:  "own-1",
				Status:       models.ChainStatusChained,
				ProviderName: "polygon",
				ReferenceID:  "pg_abc",
				Ordinal:      "40000001",
				NotarizedAt:  notarizedAt,
			}, nil)

		rec := s.do(http.MethodGet, "/admin/seal-ownerships/own-1/chain", "")
		body := s.decode(rec)
		s.Equal(true, body["chained"])
		s.Equal("pg_abc", body["referenceId"])
		s.Equal("polygon", body["providerName"])
	})
}

func (s *CertificationHandlerSuite) TestHandleProviders() {
	s.Run("lists providers", func() {
		s.SetupTest()
		s.service.EXPECT().
			ProviderInfo(gomock.Any()).
			Return(&models.ProviderInfo{
				ActiveProvider:           "antchain",
				ActiveProviderConfigured: false,
				Providers: []resolver.ProviderDescriptor{
					{ID: "local", Label: "Local", IsConfigured: true},
					{ID: "antchain", Label: "AntChain", IsCurrent: true},
				},
			}, nil)

		rec := s.do(http.MethodGet, "/admin/chain/providers", "")
		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal("antchain", body["activeProvider"])
		s.Equal(false, body["activeProviderConfigured"])
		s.Len(body["providers"], 2)
	})

	s.Run("internal error hides description", func() {
		s.SetupTest()
		s.service.EXPECT().
			ProviderInfo(gomock.Any()).
			Return(nil, dErrors.Wrap(context.DeadlineExceeded, dErrors.CodeInternal, "config source unavailable"))

		rec := s.do(http.MethodGet, "/admin/chain/providers", "")
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "config source")
	})
}

func (s *CertificationHandlerSuite) TestChainMiddlewareOnlyWrapsChain() {
	var wrapped []string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped = append(wrapped, r.Method)
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	ctrl := gomock.NewController(s.T())
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Status(gomock.Any(), gomock.Any()).
		Return(&models.ChainStatusView{OwnershipID: "own-1", Status: models.ChainStatusUnchained}, nil)

	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), WithChainMiddleware(mw)).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/seal-ownerships/own-1/chain", strings.NewReader(`{}`)))
	s.Equal(http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/seal-ownerships/own-1/chain", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]string{http.MethodPost}, wrapped)
}
