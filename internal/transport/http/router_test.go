package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ocpihub/internal/adminauth"
	"ocpihub/internal/assets"
	"ocpihub/internal/commandlog"
	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
	"ocpihub/internal/party"
	"ocpihub/internal/platform/metrics"
	"ocpihub/internal/registration"
	"ocpihub/internal/registration/mocks"
	"ocpihub/pkg/ocpistatus"
	"ocpihub/pkg/testutil"
)

const (
	baseURL    = "https://hub.example.com"
	signingKey = "test-signing-key"
	tokenA     = "token-a-issued-by-us"
	tokenB     = "token-b-from-partner"
)

// sharedMetrics exists once per test binary: promauto registers with the
// global registry and would panic on a second New.
var sharedMetrics = metrics.New()

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type RouterSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	client   *mocks.MockVersionsClient
	registry *party.Registry
	store    *assets.Assets
	jwt      *adminauth.JWTService
	router   http.Handler
	ctx      context.Context
	now      time.Time
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockVersionsClient(s.ctrl)
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Second)

	log := &commandlog.Log{}
	logger := discardLogger()
	notifier := events.NewNotifier(logger)

	s.registry = party.NewRegistry(log, logger)
	s.store = assets.New(assets.Config{Log: log, Logger: logger, Notifier: notifier})

	regService := registration.NewService(s.registry,
		func(party.Transport, string, string) registration.VersionsClient { return s.client },
		registration.OwnIdentity{
			CountryCode:     "DE",
			PartyID:         "HUB",
			Role:            ocpi.RoleHub,
			BusinessDetails: ocpi.BusinessDetails{Name: "OCPI Hub"},
			VersionsURL:     baseURL + "/versions",
		}, sharedMetrics, logger)

	s.jwt = adminauth.NewJWTService(signingKey, "ocpihub", "ocpihub-admin")

	s.router = NewRouter(Deps{
		Logger:       logger,
		Metrics:      sharedMetrics,
		Registry:     s.registry,
		Assets:       s.store,
		Registration: regService,
		JWTValidator: s.jwt,
		BaseURL:      baseURL,
	})
}

// seedParty provisions a partner holding token A, optionally already
// registered.
func (s *RouterSuite) seedParty(registered bool) *party.RemoteParty {
	li := party.LocalAccessInfo{AccessToken: tokenA, Status: party.AccessAllowed}
	if registered {
		li.VersionsURL = "https://partner.example.com/ocpi/versions"
	}
	p := &party.RemoteParty{
		CountryCode: "SE",
		PartyID:     "PNR",
		Role:        ocpi.RoleCPO,
		Status:      party.PartyEnabled,
		LocalAccess: []party.LocalAccessInfo{li},
		LastUpdated: s.now,
	}
	s.Require().NoError(s.registry.Add(s.ctx, p))
	return p
}

func (s *RouterSuite) do(method, path, token string, body any) (*httptest.ResponseRecorder, testutil.Envelope) {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if token != "" {
		testutil.WithOCPIToken(req, token)
	}
	rec := testutil.Do(s.router, req)
	return rec, testutil.DecodeEnvelope(s.T(), rec)
}

func (s *RouterSuite) decodeData(env testutil.Envelope, v any) {
	s.Require().NoError(json.Unmarshal(env.Data, v))
}

func (s *RouterSuite) TestVersions() {
	s.seedParty(false)

	s.Run("list requires a token", func() {
		rec, _ := s.do(http.MethodGet, "/versions", "", nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("list offers 2.1.1", func() {
		rec, env := s.do(http.MethodGet, "/versions", tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(int(ocpistatus.Success), env.StatusCode)

		var versions []ocpi.Version
		s.decodeData(env, &versions)
		s.Require().Len(versions, 1)
		s.Equal(ocpi.VersionNumber, versions[0].Version)
		s.Equal(baseURL+"/versions/2.1.1", versions[0].URL)
	})

	s.Run("details list the module endpoints", func() {
		rec, env := s.do(http.MethodGet, "/versions/2.1.1", tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var details ocpi.VersionDetails
		s.decodeData(env, &details)
		s.Equal(ocpi.VersionNumber, details.Version)
		s.Len(details.Endpoints, 6)
	})

	s.Run("unsupported version details answer 3002", func() {
		rec, env := s.do(http.MethodGet, "/versions/2.0", tokenA, nil)
		s.Equal(http.StatusNotFound, rec.Code)
		s.Equal(int(ocpistatus.UnsupportedVersion), env.StatusCode)
	})

	s.Run("options answers the allow header", func() {
		rec, _ := s.do(http.MethodOptions, "/versions/2.1.1", tokenA, nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("OPTIONS, GET", rec.Header().Get("Allow"))
	})
}

func (s *RouterSuite) TestUnsupportedVersionSubtree() {
	s.seedParty(false)

	rec, env := s.do(http.MethodPost, "/v2.0/credentials", tokenA, ocpi.Credentials{})
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(int(ocpistatus.UnsupportedVersion), env.StatusCode)
}

func (s *RouterSuite) expectRoundTrip() {
	s.client.EXPECT().GetVersions(gomock.Any()).Return(ocpistatus.Success, []ocpi.Version{
		{Version: ocpi.VersionNumber, URL: "https://partner.example.com/ocpi/2.1.1"},
	}, nil)
	s.client.EXPECT().GetVersionDetails(gomock.Any(), ocpi.VersionNumber).
		Return(ocpistatus.Success, &ocpi.VersionDetails{Version: ocpi.VersionNumber}, nil)
}

func (s *RouterSuite) TestCredentialsHandshake() {
	s.seedParty(false)

	partnerCreds := ocpi.Credentials{
		Token:       tokenB,
		URL:         "https://partner.example.com/ocpi/versions",
		CountryCode: "SE",
		PartyID:     "PNR",
	}

	s.Run("missing token answers 400 with 2001", func() {
		rec, env := s.do(http.MethodPost, "/v2.1.1/credentials", "", partnerCreds)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.InvalidParameters), env.StatusCode)
	})

	s.Run("unknown token on POST answers 400 with 2001", func() {
		rec, env := s.do(http.MethodPost, "/v2.1.1/credentials", "never-issued", partnerCreds)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.InvalidParameters), env.StatusCode)
	})

	s.Run("options reflects the unregistered state", func() {
		rec, _ := s.do(http.MethodOptions, "/v2.1.1/credentials", tokenA, nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("OPTIONS, GET, POST", rec.Header().Get("Allow"))
	})

	var tokenC string
	s.Run("POST rotates token A to a fresh token C", func() {
		s.expectRoundTrip()

		rec, env := s.do(http.MethodPost, "/v2.1.1/credentials", tokenA, partnerCreds)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(int(ocpistatus.Success), env.StatusCode)

		var creds ocpi.Credentials
		s.decodeData(env, &creds)
		s.NotEmpty(creds.Token)
		s.NotEqual(tokenA, creds.Token)
		s.NotEqual(tokenB, creds.Token)
		s.Equal(baseURL+"/versions", creds.URL)
		s.Equal("DE", creds.CountryCode)
		s.Equal("HUB", creds.PartyID)
		tokenC = creds.Token
	})

	s.Run("the revoked token A no longer authenticates", func() {
		rec, _ := s.do(http.MethodGet, "/v2.1.1/credentials", tokenA, nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("GET echoes token C without rotating", func() {
		rec, env := s.do(http.MethodGet, "/v2.1.1/credentials", tokenC, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var creds ocpi.Credentials
		s.decodeData(env, &creds)
		s.Equal(tokenC, creds.Token)
	})

	s.Run("second POST answers 405 with 2000", func() {
		rec, env := s.do(http.MethodPost, "/v2.1.1/credentials", tokenC, partnerCreds)
		s.Equal(http.StatusMethodNotAllowed, rec.Code)
		s.Equal(int(ocpistatus.GenericClientError), env.StatusCode)
	})

	s.Run("PUT rotates again", func() {
		s.expectRoundTrip()

		rec, env := s.do(http.MethodPut, "/v2.1.1/credentials", tokenC, partnerCreds)
		s.Require().Equal(http.StatusOK, rec.Code)

		var creds ocpi.Credentials
		s.decodeData(env, &creds)
		s.NotEqual(tokenC, creds.Token)
		tokenC = creds.Token
	})

	s.Run("DELETE unregisters", func() {
		rec, env := s.do(http.MethodDelete, "/v2.1.1/credentials", tokenC, nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(int(ocpistatus.Success), env.StatusCode)

		rec, _ = s.do(http.MethodGet, "/v2.1.1/credentials", tokenC, nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *RouterSuite) TestCredentialsVersionNegotiationFailure() {
	s.seedParty(false)

	s.client.EXPECT().GetVersions(gomock.Any()).Return(ocpistatus.Success, []ocpi.Version{
		{Version: "2.0", URL: "https://partner.example.com/ocpi/2.0"},
	}, nil)

	rec, env := s.do(http.MethodPost, "/v2.1.1/credentials", tokenA, ocpi.Credentials{
		Token: tokenB,
		URL:   "https://partner.example.com/ocpi/versions",
	})
	s.Equal(http.StatusMethodNotAllowed, rec.Code)
	s.Equal(int(ocpistatus.NoMatchingEndpoint), env.StatusCode)

	// The failed negotiation rotated nothing.
	rec, _ = s.do(http.MethodGet, "/v2.1.1/credentials", tokenA, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestLocations() {
	s.seedParty(true)

	loc := ocpi.Location{
		ID:          "LOC1",
		Address:     "Hauptstrasse 1",
		City:        "Berlin",
		Country:     "DEU",
		LastUpdated: s.now,
	}

	s.Run("module endpoints require token auth", func() {
		rec, _ := s.do(http.MethodGet, "/v2.1.1/locations", "", nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("PUT creates with 201", func() {
		rec, env := s.do(http.MethodPut, "/v2.1.1/locations/SE/PNR/LOC1", tokenA, loc)
		s.Equal(http.StatusCreated, rec.Code)
		s.Equal(int(ocpistatus.Success), env.StatusCode)
	})

	s.Run("identity comes from the path", func() {
		rec, env := s.do(http.MethodGet, "/v2.1.1/locations/SE/PNR/LOC1", tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.Location
		s.decodeData(env, &got)
		s.Equal("SE", got.CountryCode)
		s.Equal("PNR", got.PartyID)
	})

	s.Run("id mismatch between body and path is invalid", func() {
		wrong := loc
		wrong.ID = "OTHER"
		rec, env := s.do(http.MethodPut, "/v2.1.1/locations/SE/PNR/LOC1", tokenA, wrong)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.InvalidParameters), env.StatusCode)
	})

	s.Run("stale PUT is rejected", func() {
		rec, env := s.do(http.MethodPut, "/v2.1.1/locations/SE/PNR/LOC1", tokenA, loc)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.GenericClientError), env.StatusCode)
	})

	s.Run("allow_downgrades overrides per call", func() {
		rec, _ := s.do(http.MethodPut, "/v2.1.1/locations/SE/PNR/LOC1?allow_downgrades=true", tokenA, loc)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("PATCH applies partial updates", func() {
		patch := map[string]any{
			"name":         "Bahnhof",
			"last_updated": s.now.Add(time.Minute).Format(time.RFC3339),
		}
		rec, env := s.do(http.MethodPatch, "/v2.1.1/locations/SE/PNR/LOC1", tokenA, patch)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.Location
		s.decodeData(env, &got)
		s.Equal("Bahnhof", got.Name)
	})

	s.Run("nested EVSE PUT reaches the projection", func() {
		e := ocpi.EVSE{UID: "E1", Status: ocpi.EVSEAvailable, LastUpdated: s.now.Add(2 * time.Minute)}
		rec, _ := s.do(http.MethodPut, "/v2.1.1/locations/SE/PNR/LOC1/E1", tokenA, e)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec, env := s.do(http.MethodGet, "/v2.1.1/locations/SE/PNR/LOC1/E1", tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got ocpi.EVSE
		s.decodeData(env, &got)
		s.Equal(ocpi.EVSEAvailable, got.Status)
	})

	s.Run("nested connector PUT", func() {
		c := ocpi.Connector{ID: "1", Standard: "IEC_62196_T2", Format: "SOCKET", LastUpdated: s.now.Add(3 * time.Minute)}
		rec, _ := s.do(http.MethodPut, "/v2.1.1/locations/SE/PNR/LOC1/E1/1", tokenA, c)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("DELETE answers the removed entity", func() {
		rec, env := s.do(http.MethodDelete, "/v2.1.1/locations/SE/PNR/LOC1", tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.Location
		s.decodeData(env, &got)
		s.Equal("LOC1", got.ID)

		rec, _ = s.do(http.MethodGet, "/v2.1.1/locations/SE/PNR/LOC1", tokenA, nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *RouterSuite) TestTariffs() {
	s.seedParty(true)

	t1 := ocpi.Tariff{
		ID:       "T1",
		Currency: "EUR",
		Elements: []ocpi.TariffElement{{
			PriceComponents: []ocpi.PriceComponent{{Type: "ENERGY", Price: 0.30, StepSize: 1}},
		}},
		NotBefore:   s.now.Add(-time.Hour),
		LastUpdated: s.now,
	}

	s.Run("PUT creates", func() {
		rec, _ := s.do(http.MethodPut, "/v2.1.1/tariffs/SE/PNR/T1", tokenA, t1)
		s.Equal(http.StatusCreated, rec.Code)
	})

	s.Run("GET resolves at date_time", func() {
		at := s.now.Add(-30 * time.Minute).Format(time.RFC3339)
		rec, env := s.do(http.MethodGet, "/v2.1.1/tariffs/SE/PNR/T1?date_time="+at, tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.Tariff
		s.decodeData(env, &got)
		s.Equal("T1", got.ID)
	})

	s.Run("GET misses before the window", func() {
		at := s.now.Add(-2 * time.Hour).Format(time.RFC3339)
		rec, _ := s.do(http.MethodGet, "/v2.1.1/tariffs/SE/PNR/T1?date_time="+at, tokenA, nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("invalid date_time is rejected", func() {
		rec, env := s.do(http.MethodGet, "/v2.1.1/tariffs/SE/PNR/T1?date_time=yesterday", tokenA, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.InvalidParameters), env.StatusCode)
	})

	s.Run("DELETE removes all versions", func() {
		rec, _ := s.do(http.MethodDelete, "/v2.1.1/tariffs/SE/PNR/T1", tokenA, nil)
		s.Equal(http.StatusOK, rec.Code)

		rec, _ = s.do(http.MethodGet, "/v2.1.1/tariffs/SE/PNR/T1", tokenA, nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *RouterSuite) TestSessions() {
	s.seedParty(true)

	sess := ocpi.Session{
		ID:          "S1",
		StartTime:   s.now.Add(-time.Hour),
		KWH:         3.5,
		AuthID:      "AUTH1",
		AuthMethod:  "AUTH_REQUEST",
		LocationID:  "LOC1",
		Currency:    "EUR",
		Status:      ocpi.SessionActive,
		LastUpdated: s.now,
	}

	s.Run("PUT creates", func() {
		rec, _ := s.do(http.MethodPut, "/v2.1.1/sessions/SE/PNR/S1", tokenA, sess)
		s.Equal(http.StatusCreated, rec.Code)
	})

	s.Run("PATCH completes the session", func() {
		patch := map[string]any{
			"status":       "COMPLETED",
			"kwh":          7.0,
			"last_updated": s.now.Add(time.Minute).Format(time.RFC3339),
		}
		rec, env := s.do(http.MethodPatch, "/v2.1.1/sessions/SE/PNR/S1", tokenA, patch)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.Session
		s.decodeData(env, &got)
		s.Equal(ocpi.SessionCompleted, got.Status)
		s.Equal(7.0, got.KWH)
	})

	s.Run("stale PATCH is rejected", func() {
		patch := map[string]any{
			"kwh":          1.0,
			"last_updated": s.now.Format(time.RFC3339),
		}
		rec, env := s.do(http.MethodPatch, "/v2.1.1/sessions/SE/PNR/S1", tokenA, patch)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.GenericClientError), env.StatusCode)
	})
}

func (s *RouterSuite) TestTokens() {
	s.seedParty(true)

	ts := ocpi.TokenStatus{
		Token: ocpi.Token{
			UID:         "TK1",
			Type:        ocpi.TokenRFID,
			AuthID:      "AUTH1",
			Issuer:      "Partner eMSP",
			Valid:       true,
			Whitelist:   "ALWAYS",
			LastUpdated: s.now,
		},
		AllowedType: ocpi.Allowed,
	}

	s.Run("PUT is keyed by token uid", func() {
		rec, _ := s.do(http.MethodPut, "/v2.1.1/tokens/SE/PNR/TK1", tokenA, ts)
		s.Equal(http.StatusCreated, rec.Code)
	})

	s.Run("uid mismatch between body and path is invalid", func() {
		wrong := ts
		wrong.Token.UID = "TK2"
		rec, env := s.do(http.MethodPut, "/v2.1.1/tokens/SE/PNR/TK1", tokenA, wrong)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.InvalidParameters), env.StatusCode)
	})

	s.Run("PATCH flips the verdict", func() {
		patch := map[string]any{
			"allowed_type": "BLOCKED",
			"last_updated": s.now.Add(time.Minute).Format(time.RFC3339),
		}
		rec, env := s.do(http.MethodPatch, "/v2.1.1/tokens/SE/PNR/TK1", tokenA, patch)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.TokenStatus
		s.decodeData(env, &got)
		s.Equal(ocpi.Blocked, got.AllowedType)
	})

	s.Run("DELETE returns the removed status", func() {
		rec, env := s.do(http.MethodDelete, "/v2.1.1/tokens/SE/PNR/TK1", tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.TokenStatus
		s.decodeData(env, &got)
		s.Equal("TK1", got.Token.UID)
	})
}

func (s *RouterSuite) TestCDRs() {
	s.seedParty(true)

	cdr := ocpi.CDR{
		ID:          "CDR1",
		StartTime:   s.now.Add(-time.Hour),
		StopTime:    s.now,
		AuthID:      "AUTH1",
		AuthMethod:  "AUTH_REQUEST",
		Currency:    "EUR",
		TotalCost:   4.2,
		LastUpdated: s.now,
	}

	s.Run("POST creates with a Location header", func() {
		rec, _ := s.do(http.MethodPost, "/v2.1.1/cdrs", tokenA, cdr)
		s.Equal(http.StatusCreated, rec.Code)
		s.Equal("/v2.1.1/cdrs/CDR1", rec.Header().Get("Location"))
	})

	s.Run("duplicate POST conflicts", func() {
		rec, env := s.do(http.MethodPost, "/v2.1.1/cdrs", tokenA, cdr)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal(int(ocpistatus.GenericClientError), env.StatusCode)
	})

	s.Run("GET returns the record", func() {
		rec, env := s.do(http.MethodGet, "/v2.1.1/cdrs/CDR1", tokenA, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got ocpi.CDR
		s.decodeData(env, &got)
		s.Equal(4.2, got.TotalCost)
	})
}

func (s *RouterSuite) TestAdminAPI() {
	adminToken, err := s.jwt.GenerateAccessToken("ops@example.com", "parties:write", time.Hour)
	s.Require().NoError(err)

	doAdmin := func(method, path string, body any) (*httptest.ResponseRecorder, testutil.Envelope) {
		req := testutil.NewJSONRequest(s.T(), method, path, body)
		testutil.WithBearerToken(req, adminToken)
		rec := testutil.Do(s.router, req)
		return rec, testutil.DecodeEnvelope(s.T(), rec)
	}

	s.Run("requires a bearer token", func() {
		req := httptest.NewRequest(http.MethodGet, "/admin/parties", nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	var issued string
	s.Run("provisioning a party issues token A", func() {
		rec, env := doAdmin(http.MethodPost, "/admin/parties", map[string]any{
			"country_code": "SE",
			"party_id":     "PNR",
			"role":         "CPO",
		})
		s.Require().Equal(http.StatusCreated, rec.Code)

		var resp struct {
			Party *party.RemoteParty `json:"party"`
			Token string             `json:"token"`
		}
		s.decodeData(env, &resp)
		s.NotEmpty(resp.Token)
		s.Equal("SE", resp.Party.CountryCode)
		issued = resp.Token
	})

	s.Run("the issued token authenticates OCPI calls", func() {
		rec, _ := s.do(http.MethodGet, "/v2.1.1/locations", issued, nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("missing identity fields are invalid", func() {
		rec, env := doAdmin(http.MethodPost, "/admin/parties", map[string]any{"country_code": "SE"})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(int(ocpistatus.InvalidParameters), env.StatusCode)
	})

	s.Run("blocking a party cuts its token off", func() {
		rec, _ := doAdmin(http.MethodPost, "/admin/parties/SE*PNR_CPO/block", nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec, _ = s.do(http.MethodGet, "/v2.1.1/locations", issued, nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("unblocking restores access", func() {
		rec, _ := doAdmin(http.MethodPost, "/admin/parties/SE*PNR_CPO/unblock", nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec, _ = s.do(http.MethodGet, "/v2.1.1/locations", issued, nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("deleting the party removes it", func() {
		rec, _ := doAdmin(http.MethodDelete, "/admin/parties/SE*PNR_CPO", nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec, _ = s.do(http.MethodGet, "/v2.1.1/locations", issued, nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *RouterSuite) TestHealthAndMetrics() {
	rec, _ := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}
