// Package registration implements the OCPI 2.1.1 credentials handshake: the
// CREDENTIALS_TOKEN_A/B/C rotation by which two platforms establish trust,
// agree on a protocol version, and rotate tokens. The party registry is only
// mutated at the single commit point after every validation and the outbound
// round-trip have succeeded.
package registration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ocpihub/internal/ocpi"
	"ocpihub/internal/party"
	"ocpihub/pkg/ocpistatus"
	"ocpihub/pkg/platform/sentinel"
)

// OwnIdentity is what this platform hands out as its credentials object.
type OwnIdentity struct {
	CountryCode     string
	PartyID         string
	Role            ocpi.Role
	BusinessDetails ocpi.BusinessDetails
	VersionsURL     string
}

// Metrics is the observability hook the service reports handshakes to.
type Metrics interface {
	Handshake(event, outcome string)
}

// Service orchestrates the credentials resource against the party registry
// and the outbound versions client.
type Service struct {
	registry *party.Registry
	clients  ClientFactory
	own      OwnIdentity
	tokenLen int
	metrics  Metrics
	logger   *slog.Logger
}

// NewService wires the handshake orchestrator. A nil metrics hook is valid.
func NewService(registry *party.Registry, clients ClientFactory, own OwnIdentity, metrics Metrics, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		clients:  clients,
		own:      own,
		tokenLen: 32,
		metrics:  metrics,
		logger:   logger,
	}
}

// newToken generates a fresh CREDENTIALS_TOKEN_C.
func (s *Service) newToken() (string, error) {
	buf := make([]byte, s.tokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ownCredentials builds this platform's credentials object carrying the
// token the partner must use against us.
func (s *Service) ownCredentials(token string) ocpi.Credentials {
	return ocpi.Credentials{
		Token:           token,
		URL:             s.own.VersionsURL,
		BusinessDetails: s.own.BusinessDetails,
		CountryCode:     s.own.CountryCode,
		PartyID:         s.own.PartyID,
	}
}

// resolve maps an inbound token to its party and access entry. Registry
// sentinels pass through untranslated; each caller picks the protocol error
// via credentialError.
func (s *Service) resolve(token string) (*party.RemoteParty, party.LocalAccessInfo, int, error) {
	p, li, err := s.registry.ByLocalToken(time.Now().UTC(), token, "")
	if err != nil {
		return nil, party.LocalAccessInfo{}, 0, err
	}
	return p, li, p.LocalAccessByToken(token), nil
}

// credentialError translates a failed token resolution into the protocol's
// coded errors. On POST and PUT an unknown token is a client mistake in the
// request, so unknownIsInvalid turns it into a 400; reads and deletes keep
// answering 403.
func credentialError(err error, unknownIsInvalid bool) error {
	switch {
	case errors.Is(err, sentinel.ErrExpired):
		return ocpistatus.Forbidden("access token expired")
	case errors.Is(err, sentinel.ErrAmbiguous):
		return ocpistatus.Forbidden("access token is ambiguous")
	case unknownIsInvalid && errors.Is(err, sentinel.ErrNotFound):
		return ocpistatus.Invalid("no remote party with this token")
	default:
		return ocpistatus.Forbidden("invalid or blocked access token")
	}
}

// Get returns this platform's view of the credentials resource for the
// calling token. GET never rotates tokens: the caller gets its own existing
// token echoed back.
func (s *Service) Get(ctx context.Context, token string) (ocpi.Credentials, error) {
	_, li, _, err := s.resolve(token)
	if err != nil {
		return ocpi.Credentials{}, credentialError(err, false)
	}
	if li.Status != party.AccessAllowed {
		return ocpi.Credentials{}, ocpistatus.Forbidden("access token is blocked")
	}
	return s.ownCredentials(token), nil
}

// Register handles POST credentials: the partner's first callback with its
// CREDENTIALS_TOKEN_B. Fails when the token is already registered.
func (s *Service) Register(ctx context.Context, tokenA string, received ocpi.Credentials) (ocpi.Credentials, error) {
	return s.handshake(ctx, eventRegister, tokenA, received)
}

// Rotate handles PUT credentials: re-registration of an already registered
// token. Fails when the token has not completed POST yet.
func (s *Service) Rotate(ctx context.Context, tokenA string, received ocpi.Credentials) (ocpi.Credentials, error) {
	return s.handshake(ctx, eventRotate, tokenA, received)
}

// Unregister handles DELETE credentials: revokes the calling token. The
// party record disappears entirely when this was its last token.
func (s *Service) Unregister(ctx context.Context, token string) error {
	p, li, _, err := s.resolve(token)
	if err != nil {
		return credentialError(err, false)
	}
	if err := guard(ctx, StateOf(li), eventUnregister); err != nil {
		return err
	}
	if _, err := s.registry.RevokeToken(ctx, token); err != nil {
		return ocpistatus.Internal("revoke token: %s", err)
	}
	s.count(eventUnregister, "success")
	s.logger.Info("party unregistered", "party", p.ID())
	return nil
}

// Allow returns the Allow header content for OPTIONS on the credentials
// resource: the verbs legal in the caller's current registration state. An
// unresolvable token still gets OPTIONS answered, with the minimal set.
func (s *Service) Allow(token string) []string {
	_, li, _, err := s.resolve(token)
	if err != nil {
		return AllowedMethods(StateBlocked)
	}
	return AllowedMethods(StateOf(li))
}

func (s *Service) count(event, outcome string) {
	if s.metrics != nil {
		s.metrics.Handshake(event, outcome)
	}
}

// handshake is the shared POST/PUT sequence. Steps in order: resolve token A,
// check the state machine, validate the received credentials, perform the
// outbound GetVersions and GetVersionDetails round-trip, verify identity,
// generate token C, then commit everything in one registry compare-and-swap.
// Any failure before the commit leaves the party record untouched.
func (s *Service) handshake(ctx context.Context, event, tokenA string, received ocpi.Credentials) (ocpi.Credentials, error) {
	p, li, idx, err := s.resolve(tokenA)
	if err != nil {
		s.count(event, "unauthorized")
		return ocpi.Credentials{}, credentialError(err, true)
	}

	if err := guard(ctx, StateOf(li), event); err != nil {
		s.count(event, "wrong_state")
		return ocpi.Credentials{}, err
	}

	if received.URL == "" {
		s.count(event, "invalid")
		return ocpi.Credentials{}, ocpistatus.Invalid("credentials are missing the versions url")
	}
	if received.Token == "" {
		s.count(event, "invalid")
		return ocpi.Credentials{}, ocpistatus.Invalid("credentials are missing the access token")
	}

	// Outbound round-trip with the partner's token B, reusing any transport
	// tuning from a prior registration.
	client := s.clients(p.RemoteTransport(), received.Token, received.URL)

	code, versions, err := client.GetVersions(ctx)
	if err != nil {
		s.count(event, "partner_unreachable")
		return ocpi.Credentials{}, ocpistatus.PartnerUnreachable("could not fetch versions from partner: %s", err)
	}
	if code != ocpistatus.Success {
		s.count(event, "partner_unreachable")
		return ocpi.Credentials{}, ocpistatus.PartnerUnreachable("partner versions endpoint answered status %d", code)
	}

	var selected *ocpi.Version
	for i := range versions {
		if versions[i].Version == ocpi.VersionNumber {
			selected = &versions[i]
			break
		}
	}
	if selected == nil {
		s.count(event, "version_not_found")
		return ocpi.Credentials{}, ocpistatus.VersionNotFound("partner does not offer version %s", ocpi.VersionNumber)
	}

	code, _, err = client.GetVersionDetails(ctx, selected.Version)
	if err != nil {
		s.count(event, "partner_unreachable")
		return ocpi.Credentials{}, ocpistatus.PartnerUnreachable("could not fetch version details from partner: %s", err)
	}
	if code != ocpistatus.Success {
		s.count(event, "partner_unreachable")
		return ocpi.Credentials{}, ocpistatus.PartnerUnreachable("partner version details answered status %d", code)
	}

	// Identity is fixed at first contact and may not change mid-registration.
	if received.CountryCode != "" && received.CountryCode != p.CountryCode {
		s.count(event, "identity_mismatch")
		return ocpi.Credentials{}, ocpistatus.Invalid("country code may not change: registered %s, received %s", p.CountryCode, received.CountryCode)
	}
	if received.PartyID != "" && received.PartyID != p.PartyID {
		s.count(event, "identity_mismatch")
		return ocpi.Credentials{}, ocpistatus.Invalid("party id may not change: registered %s, received %s", p.PartyID, received.PartyID)
	}

	tokenC, err := s.newToken()
	if err != nil {
		return ocpi.Credentials{}, ocpistatus.Internal("%s", err)
	}

	// Commit point: revoke token A and install token C/token B atomically.
	updated := p.Clone()
	updated.LocalAccess[idx] = party.LocalAccessInfo{
		AccessToken: tokenC,
		Status:      party.AccessAllowed,
		VersionsURL: received.URL,
	}
	updated.RemoteAccess = []party.RemoteAccessInfo{{
		AccessToken: received.Token,
		VersionsURL: received.URL,
		Version:     ocpi.VersionNumber,
		Status:      party.RemoteOnline,
		Transport:   p.RemoteTransport(),
	}}
	if received.BusinessDetails.Name != "" {
		updated.BusinessDetails = received.BusinessDetails
	}
	updated.Status = party.PartyEnabled
	updated.LastUpdated = time.Now().UTC()

	if err := s.registry.Swap(ctx, p, updated); err != nil {
		if errors.Is(err, sentinel.ErrCASMismatch) {
			s.count(event, "conflict")
			return ocpi.Credentials{}, ocpistatus.New(ocpistatus.GenericClientError, http.StatusBadRequest, "concurrent registration in progress, retry")
		}
		return ocpi.Credentials{}, ocpistatus.Internal("store credentials: %s", err)
	}

	s.count(event, "success")
	s.logger.Info("credentials handshake completed", "party", updated.ID(), "event", event)
	return s.ownCredentials(tokenC), nil
}
