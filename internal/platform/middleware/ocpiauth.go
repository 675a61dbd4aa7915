package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ocpihub/internal/commandlog"
	"ocpihub/internal/party"
)

// TOTPHeader carries the optional one-time code for 2-factor token auth.
const TOTPHeader = "X-TOTP"

// PartyResolver maps an inbound OCPI access token (plus optional one-time
// code) to the owning party. The registry implements it.
type PartyResolver interface {
	ByLocalToken(now time.Time, token, oneTimeCode string) (*party.RemoteParty, party.LocalAccessInfo, error)
}

type contextKeyOCPIToken struct{}
type contextKeyOCPIParty struct{}

// ExtractToken pulls the `Authorization: Token <x>` credential into the
// context without enforcing it, so handlers that own their error semantics
// (the credentials resource) can decide how to answer a missing token.
func ExtractToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Token "); ok {
			ctx := context.WithValue(r.Context(), contextKeyOCPIToken{}, strings.TrimSpace(token))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// GetToken retrieves the raw inbound access token from the context.
func GetToken(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyOCPIToken{}).(string)
	return v
}

// GetParty retrieves the authenticated party from the context.
func GetParty(ctx context.Context) *party.RemoteParty {
	v, _ := ctx.Value(contextKeyOCPIParty{}).(*party.RemoteParty)
	return v
}

// RequireParty enforces OCPI token auth: the token must resolve to a party
// whose access entry is ALLOWED. The authenticated party id becomes the
// acting user on command log records.
func RequireParty(resolver PartyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetToken(r.Context())
			if token == "" {
				writeOCPIError(w, http.StatusUnauthorized, 2001, "missing access token")
				return
			}
			p, li, err := resolver.ByLocalToken(time.Now().UTC(), token, r.Header.Get(TOTPHeader))
			if err != nil || li.Status != party.AccessAllowed {
				writeOCPIError(w, http.StatusForbidden, 2000, "invalid or blocked access token")
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyOCPIParty{}, p)
			ctx = commandlog.WithUserID(ctx, string(p.ID()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeOCPIError(w http.ResponseWriter, httpStatus, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write([]byte(`{"status_code":` + strconv.Itoa(code) + `,"status_message":"` + msg + `"}`))
}
