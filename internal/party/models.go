// Package party holds the RemoteParty model and its concurrent registry: one
// record per trust relationship with a partner platform, carrying the access
// tokens issued in each direction and the registration state derived from
// them.
package party

import (
	"fmt"
	"slices"
	"time"

	"ocpihub/internal/ocpi"
	"ocpihub/internal/party/totp"
)

// ID composes CountryCode, PartyId and Role into the stable registry key.
type ID string

// NewID builds the registry key for a party identity.
func NewID(countryCode, partyID string, role ocpi.Role) ID {
	return ID(fmt.Sprintf("%s*%s_%s", countryCode, partyID, role))
}

// AccessStatus gates a locally issued access token.
type AccessStatus string

const (
	AccessAllowed AccessStatus = "ALLOWED"
	AccessBlocked AccessStatus = "BLOCKED"
)

// Status enables or disables a party record as a whole.
type Status string

const (
	PartyEnabled  Status = "ENABLED"
	PartyDisabled Status = "DISABLED"
)

// RemoteAccessStatus tracks reachability of the partner platform.
type RemoteAccessStatus string

const (
	RemoteOnline      RemoteAccessStatus = "ONLINE"
	RemoteOffline     RemoteAccessStatus = "OFFLINE"
	RemoteUnavailable RemoteAccessStatus = "UNAVAILABLE"
)

// LocalAccessInfo is an access token this platform issued to the partner.
// VersionsURL is set only once the partner has completed registration; its
// presence is the proof of full registration.
type LocalAccessInfo struct {
	AccessToken string       `json:"access_token"`
	Status      AccessStatus `json:"status"`
	NotBefore   *time.Time   `json:"not_before,omitempty"`
	NotAfter    *time.Time   `json:"not_after,omitempty"`
	VersionsURL string       `json:"versions_url,omitempty"`
	TOTP        *totp.Config `json:"totp,omitempty"`
}

// ValidAt reports whether the token is inside its validity window.
func (l LocalAccessInfo) ValidAt(now time.Time) bool {
	if l.NotBefore != nil && now.Before(*l.NotBefore) {
		return false
	}
	if l.NotAfter != nil && !now.Before(*l.NotAfter) {
		return false
	}
	return true
}

// Transport tunes the outbound HTTP client used against the partner. It is
// carried forward across re-registrations.
type Transport struct {
	ConnectTimeout     time.Duration `json:"connect_timeout,omitempty"`
	RequestTimeout     time.Duration `json:"request_timeout,omitempty"`
	RetryCount         int           `json:"retry_count,omitempty"`
	RetryDelay         time.Duration `json:"retry_delay,omitempty"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify,omitempty"`
}

// RemoteAccessInfo is the access this platform holds on the partner: the
// token we present, where its versions live, and the negotiated version.
type RemoteAccessInfo struct {
	AccessToken string             `json:"access_token"`
	VersionsURL string             `json:"versions_url"`
	Version     string             `json:"version,omitempty"`
	Status      RemoteAccessStatus `json:"status"`
	Transport   Transport          `json:"transport,omitempty"`
}

// RemoteParty is one trust relationship endpoint. It may carry several
// LocalAccessInfo entries: multiple issued tokens map to the same logical
// party, and revoking one removes only that entry unless it was the last.
type RemoteParty struct {
	CountryCode     string               `json:"country_code"`
	PartyID         string               `json:"party_id"`
	Role            ocpi.Role            `json:"role"`
	BusinessDetails ocpi.BusinessDetails `json:"business_details"`
	Status          Status               `json:"status"`
	LocalAccess     []LocalAccessInfo    `json:"local_access"`
	RemoteAccess    []RemoteAccessInfo   `json:"remote_access"`
	LastUpdated     time.Time            `json:"last_updated"`
}

// ID returns the registry key of the party.
func (p *RemoteParty) ID() ID {
	return NewID(p.CountryCode, p.PartyID, p.Role)
}

// Clone returns a deep copy safe to mutate before a compare-and-swap.
func (p *RemoteParty) Clone() *RemoteParty {
	out := *p
	out.LocalAccess = slices.Clone(p.LocalAccess)
	for i, li := range out.LocalAccess {
		if li.NotBefore != nil {
			nb := *li.NotBefore
			out.LocalAccess[i].NotBefore = &nb
		}
		if li.NotAfter != nil {
			na := *li.NotAfter
			out.LocalAccess[i].NotAfter = &na
		}
		if li.TOTP != nil {
			cfg := *li.TOTP
			out.LocalAccess[i].TOTP = &cfg
		}
	}
	out.RemoteAccess = slices.Clone(p.RemoteAccess)
	return &out
}

// LocalAccessByToken returns the index of the local access entry carrying the
// token, or -1.
func (p *RemoteParty) LocalAccessByToken(token string) int {
	for i, li := range p.LocalAccess {
		if li.AccessToken == token {
			return i
		}
	}
	return -1
}

// Registered reports whether any local token has its VersionsURL set, which
// is the proof the partner completed the handshake.
func (p *RemoteParty) Registered() bool {
	for _, li := range p.LocalAccess {
		if li.VersionsURL != "" {
			return true
		}
	}
	return false
}

// RemoteTransport returns the transport tuning from the newest remote access
// entry, if any, so re-registrations reuse the prior TLS/timeout settings.
func (p *RemoteParty) RemoteTransport() Transport {
	if len(p.RemoteAccess) == 0 {
		return Transport{}
	}
	return p.RemoteAccess[len(p.RemoteAccess)-1].Transport
}
