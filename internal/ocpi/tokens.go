package ocpi

import "time"

// TokenType classifies the physical or virtual token medium.
type TokenType string

const (
	TokenRFID  TokenType = "RFID"
	TokenOther TokenType = "OTHER"
)

// AllowedType is the authorization verdict paired with a token.
type AllowedType string

const (
	Allowed    AllowedType = "ALLOWED"
	Blocked    AllowedType = "BLOCKED"
	Expired    AllowedType = "EXPIRED"
	NoCredit   AllowedType = "NO_CREDIT"
	NotAllowed AllowedType = "NOT_ALLOWED"
)

// Token is an eMSP-issued charging token.
type Token struct {
	CountryCode  string    `json:"country_code"`
	PartyID      string    `json:"party_id"`
	UID          string    `json:"uid"`
	Type         TokenType `json:"type"`
	AuthID       string    `json:"auth_id"`
	VisualNumber string    `json:"visual_number,omitempty"`
	Issuer       string    `json:"issuer"`
	Valid        bool      `json:"valid"`
	Whitelist    string    `json:"whitelist"`
	LastUpdated  time.Time `json:"last_updated"`
}

// TokenStatus pairs a token with its authorization verdict; this is the unit
// the store versions.
type TokenStatus struct {
	Token       Token       `json:"token"`
	AllowedType AllowedType `json:"allowed_type"`
}

// Key returns the store key for the token status.
func (t TokenStatus) Key() string { return t.Token.UID }

// Updated returns the entity version timestamp.
func (t TokenStatus) Updated() time.Time { return t.Token.LastUpdated }

// TokenPatch is a partial update document for a Token.
type TokenPatch struct {
	Valid       *bool        `json:"valid,omitempty"`
	Whitelist   *string      `json:"whitelist,omitempty"`
	AllowedType *AllowedType `json:"allowed_type,omitempty"`
	LastUpdated *time.Time   `json:"last_updated,omitempty"`
}

// Apply returns a copy of ts with the non-nil patch fields applied.
func (p TokenPatch) Apply(ts TokenStatus) TokenStatus {
	if p.Valid != nil {
		ts.Token.Valid = *p.Valid
	}
	if p.Whitelist != nil {
		ts.Token.Whitelist = *p.Whitelist
	}
	if p.AllowedType != nil {
		ts.AllowedType = *p.AllowedType
	}
	if p.LastUpdated != nil {
		ts.Token.LastUpdated = *p.LastUpdated
	}
	return ts
}
