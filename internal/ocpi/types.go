// Package ocpi holds the OCPI 2.1.1 wire-level domain objects exchanged with
// partner platforms: credentials, version discovery documents, and the asset
// entities (locations, tariffs, sessions, tokens, CDRs).
package ocpi

import (
	"encoding/json"
	"time"
)

// VersionNumber is the protocol version this platform speaks.
const VersionNumber = "2.1.1"

// Role identifies which side of the protocol a party plays.
type Role string

const (
	RoleCPO   Role = "CPO"
	RoleEMSP  Role = "EMSP"
	RoleHub   Role = "HUB"
	RoleNSP   Role = "NSP"
	RoleOther Role = "OTHER"
)

// BusinessDetails describes a party for display purposes.
type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Logo    string `json:"logo,omitempty"`
}

// Credentials is the payload of the credentials module: the token the
// receiving side must use to call the sending side, plus the sender's
// versions endpoint and identity.
type Credentials struct {
	Token           string          `json:"token"`
	URL             string          `json:"url"`
	BusinessDetails BusinessDetails `json:"business_details"`
	CountryCode     string          `json:"country_code"`
	PartyID         string          `json:"party_id"`
}

// Version is one entry of a versions endpoint listing.
type Version struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Endpoint names one module endpoint inside a version details document.
type Endpoint struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
}

// VersionDetails is the document served at a version URL.
type VersionDetails struct {
	Version   string     `json:"version"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Response is the OCPI envelope every HTTP response is wrapped in. The
// application status code is carried independently of the HTTP status.
type Response struct {
	Data          json.RawMessage `json:"data,omitempty"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
