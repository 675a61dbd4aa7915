package ocpi

import "time"

// SessionStatus is the OCPI 2.1.1 charging session status set.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionInvalid   SessionStatus = "INVALID"
	SessionPending   SessionStatus = "PENDING"
)

// Session is one charging session reported by a CPO.
type Session struct {
	CountryCode string        `json:"country_code"`
	PartyID     string        `json:"party_id"`
	ID          string        `json:"id"`
	StartTime   time.Time     `json:"start_datetime"`
	EndTime     *time.Time    `json:"end_datetime,omitempty"`
	KWH         float64       `json:"kwh"`
	AuthID      string        `json:"auth_id"`
	AuthMethod  string        `json:"auth_method"`
	LocationID  string        `json:"location_id"`
	Currency    string        `json:"currency"`
	TotalCost   *float64      `json:"total_cost,omitempty"`
	Status      SessionStatus `json:"status"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Key returns the store key for the session.
func (s Session) Key() string { return s.ID }

// Updated returns the entity version timestamp.
func (s Session) Updated() time.Time { return s.LastUpdated }

// SessionPatch is a partial update document for a Session.
type SessionPatch struct {
	EndTime     *time.Time     `json:"end_datetime,omitempty"`
	KWH         *float64       `json:"kwh,omitempty"`
	TotalCost   *float64       `json:"total_cost,omitempty"`
	Status      *SessionStatus `json:"status,omitempty"`
	LastUpdated *time.Time     `json:"last_updated,omitempty"`
}

// Apply returns a copy of s with the non-nil patch fields applied.
func (p SessionPatch) Apply(s Session) Session {
	if p.EndTime != nil {
		s.EndTime = p.EndTime
	}
	if p.KWH != nil {
		s.KWH = *p.KWH
	}
	if p.TotalCost != nil {
		s.TotalCost = p.TotalCost
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.LastUpdated != nil {
		s.LastUpdated = *p.LastUpdated
	}
	return s
}
