package ocpi

import "time"

// CDR is a charge detail record: the billing-grade final record of a session.
type CDR struct {
	CountryCode    string    `json:"country_code"`
	PartyID        string    `json:"party_id"`
	ID             string    `json:"id"`
	StartTime      time.Time `json:"start_date_time"`
	StopTime       time.Time `json:"stop_date_time"`
	AuthID         string    `json:"auth_id"`
	AuthMethod     string    `json:"auth_method"`
	LocationID     string    `json:"location_id"`
	Currency       string    `json:"currency"`
	TotalEnergyKWH float64   `json:"total_energy"`
	TotalTime      float64   `json:"total_time"`
	TotalCost      float64   `json:"total_cost"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Key returns the store key for the CDR.
func (c CDR) Key() string { return c.ID }

// Updated returns the entity version timestamp.
func (c CDR) Updated() time.Time { return c.LastUpdated }
