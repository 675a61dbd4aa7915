package ocpi

import (
	"slices"
	"time"
)

// EVSEStatus is the OCPI 2.1.1 EVSE status set.
type EVSEStatus string

const (
	EVSEAvailable   EVSEStatus = "AVAILABLE"
	EVSEBlocked     EVSEStatus = "BLOCKED"
	EVSECharging    EVSEStatus = "CHARGING"
	EVSEInoperative EVSEStatus = "INOPERATIVE"
	EVSEOutOfOrder  EVSEStatus = "OUTOFORDER"
	EVSEPlanned     EVSEStatus = "PLANNED"
	EVSERemoved     EVSEStatus = "REMOVED"
	EVSEReserved    EVSEStatus = "RESERVED"
	EVSEUnknown     EVSEStatus = "UNKNOWN"
)

// Connector is a single plug on an EVSE, keyed by ID within its parent.
type Connector struct {
	ID          string    `json:"id"`
	Standard    string    `json:"standard"`
	Format      string    `json:"format"`
	PowerType   string    `json:"power_type"`
	Voltage     int       `json:"voltage"`
	Amperage    int       `json:"amperage"`
	TariffID    string    `json:"tariff_id,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// EVSE is one charge point outlet group within a Location. UID is the stable
// internal identity; EVSEID is the public, display-facing one.
type EVSE struct {
	UID         string      `json:"uid"`
	EVSEID      string      `json:"evse_id,omitempty"`
	Status      EVSEStatus  `json:"status"`
	Connectors  []Connector `json:"connectors"`
	FloorLevel  string      `json:"floor_level,omitempty"`
	PhysicalRef string      `json:"physical_reference,omitempty"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Connector returns the connector with the given id, if present.
func (e EVSE) Connector(id string) (Connector, bool) {
	for _, c := range e.Connectors {
		if c.ID == id {
			return c, true
		}
	}
	return Connector{}, false
}

// WithConnector returns a copy of the EVSE with the connector set or replaced.
func (e EVSE) WithConnector(c Connector) EVSE {
	out := e
	out.Connectors = slices.Clone(e.Connectors)
	for i := range out.Connectors {
		if out.Connectors[i].ID == c.ID {
			out.Connectors[i] = c
			return out
		}
	}
	out.Connectors = append(out.Connectors, c)
	return out
}

// WithoutConnector returns a copy of the EVSE with the connector removed.
func (e EVSE) WithoutConnector(id string) EVSE {
	out := e
	out.Connectors = slices.DeleteFunc(slices.Clone(e.Connectors), func(c Connector) bool {
		return c.ID == id
	})
	return out
}

// Location is the unit of storage and concurrency for charge-point data.
// EVSEs and Connectors have no independent identity in the store; every
// nested mutation is expressed as a new Location value.
type Location struct {
	CountryCode string    `json:"country_code"`
	PartyID     string    `json:"party_id"`
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postal_code,omitempty"`
	Country     string    `json:"country"`
	EVSEs       []EVSE    `json:"evses,omitempty"`
	TimeZone    string    `json:"time_zone,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Key returns the store key for the location.
func (l Location) Key() string { return l.ID }

// Updated returns the entity version timestamp.
func (l Location) Updated() time.Time { return l.LastUpdated }

// EVSE returns the EVSE with the given UID, if present.
func (l Location) EVSE(uid string) (EVSE, bool) {
	for _, e := range l.EVSEs {
		if e.UID == uid {
			return e, true
		}
	}
	return EVSE{}, false
}

// WithEVSE returns a copy of the location with the EVSE set or replaced,
// matched by UID.
func (l Location) WithEVSE(e EVSE) Location {
	out := l
	out.EVSEs = slices.Clone(l.EVSEs)
	for i := range out.EVSEs {
		if out.EVSEs[i].UID == e.UID {
			out.EVSEs[i] = e
			return out
		}
	}
	out.EVSEs = append(out.EVSEs, e)
	return out
}

// WithoutEVSE returns a copy of the location with the EVSE removed.
func (l Location) WithoutEVSE(uid string) Location {
	out := l
	out.EVSEs = slices.DeleteFunc(slices.Clone(l.EVSEs), func(e EVSE) bool {
		return e.UID == uid
	})
	return out
}

// LocationPatch is a partial update document for a Location. Nil fields are
// left untouched. LastUpdated is required on the wire; the patched result is
// still subject to downgrade protection.
type LocationPatch struct {
	Name        *string    `json:"name,omitempty"`
	Address     *string    `json:"address,omitempty"`
	City        *string    `json:"city,omitempty"`
	PostalCode  *string    `json:"postal_code,omitempty"`
	Country     *string    `json:"country,omitempty"`
	TimeZone    *string    `json:"time_zone,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Apply returns a copy of l with the non-nil patch fields applied.
func (p LocationPatch) Apply(l Location) Location {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Address != nil {
		l.Address = *p.Address
	}
	if p.City != nil {
		l.City = *p.City
	}
	if p.PostalCode != nil {
		l.PostalCode = *p.PostalCode
	}
	if p.Country != nil {
		l.Country = *p.Country
	}
	if p.TimeZone != nil {
		l.TimeZone = *p.TimeZone
	}
	if p.LastUpdated != nil {
		l.LastUpdated = *p.LastUpdated
	}
	return l
}
