package ocpi

import "time"

// PriceComponent prices one dimension of charging.
type PriceComponent struct {
	Type     string  `json:"type"` // ENERGY, FLAT, PARKING_TIME, TIME
	Price    float64 `json:"price"`
	StepSize int     `json:"step_size"`
}

// TariffElement groups price components with shared restrictions.
type TariffElement struct {
	PriceComponents []PriceComponent `json:"price_components"`
}

// Tariff is stored time-ranged: several versions of the same ID may coexist,
// distinguished by NotBefore, so point-in-time lookups resolve the version
// effective at that instant.
type Tariff struct {
	CountryCode string          `json:"country_code"`
	PartyID     string          `json:"party_id"`
	ID          string          `json:"id"`
	Currency    string          `json:"currency"`
	TariffText  string          `json:"tariff_alt_text,omitempty"`
	Elements    []TariffElement `json:"elements"`
	NotBefore   time.Time       `json:"not_before,omitempty"`
	NotAfter    *time.Time      `json:"not_after,omitempty"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Key returns the logical tariff identity, shared across versions.
func (t Tariff) Key() string { return t.ID }

// Updated returns the entity version timestamp.
func (t Tariff) Updated() time.Time { return t.LastUpdated }

// EffectiveAt reports whether the tariff version covers the given instant
// within the given tolerance.
func (t Tariff) EffectiveAt(ts time.Time, tolerance time.Duration) bool {
	if !t.NotBefore.IsZero() && ts.Add(tolerance).Before(t.NotBefore) {
		return false
	}
	if t.NotAfter != nil && !ts.Add(-tolerance).Before(*t.NotAfter) {
		return false
	}
	return true
}

// TariffPatch is a partial update document for a Tariff.
type TariffPatch struct {
	Currency    *string          `json:"currency,omitempty"`
	TariffText  *string          `json:"tariff_alt_text,omitempty"`
	Elements    *[]TariffElement `json:"elements,omitempty"`
	NotAfter    *time.Time       `json:"not_after,omitempty"`
	LastUpdated *time.Time       `json:"last_updated,omitempty"`
}

// Apply returns a copy of t with the non-nil patch fields applied.
func (p TariffPatch) Apply(t Tariff) Tariff {
	if p.Currency != nil {
		t.Currency = *p.Currency
	}
	if p.TariffText != nil {
		t.TariffText = *p.TariffText
	}
	if p.Elements != nil {
		t.Elements = *p.Elements
	}
	if p.NotAfter != nil {
		t.NotAfter = p.NotAfter
	}
	if p.LastUpdated != nil {
		t.LastUpdated = *p.LastUpdated
	}
	return t
}
