package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services and handlers can translate them into OCPI status
// responses.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: entity already exists where it must not
// - ErrDowngrade: incoming LastUpdated is not newer than the stored one
// - ErrCASMismatch: compare-and-swap lost against a concurrent writer
// - ErrAmbiguous: a token lookup matched more than one party
// - ErrExpired: access token outside its validity window
// - ErrUnavailable: slow storage or partner temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/ocpistatus.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrDowngrade   = errors.New("downgrade rejected")
	ErrCASMismatch = errors.New("concurrent modification")
	ErrAmbiguous   = errors.New("ambiguous match")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
