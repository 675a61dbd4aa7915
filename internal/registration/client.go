package registration

//go:generate mockgen -source=client.go -destination=mocks/versions_client.go -package=mocks

import (
	"context"

	"ocpihub/internal/ocpi"
	"ocpihub/internal/party"
	"ocpihub/pkg/ocpistatus"
)

// VersionsClient is the outbound view of a partner platform's version
// discovery endpoints. Implementations return the partner's application
// status code alongside the payload; transport failures come back as errors.
type VersionsClient interface {
	GetVersions(ctx context.Context) (ocpistatus.Code, []ocpi.Version, error)
	GetVersionDetails(ctx context.Context, version string) (ocpistatus.Code, *ocpi.VersionDetails, error)
}

// ClientFactory builds a VersionsClient for one partner, presenting the
// given token at the given versions URL with per-party transport tuning.
type ClientFactory func(transport party.Transport, token, versionsURL string) VersionsClient
