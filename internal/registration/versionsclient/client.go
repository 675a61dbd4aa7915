// Package versionsclient is the outbound HTTP implementation of the partner
// version discovery calls made during the credentials handshake.
package versionsclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"ocpihub/internal/ocpi"
	"ocpihub/internal/party"
	"ocpihub/internal/registration"
	"ocpihub/pkg/ocpistatus"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// Client calls one partner's versions endpoints, presenting one token.
type Client struct {
	http        *http.Client
	token       string
	versionsURL string
	retryCount  int
	retryDelay  time.Duration
}

// New builds a client honoring the party's transport tuning. Zero values
// fall back to conservative defaults.
func New(transport party.Transport, token, versionsURL string) *Client {
	connectTimeout := transport.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}
	requestTimeout := transport.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = defaultRequestTimeout
	}

	t := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	if transport.InsecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		http:        &http.Client{Transport: t, Timeout: requestTimeout},
		token:       token,
		versionsURL: versionsURL,
		retryCount:  transport.RetryCount,
		retryDelay:  transport.RetryDelay,
	}
}

// Factory adapts New to the registration.ClientFactory signature.
func Factory(transport party.Transport, token, versionsURL string) registration.VersionsClient {
	return New(transport, token, versionsURL)
}

// GetVersions fetches the partner's version list.
func (c *Client) GetVersions(ctx context.Context) (ocpistatus.Code, []ocpi.Version, error) {
	var versions []ocpi.Version
	code, err := c.get(ctx, c.versionsURL, &versions)
	return code, versions, err
}

// GetVersionDetails fetches the endpoint list of one version. The version's
// URL comes from the preceding GetVersions response; conventionally it hangs
// off the versions URL by version id.
func (c *Client) GetVersionDetails(ctx context.Context, version string) (ocpistatus.Code, *ocpi.VersionDetails, error) {
	var details ocpi.VersionDetails
	code, err := c.get(ctx, fmt.Sprintf("%s/%s", c.versionsURL, version), &details)
	if err != nil {
		return code, nil, err
	}
	return code, &details, nil
}

// get performs one envelope-wrapped GET, retrying per the party's transport settings.
// Retries cover transport errors and 5xx answers, never 4xx.
func (c *Client) get(ctx context.Context, url string, out any) (ocpistatus.Code, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 && c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		code, retryable, err := c.attempt(ctx, url, out)
		if err == nil {
			return code, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return 0, lastErr
}

func (c *Client) attempt(ctx context.Context, url string, out any) (ocpistatus.Code, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, true, fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, true, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return 0, true, fmt.Errorf("call %s: http %d", url, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("call %s: http %d", url, resp.StatusCode)
	}

	var envelope ocpi.Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return 0, false, fmt.Errorf("decode %s: %w", url, err)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return 0, false, fmt.Errorf("decode %s payload: %w", url, err)
		}
	}
	return ocpistatus.Code(envelope.StatusCode), false, nil
}
