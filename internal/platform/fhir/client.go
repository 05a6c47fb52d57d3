package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const mimeFHIRJSON = "application/fhir+json"

// StatusError is returned when a vendor endpoint answers with a non-2xx
// status. The body is discarded; vendors put PHI in OperationOutcome
// diagnostics and we do not want that in error chains.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fhir: %s returned status %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a StatusError for a 404 or 410.
func IsNotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone)
}

// IsUnauthorized reports whether err is a StatusError for a 401 or 403.
func IsUnauthorized(err error) bool {
	se, ok := err.(*StatusError)
	return ok && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden)
}

// RESTClient is a FHIR R4 REST client scoped to a single vendor base URL
// and bearer credential. Retries are whatever the underlying
// retryablehttp client does by default; this layer adds no policy of its
// own on top.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRESTClient builds a client for one vendor endpoint. A zero timeout
// falls back to 30 seconds.
func NewRESTClient(baseURL, token string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.HTTPClient = &http.Client{Timeout: timeout}
	return &RESTClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: rc.StandardClient(),
	}
}

// BaseURL returns the vendor endpoint this client is scoped to.
func (c *RESTClient) BaseURL() string {
	return c.baseURL
}

// Read fetches a single resource by type and id, decoding into out.
func (c *RESTClient) Read(ctx context.Context, resourceType, id string, out any) error {
	return c.get(ctx, c.baseURL+"/"+resourceType+"/"+url.PathEscape(id), out)
}

// Search runs a search on the resource type and returns the result bundle.
func (c *RESTClient) Search(ctx context.Context, resourceType string, params url.Values) (*Bundle, error) {
	u := c.baseURL + "/" + resourceType
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var b Bundle
	if err := c.get(ctx, u, &b); err != nil {
		return nil, err
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("fhir: search on %s returned %q, want Bundle", resourceType, b.ResourceType)
	}
	return &b, nil
}

func (c *RESTClient) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("fhir: build request: %w", err)
	}
	req.Header.Set("Accept", mimeFHIRJSON)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fhir: %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fhir: read response from %s: %w", u, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("fhir: decode response from %s: %w", u, err)
	}
	return nil
}
