package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"logview/internal/app/errors"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// RequestIDHeader carries a unique id per outgoing request
const RequestIDHeader = "X-Request-ID"

// Client talks to the platform REST API and prepares requests for the log stream
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	signer  Signer
	log     logger.Logger
}

// NewClient creates a client from configuration
func NewClient(cfg *config.Config, log logger.Logger) *Client {
	return NewClientWith(cfg.API.BaseURL, &http.Client{Timeout: cfg.API.Timeout}, NewSigner(cfg), log)
}

// NewClientWith creates a client with an explicit transport and signer
func NewClientWith(baseURL string, httpClient *http.Client, signer Signer, log logger.Logger) *Client {
	if signer == nil {
		signer = NoopSigner{}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		stream:  &http.Client{Transport: httpClient.Transport},
		signer:  signer,
		log:     log,
	}
}

// NewRequest builds a signed request carrying a fresh request id
func (c *Client) NewRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrFailedToCreateRequest, err)
	}

	req.Header.Set(RequestIDHeader, uuid.NewString())

	if err := c.signer.Sign(req); err != nil {
		return nil, err
	}

	return req, nil
}

// ApplicationURL returns the v4 or v2 base path of an application
func (c *Client) ApplicationURL(version, ownerID, appID string) string {
	return fmt.Sprintf("%s/%s/owners/%s/applications/%s",
		c.baseURL, version, url.PathEscape(ownerID), url.PathEscape(appID))
}

// LogsURL returns the event stream endpoint of an application
func (c *Client) LogsURL(ownerID, appID string) string {
	return c.ApplicationURL("v4", ownerID, appID) + "/logs"
}

// ListInstances lists instances alive within the given range; nil until means up to now
func (c *Client) ListInstances(ctx context.Context, ownerID, appID string, since time.Time, until *time.Time) ([]Instance, error) {
	query := url.Values{}
	query.Set("since", since.UTC().Format(time.RFC3339Nano))

	if until != nil {
		query.Set("until", until.UTC().Format(time.RFC3339Nano))
	}

	var out []Instance
	if err := c.getJSON(ctx, c.ApplicationURL("v4", ownerID, appID)+"/instances?"+query.Encode(), &out); err != nil {
		return nil, err
	}

	return out, nil
}

// ListInstancesByDeployment lists the instances created by a deployment
func (c *Client) ListInstancesByDeployment(ctx context.Context, ownerID, appID, deploymentID string) ([]Instance, error) {
	query := url.Values{}
	query.Set("deploymentId", deploymentID)

	var out []Instance
	if err := c.getJSON(ctx, c.ApplicationURL("v4", ownerID, appID)+"/instances?"+query.Encode(), &out); err != nil {
		return nil, err
	}

	return out, nil
}

// GetInstance fetches one instance
func (c *Client) GetInstance(ctx context.Context, ownerID, appID, instanceID string) (*Instance, error) {
	var out Instance
	if err := c.getJSON(ctx, c.ApplicationURL("v4", ownerID, appID)+"/instances/"+url.PathEscape(instanceID), &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetDeployment fetches a deployment from the v4 API
func (c *Client) GetDeployment(ctx context.Context, ownerID, appID, deploymentID string) (*Deployment, error) {
	var out Deployment
	if err := c.getJSON(ctx, c.ApplicationURL("v4", ownerID, appID)+"/deployments/"+url.PathEscape(deploymentID), &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetLegacyDeployment fetches a deployment from the v2 API
func (c *Client) GetLegacyDeployment(ctx context.Context, ownerID, appID, deploymentID string) (*LegacyDeployment, error) {
	var out LegacyDeployment
	if err := c.getJSON(ctx, c.ApplicationURL("v2", ownerID, appID)+"/deployments/"+url.PathEscape(deploymentID), &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Stream sends a long-lived request; the body is not bound by the client timeout
func (c *Client) Stream(req *http.Request) (*http.Response, error) {
	return c.stream.Do(req)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := c.NewRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := NewHTTPError(resp)
		c.log.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Msg("API request failed")

		return httpErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrFailedToDecodeBody, err)
	}

	return nil
}
