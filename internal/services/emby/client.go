package emby

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"embysub/internal/config"
	"embysub/internal/metrics"
	"embysub/internal/services"
)

const (
	latestFields   = "ProviderIds,Overview,DateCreated,CommunityRating"
	detailFields   = "MediaStreams,Path,Size,Bitrate,Width,Height,Container,Overview"
	episodeFields  = "ProviderIds,IndexNumber,ParentIndexNumber"
	imageMaxWidth  = 400
	maxImageBytes  = 16 << 20
	maxErrorBody   = 512
	defaultTimeout = 15 * time.Second
)

// Inventory is the set of Emby operations the rest of the application depends on.
// Client and BreakerClient both satisfy it.
type Inventory interface {
	Authenticate(ctx context.Context, username, password string) (*AuthResult, error)
	LatestItems(ctx context.Context, limit int) ([]Item, error)
	FindByProviderID(ctx context.Context, provider, id string) ([]Item, error)
	ItemDetails(ctx context.Context, itemID string) (*Item, error)
	Episodes(ctx context.Context, seriesID string, season *int) ([]Item, error)
	PrimaryImage(ctx context.Context, itemID string) ([]byte, string, error)
}

var _ Inventory = (*Client)(nil)

// HTTPDoer describes the HTTP client used by the Emby client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Identity is the client identification sent with AuthenticateByName.
type Identity struct {
	Client        string
	DeviceName    string
	DeviceID      string
	ClientVersion string
}

// Client talks to the Emby REST API.
type Client struct {
	baseURL  string
	apiKey   string
	userID   string
	identity Identity
	client   HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPDoer overrides the HTTP client.
func WithHTTPDoer(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithUserID scopes item and episode lookups to an Emby user.
func WithUserID(userID string) Option {
	return func(c *Client) {
		c.userID = strings.TrimSpace(userID)
	}
}

// WithIdentity sets the client identification headers used during login.
func WithIdentity(identity Identity) Option {
	return func(c *Client) {
		c.identity = identity
	}
}

// New constructs an Emby client. Emby usually sits on the local network, so
// environment proxy settings are never consulted.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("emby url required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	c := &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		identity: Identity{
			Client:        "EmbySubscriptionManager",
			DeviceName:    "Web",
			DeviceID:      "emby-sub-manager-001",
			ClientVersion: "1.0.0",
		},
		client: &http.Client{Timeout: timeout, Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewConfigured builds a client from the [emby] configuration section.
func NewConfigured(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "emby", "configure", "config is nil", nil)
	}
	base := []Option{
		WithUserID(cfg.Emby.UserID),
		WithIdentity(Identity{
			Client:        cfg.Emby.ClientName,
			DeviceName:    cfg.Emby.DeviceName,
			DeviceID:      cfg.Emby.DeviceID,
			ClientVersion: cfg.Emby.ClientVersion,
		}),
	}
	return New(cfg.Emby.URL, cfg.Emby.APIKey, time.Duration(cfg.Emby.TimeoutSeconds)*time.Second, append(base, opts...)...)
}

// Authenticate verifies a username and password with Emby.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	body, err := json.Marshal(map[string]string{"Username": username, "Pw": password})
	if err != nil {
		return nil, fmt.Errorf("encode emby login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Users/AuthenticateByName", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build emby login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Emby-Client", c.identity.Client)
	req.Header.Set("X-Emby-Device-Name", c.identity.DeviceName)
	req.Header.Set("X-Emby-Device-Id", c.identity.DeviceID)
	req.Header.Set("X-Emby-Client-Version", c.identity.ClientVersion)

	var result AuthResult
	if err := c.do(req, "authenticate", &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.User.ID) == "" {
		return nil, errors.New("emby login response missing user id")
	}
	return &result, nil
}

// LatestItems lists recently added movies and series, newest first.
func (c *Client) LatestItems(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("SortBy", "DateCreated")
	params.Set("SortOrder", "Descending")
	params.Set("IncludeItemTypes", "Movie,Series")
	params.Set("Recursive", "true")
	params.Set("Limit", strconv.Itoa(limit))
	params.Set("Fields", latestFields)
	return c.items(ctx, "latest_items", "/Items", params)
}

// FindByProviderID lists items carrying the given provider id, for example Tmdb/550.
func (c *Client) FindByProviderID(ctx context.Context, provider, id string) ([]Item, error) {
	provider = strings.TrimSpace(provider)
	id = strings.TrimSpace(id)
	if provider == "" || id == "" {
		return nil, services.Wrap(services.ErrValidation, "emby", "find by provider id", "provider and id are required", nil)
	}
	params := url.Values{}
	params.Set("Recursive", "true")
	params.Set("AnyProviderIdEquals", provider+"."+id)
	params.Set("Fields", "ProviderIds")
	return c.items(ctx, "find_by_provider_id", "/Items", params)
}

// ItemDetails fetches one item with its media streams.
func (c *Client) ItemDetails(ctx context.Context, itemID string) (*Item, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, services.Wrap(services.ErrValidation, "emby", "item details", "item id is required", nil)
	}
	path := "/Items/" + url.PathEscape(itemID)
	if c.userID != "" {
		path = "/Users/" + url.PathEscape(c.userID) + path
	}
	params := url.Values{}
	params.Set("Fields", detailFields)
	req, err := c.newGet(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(req, "item_details", &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Episodes lists the episodes of a series, optionally restricted to one season.
func (c *Client) Episodes(ctx context.Context, seriesID string, season *int) ([]Item, error) {
	seriesID = strings.TrimSpace(seriesID)
	if seriesID == "" {
		return nil, services.Wrap(services.ErrValidation, "emby", "episodes", "series id is required", nil)
	}
	path := "/Items"
	if c.userID != "" {
		path = "/Users/" + url.PathEscape(c.userID) + "/Items"
	}
	params := url.Values{}
	params.Set("ParentId", seriesID)
	params.Set("IncludeItemTypes", "Episode")
	params.Set("Recursive", "true")
	params.Set("Fields", episodeFields)
	if season != nil {
		params.Set("ParentIndexNumber", strconv.Itoa(*season))
	}
	return c.items(ctx, "episodes", path, params)
}

// ImageURL returns the primary image location of an item.
func (c *Client) ImageURL(itemID string) string {
	return c.baseURL + "/Items/" + url.PathEscape(itemID) + "/Images/Primary?maxWidth=" + strconv.Itoa(imageMaxWidth)
}

// PrimaryImage downloads the primary image of an item.
func (c *Client) PrimaryImage(ctx context.Context, itemID string) ([]byte, string, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, "", services.Wrap(services.ErrValidation, "emby", "image", "item id is required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ImageURL(itemID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build emby image request: %w", err)
	}
	resp, latency, err := c.send(req, "image")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	metrics.RecordExternalCall("emby", "image", latency, err)
	if err != nil {
		return nil, "", fmt.Errorf("read emby image: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

func (c *Client) items(ctx context.Context, operation, path string, params url.Values) ([]Item, error) {
	req, err := c.newGet(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var payload itemsResponse
	if err := c.do(req, operation, &payload); err != nil {
		return nil, err
	}
	if payload.Items == nil {
		return []Item{}, nil
	}
	return payload.Items, nil
}

func (c *Client) newGet(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build emby request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// send executes req with the api token and returns the response only for 2xx statuses.
func (c *Client) send(req *http.Request, operation string) (*http.Response, time.Duration, error) {
	if c.apiKey != "" {
		req.Header.Set("X-Emby-Token", c.apiKey)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		metrics.RecordExternalCall("emby", operation, latency, err)
		return nil, latency, fmt.Errorf("emby %s request failed (latency=%v): %w", operation, latency, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("emby %s returned status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(snippet)))
		metrics.RecordExternalCall("emby", operation, latency, err)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, latency, services.Wrap(services.ErrUnauthorized, "emby", operation, "credentials rejected", err)
		}
		return nil, latency, err
	}
	return resp, latency, nil
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	resp, latency, err := c.send(req, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordExternalCall("emby", operation, latency, err)
		return fmt.Errorf("decode emby %s: %w", operation, err)
	}
	metrics.RecordExternalCall("emby", operation, latency, nil)
	return nil
}
