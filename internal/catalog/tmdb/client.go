package tmdb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"embysub/internal/metrics"
)

const (
	animeGenreID     = "16"
	animeLanguage    = "ja"
	animeResultLimit = 20
	maxImageBytes    = 16 << 20
)

// Client provides access to the TMDB API.
type Client struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	language     string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithProxy routes catalog traffic through the given proxy URL. Empty values are ignored.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		proxyURL = strings.TrimSpace(proxyURL)
		if proxyURL == "" {
			return
		}
		parsed, err := url.Parse(proxyURL)
		if err != nil || parsed.Host == "" {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(parsed)
		c.httpClient = &http.Client{Timeout: c.httpClient.Timeout, Transport: transport}
	}
}

// WithTimeout bounds each catalog call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit throttles outbound requests to rps with a burst of the same size.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := max(int(rps), 1)
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithImageBaseURL sets the image CDN root (for example https://image.tmdb.org/t/p).
func WithImageBaseURL(base string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.imageBaseURL = trimmed
		}
	}
}

// New creates a TMDB client.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	client := &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		imageBaseURL: "https://image.tmdb.org/t/p",
		language:     strings.TrimSpace(language),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Trending lists trending titles. kind is all, movie or tv and window is day or week.
func (c *Client) Trending(ctx context.Context, kind, window string, page int) (*Page, error) {
	kind = defaultString(kind, "all")
	window = defaultString(window, "day")
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(page, 1)))
	var payload Page
	if err := c.get(ctx, "trending", "/trending/"+url.PathEscape(kind)+"/"+url.PathEscape(window), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// DiscoverTV lists popular series, optionally excluding a comma separated genre list.
func (c *Client) DiscoverTV(ctx context.Context, page int, withoutGenres string) (*Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(page, 1)))
	params.Set("sort_by", "popularity.desc")
	if withoutGenres = strings.TrimSpace(withoutGenres); withoutGenres != "" {
		params.Set("without_genres", withoutGenres)
	}
	var payload Page
	if err := c.get(ctx, "discover_tv", "/discover/tv", params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Anime merges popular Japanese animated series and movies, most popular first.
func (c *Client) Anime(ctx context.Context, page int) (*Page, error) {
	kinds := []string{"tv", "movie"}
	pages := make([]Page, len(kinds))

	p := pool.New().WithMaxGoroutines(len(kinds)).WithContext(ctx).WithCancelOnError()
	for i, kind := range kinds {
		p.Go(func(ctx context.Context) error {
			params := url.Values{}
			params.Set("page", strconv.Itoa(max(page, 1)))
			params.Set("with_genres", animeGenreID)
			params.Set("with_original_language", animeLanguage)
			params.Set("sort_by", "popularity.desc")
			if err := c.get(ctx, "discover_"+kind, "/discover/"+kind, params, &pages[i]); err != nil {
				return err
			}
			for j := range pages[i].Results {
				pages[i].Results[j].MediaType = kind
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Media, 0, len(pages[0].Results)+len(pages[1].Results))
	for _, pg := range pages {
		merged = append(merged, pg.Results...)
	}
	slices.SortStableFunc(merged, func(a, b Media) int {
		return cmp.Compare(b.Popularity, a.Popularity)
	})
	if len(merged) > animeResultLimit {
		merged = merged[:animeResultLimit]
	}
	return &Page{
		Page:         max(page, 1),
		Results:      merged,
		TotalPages:   max(pages[0].TotalPages, pages[1].TotalPages),
		TotalResults: pages[0].TotalResults + pages[1].TotalResults,
	}, nil
}

// SearchMulti searches movies, series and people in one call.
func (c *Client) SearchMulti(ctx context.Context, query string, page int) (*Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(max(page, 1)))
	var payload Page
	if err := c.get(ctx, "search_multi", "/search/multi", params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Details fetches movie or series details with external ids and credits appended.
func (c *Client) Details(ctx context.Context, kind string, id int64) (*Details, error) {
	if kind != "movie" && kind != "tv" {
		return nil, fmt.Errorf("unsupported media type %q", kind)
	}
	params := url.Values{}
	params.Set("append_to_response", "external_ids,credits")
	var payload Details
	if err := c.get(ctx, kind+"_details", "/"+kind+"/"+strconv.FormatInt(id, 10), params, &payload); err != nil {
		return nil, err
	}
	if payload.MediaType == "" {
		payload.MediaType = kind
	}
	return &payload, nil
}

// Person fetches a person with combined credits and external ids.
func (c *Client) Person(ctx context.Context, id int64) (*Person, error) {
	params := url.Values{}
	params.Set("append_to_response", "combined_credits,external_ids")
	var payload Person
	if err := c.get(ctx, "person", "/person/"+strconv.FormatInt(id, 10), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Season fetches one season of a series including its episodes.
func (c *Client) Season(ctx context.Context, tvID int64, seasonNumber int) (*Season, error) {
	var payload Season
	path := "/tv/" + strconv.FormatInt(tvID, 10) + "/season/" + strconv.Itoa(seasonNumber)
	if err := c.get(ctx, "season", path, url.Values{}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FindByExternalID looks up titles by a foreign identifier. source defaults to imdb_id.
func (c *Client) FindByExternalID(ctx context.Context, externalID, source string) (*FindResult, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, errors.New("external id must not be empty")
	}
	params := url.Values{}
	params.Set("external_source", defaultString(source, "imdb_id"))
	var payload FindResult
	if err := c.get(ctx, "find", "/find/"+url.PathEscape(externalID), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Image downloads an image from the CDN. size is a TMDB size segment such as w500 or original.
func (c *Client) Image(ctx context.Context, size, path string) ([]byte, string, error) {
	size = strings.Trim(strings.TrimSpace(size), "/")
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if size == "" || path == "" || strings.Contains(path, "..") || strings.Contains(size, "..") {
		return nil, "", fmt.Errorf("invalid image reference %q/%q", size, path)
	}
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	endpoint := c.imageBaseURL + "/" + size + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		metrics.RecordExternalCall("tmdb", "image", latency, err)
		return nil, "", fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("tmdb image returned %d (latency=%v)", resp.StatusCode, latency)
		metrics.RecordExternalCall("tmdb", "image", latency, err)
		return nil, "", err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	metrics.RecordExternalCall("tmdb", "image", latency, err)
	if err != nil {
		return nil, "", fmt.Errorf("read tmdb image: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return body, contentType, nil
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		metrics.RecordExternalCall("tmdb", operation, latency, err)
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("tmdb %s returned %d (latency=%v)", operation, resp.StatusCode, latency)
		metrics.RecordExternalCall("tmdb", operation, latency, err)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordExternalCall("tmdb", operation, latency, err)
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	metrics.RecordExternalCall("tmdb", operation, latency, nil)
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("tmdb rate limit: %w", err)
	}
	return nil
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
