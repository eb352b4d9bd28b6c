package resolver

import (
	"context"
	"log/slog"
	"strings"

	"embysub/internal/catalog/tmdb"
	"embysub/internal/logging"
	"embysub/internal/metrics"
	"embysub/internal/services/emby"
)

// Strategy names the step of the fallback chain that produced a catalog id.
type Strategy string

const (
	StrategyProviderID Strategy = "provider_id"
	StrategyExternalID Strategy = "external_id"
	StrategyTitle      Strategy = "title_search"
	StrategyNone       Strategy = "none"
)

// KeyTransform rewrites a provider-id key before it is looked up.
type KeyTransform func(string) string

// ProviderKeyTransforms are tried in order against an item's provider-id map:
// the key as written, lower case, then upper case.
var ProviderKeyTransforms = []KeyTransform{
	func(key string) string { return key },
	strings.ToLower,
	strings.ToUpper,
}

const externalProvider = "Imdb"

// Catalog is the TMDB lookup the fallback chain needs.
type Catalog interface {
	FindByExternalID(ctx context.Context, externalID, source string) (*tmdb.FindResult, error)
	SearchMulti(ctx context.Context, query string, page int) (*tmdb.Page, error)
}

// IDChain resolves TMDB ids for Emby items whose provider ids may be missing or
// inconsistently cased.
type IDChain struct {
	catalog    Catalog
	transforms []KeyTransform
	logger     *slog.Logger
}

// NewIDChain constructs an IDChain using ProviderKeyTransforms.
func NewIDChain(catalog Catalog, logger *slog.Logger) *IDChain {
	return &IDChain{
		catalog:    catalog,
		transforms: ProviderKeyTransforms,
		logger:     logging.NewComponentLogger(logger, "catalog-id"),
	}
}

// CatalogID returns the TMDB id for item. It tries the Tmdb provider id, then an
// Imdb cross reference, then a title search filtered by year. ok is false when
// every step fails; callers skip such items.
func (c *IDChain) CatalogID(ctx context.Context, item emby.Item) (id string, strategy Strategy, ok bool) {
	if id := c.providerID(item.ProviderIDs, CatalogProvider); id != "" {
		metrics.RecordResolution(string(StrategyProviderID), true)
		return id, StrategyProviderID, true
	}
	if id, ok := c.byExternalID(ctx, item); ok {
		metrics.RecordResolution(string(StrategyExternalID), true)
		return id, StrategyExternalID, true
	}
	if id, ok := c.byTitle(ctx, item); ok {
		metrics.RecordResolution(string(StrategyTitle), true)
		return id, StrategyTitle, true
	}
	metrics.RecordResolution(string(StrategyNone), false)
	c.logger.Debug("no catalog id for emby item",
		logging.String("emby_id", item.ID),
		logging.String("name", item.Name),
		logging.Any("provider_ids", item.ProviderIDs),
	)
	return "", StrategyNone, false
}

func (c *IDChain) providerID(ids map[string]string, provider string) string {
	if len(ids) == 0 {
		return ""
	}
	for _, transform := range c.transforms {
		if value := strings.TrimSpace(ids[transform(provider)]); value != "" {
			return value
		}
	}
	return ""
}

func (c *IDChain) byExternalID(ctx context.Context, item emby.Item) (string, bool) {
	externalID := c.providerID(item.ProviderIDs, externalProvider)
	if externalID == "" || c.catalog == nil {
		return "", false
	}
	found, err := c.catalog.FindByExternalID(ctx, externalID, "imdb_id")
	if err != nil {
		c.logger.Debug("imdb cross reference failed",
			logging.String("imdb_id", externalID),
			logging.Error(err),
		)
		return "", false
	}
	candidate, ok := found.First()
	if !ok {
		return "", false
	}
	return candidate.IDString(), true
}

func (c *IDChain) byTitle(ctx context.Context, item emby.Item) (string, bool) {
	name := strings.TrimSpace(item.Name)
	if name == "" || c.catalog == nil {
		return "", false
	}
	page, err := c.catalog.SearchMulti(ctx, name, 1)
	if err != nil {
		c.logger.Debug("title search failed",
			logging.String("name", name),
			logging.Error(err),
		)
		return "", false
	}
	candidates := make([]tmdb.Media, 0, len(page.Results))
	for _, result := range page.Results {
		if result.MediaType == "person" {
			continue
		}
		candidates = append(candidates, result)
	}
	candidate, ok := pickCandidate(candidates, item.Year())
	if !ok {
		return "", false
	}
	return candidate.IDString(), true
}

// pickCandidate returns the first candidate released in year, else the first candidate.
func pickCandidate(candidates []tmdb.Media, year string) (tmdb.Media, bool) {
	if len(candidates) == 0 {
		return tmdb.Media{}, false
	}
	if year != "" {
		for _, candidate := range candidates {
			if candidate.Year() == year {
				return candidate, true
			}
		}
	}
	return candidates[0], true
}
