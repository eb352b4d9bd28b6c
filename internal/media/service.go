package media

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"embysub/internal/api"
	"embysub/internal/catalog/tmdb"
	"embysub/internal/logging"
	"embysub/internal/resolver"
	"embysub/internal/services"
	"embysub/internal/services/emby"
)

const (
	defaultLatestLimit = 20
	maxLatestLimit     = 100
	detailConcurrency  = 4
)

// Catalog is the TMDB surface the media views need.
type Catalog interface {
	Trending(ctx context.Context, kind, window string, page int) (*tmdb.Page, error)
	DiscoverTV(ctx context.Context, page int, withoutGenres string) (*tmdb.Page, error)
	Anime(ctx context.Context, page int) (*tmdb.Page, error)
	SearchMulti(ctx context.Context, query string, page int) (*tmdb.Page, error)
	Details(ctx context.Context, kind string, id int64) (*tmdb.Details, error)
	Person(ctx context.Context, id int64) (*tmdb.Person, error)
	Season(ctx context.Context, tvID int64, seasonNumber int) (*tmdb.Season, error)
	FindByExternalID(ctx context.Context, externalID, source string) (*tmdb.FindResult, error)
	Image(ctx context.Context, size, path string) ([]byte, string, error)
}

// Inventory is the Emby surface the media views need.
type Inventory interface {
	LatestItems(ctx context.Context, limit int) ([]emby.Item, error)
	FindByProviderID(ctx context.Context, provider, id string) ([]emby.Item, error)
	ItemDetails(ctx context.Context, itemID string) (*emby.Item, error)
	Episodes(ctx context.Context, seriesID string, season *int) ([]emby.Item, error)
	PrimaryImage(ctx context.Context, itemID string) ([]byte, string, error)
}

// TrendingQuery selects the trending feed.
type TrendingQuery struct {
	Page          int
	MediaType     string
	TimeWindow    string
	WithoutGenres string
}

// Service builds the catalog views shown to users: TMDB payloads annotated with
// library and request status.
type Service struct {
	catalog   Catalog
	inventory Inventory
	resolver  *resolver.Resolver
	chain     *resolver.IDChain
	logger    *slog.Logger
}

// NewService wires the media views.
func NewService(catalog Catalog, inventory Inventory, res *resolver.Resolver, logger *slog.Logger) *Service {
	return &Service{
		catalog:   catalog,
		inventory: inventory,
		resolver:  res,
		chain:     resolver.NewIDChain(catalog, logger),
		logger:    logging.NewComponentLogger(logger, "media"),
	}
}

// Trending returns the trending feed. TV with excluded genres goes through discover.
// Catalog failures yield an empty list instead of an error.
func (s *Service) Trending(ctx context.Context, q TrendingQuery) (api.MediaList, error) {
	kind := defaultValue(q.MediaType, "all")
	window := defaultValue(q.TimeWindow, "day")
	if kind != "all" && kind != "movie" && kind != "tv" {
		return api.MediaList{}, services.Wrap(services.ErrValidation, "media", "trending", "media_type must be one of all, movie, tv", nil)
	}
	if window != "day" && window != "week" {
		return api.MediaList{}, services.Wrap(services.ErrValidation, "media", "trending", "time_window must be one of day, week", nil)
	}

	var (
		page *tmdb.Page
		err  error
	)
	if kind == "tv" && strings.TrimSpace(q.WithoutGenres) != "" {
		page, err = s.catalog.DiscoverTV(ctx, q.Page, q.WithoutGenres)
	} else {
		page, err = s.catalog.Trending(ctx, kind, window, q.Page)
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "trending feed unavailable", "catalog_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "empty trending list returned"),
		)
		return api.MediaList{Results: []api.MediaItem{}}, nil
	}

	results := page.Results
	if kind != "all" {
		for i := range results {
			results[i].MediaType = kind
		}
	}
	items, err := s.annotate(ctx, results)
	if err != nil {
		return api.MediaList{}, err
	}
	return api.MediaList{Results: items}, nil
}

// Search runs a multi search restricted to movies and series.
func (s *Service) Search(ctx context.Context, query string, pageNum int) (api.MediaList, error) {
	if strings.TrimSpace(query) == "" {
		return api.MediaList{}, services.Wrap(services.ErrValidation, "media", "search", "query is required", nil)
	}
	page, err := s.catalog.SearchMulti(ctx, query, pageNum)
	if err != nil {
		return api.MediaList{}, services.Wrap(services.ErrExternal, "media", "search", "catalog search failed", err)
	}
	filtered := make([]tmdb.Media, 0, len(page.Results))
	for _, m := range page.Results {
		if isTitle(m.MediaType) {
			filtered = append(filtered, m)
		}
	}
	items, err := s.annotate(ctx, filtered)
	if err != nil {
		return api.MediaList{}, err
	}
	total := page.TotalPages
	return api.MediaList{Results: items, TotalPages: &total}, nil
}

// Anime returns the merged Japanese animation list.
func (s *Service) Anime(ctx context.Context, pageNum int) (api.MediaList, error) {
	page, err := s.catalog.Anime(ctx, pageNum)
	if err != nil {
		return api.MediaList{}, services.Wrap(services.ErrExternal, "media", "anime", "catalog request failed", err)
	}
	items, err := s.annotate(ctx, page.Results)
	if err != nil {
		return api.MediaList{}, err
	}
	return api.MediaList{Results: items}, nil
}

type latestEntry struct {
	item api.MediaItem
	ok   bool
}

// Latest lists titles recently added to Emby, described with catalog metadata.
// Items without a resolvable catalog id or whose details fail are skipped.
func (s *Service) Latest(ctx context.Context, limit int) (api.MediaList, error) {
	if limit <= 0 {
		limit = defaultLatestLimit
	}
	limit = min(limit, maxLatestLimit)
	logger := logging.WithContext(ctx, s.logger)

	embyItems, err := s.inventory.LatestItems(ctx, limit)
	if err != nil {
		logging.WarnWithContext(logger, "latest items unavailable", "inventory_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "empty latest list returned"),
		)
		return api.MediaList{Results: []api.MediaItem{}}, nil
	}

	mapper := iter.Mapper[emby.Item, latestEntry]{MaxGoroutines: detailConcurrency}
	entries := mapper.Map(embyItems, func(item *emby.Item) latestEntry {
		return s.latestEntry(ctx, logger, *item)
	})
	results := make([]api.MediaItem, 0, len(entries))
	for _, entry := range entries {
		if entry.ok {
			results = append(results, entry.item)
		}
	}
	return api.MediaList{Results: results}, nil
}

func (s *Service) latestEntry(ctx context.Context, logger *slog.Logger, item emby.Item) latestEntry {
	catalogID, strategy, ok := s.chain.CatalogID(ctx, item)
	if !ok {
		logger.Debug("skipping emby item without catalog id", logging.String("emby_id", item.ID), logging.String("name", item.Name))
		return latestEntry{}
	}
	id, err := strconv.ParseInt(catalogID, 10, 64)
	if err != nil {
		return latestEntry{}
	}
	kind := "tv"
	if item.Type == "Movie" {
		kind = "movie"
	}
	details, err := s.catalog.Details(ctx, kind, id)
	if err != nil {
		logger.Warn("catalog details failed for emby item",
			logging.String("emby_id", item.ID),
			logging.String(logging.FieldCatalogID, catalogID),
			logging.String("strategy", string(strategy)),
			logging.Error(err),
		)
		return latestEntry{}
	}
	media := details.Media
	media.MediaType = kind
	return latestEntry{
		item: api.MediaItem{Media: media, Status: resolver.StatusAvailable, EmbyID: item.ID},
		ok:   true,
	}
}

// Person returns a person with every movie and series credit annotated. Each
// distinct title is looked up once.
func (s *Service) Person(ctx context.Context, personID int64) (*api.PersonDetails, error) {
	person, err := s.catalog.Person(ctx, personID)
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "media", "person", "catalog request failed", err)
	}
	out := &api.PersonDetails{Person: *person}
	if person.CombinedCredits == nil {
		return out, nil
	}

	var unique []tmdb.Media
	seen := make(map[int64]struct{})
	for _, credit := range append(append([]tmdb.Media{}, person.CombinedCredits.Cast...), person.CombinedCredits.Crew...) {
		if !isTitle(credit.MediaType) {
			continue
		}
		if _, dup := seen[credit.ID]; dup {
			continue
		}
		seen[credit.ID] = struct{}{}
		unique = append(unique, credit)
	}
	resolved, err := s.annotate(ctx, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]api.MediaItem, len(resolved))
	for _, item := range resolved {
		byID[item.ID] = item
	}

	out.CombinedCredits = &api.PersonCredits{
		Cast: applyStatus(person.CombinedCredits.Cast, byID),
		Crew: applyStatus(person.CombinedCredits.Crew, byID),
	}
	return out, nil
}

func applyStatus(credits []tmdb.Media, byID map[int64]api.MediaItem) []api.MediaItem {
	out := make([]api.MediaItem, 0, len(credits))
	for _, credit := range credits {
		item := api.MediaItem{Media: credit}
		if resolved, ok := byID[credit.ID]; ok && isTitle(credit.MediaType) {
			item.Status = resolved.Status
			item.EmbyID = resolved.EmbyID
			item.RequestUserID = resolved.RequestUserID
		}
		out = append(out, item)
	}
	return out
}

// Season returns a season's episodes, flagged with is_in_library when Emby holds
// the series. Emby failures leave the episodes unflagged.
func (s *Service) Season(ctx context.Context, tvID int64, seasonNumber int) (*api.SeasonDetails, error) {
	season, err := s.catalog.Season(ctx, tvID, seasonNumber)
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "media", "season", "catalog request failed", err)
	}
	out := &api.SeasonDetails{Season: *season, Episodes: make([]api.EpisodeItem, 0, len(season.Episodes))}
	for _, ep := range season.Episodes {
		out.Episodes = append(out.Episodes, api.EpisodeItem{Episode: ep})
	}

	held, ok := s.libraryEpisodes(ctx, strconv.FormatInt(tvID, 10), seasonNumber)
	if !ok {
		return out, nil
	}
	for i := range out.Episodes {
		_, present := held[out.Episodes[i].EpisodeNumber]
		out.Episodes[i].IsInLibrary = &present
	}
	return out, nil
}

func (s *Service) libraryEpisodes(ctx context.Context, catalogID string, seasonNumber int) (map[int]struct{}, bool) {
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCatalogID, catalogID))
	items, err := s.inventory.FindByProviderID(ctx, resolver.CatalogProvider, catalogID)
	if err != nil {
		logger.Warn("emby series lookup failed", logging.Error(err))
		return nil, false
	}
	if len(items) == 0 {
		return nil, false
	}
	episodes, err := s.inventory.Episodes(ctx, items[0].ID, &seasonNumber)
	if err != nil {
		logger.Warn("emby episode listing failed", logging.Error(err))
		return nil, false
	}
	held := make(map[int]struct{}, len(episodes))
	for _, ep := range episodes {
		if ep.IndexNumber != nil {
			held[*ep.IndexNumber] = struct{}{}
		}
	}
	return held, true
}

// Details returns a movie or series with its status, Emby media info and, for
// series, per-season library counts and request statuses.
func (s *Service) Details(ctx context.Context, kind string, id int64) (*api.MediaDetails, error) {
	if kind == "series" {
		kind = "tv"
	}
	if !isTitle(kind) {
		return nil, services.Wrap(services.ErrValidation, "media", "details", fmt.Sprintf("unsupported media type %q", kind), nil)
	}
	details, err := s.catalog.Details(ctx, kind, id)
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "media", "details", "catalog request failed", err)
	}
	details.MediaType = kind
	catalogID := strconv.FormatInt(id, 10)
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCatalogID, catalogID))

	resolution, err := s.resolver.ResolveOne(ctx, resolver.Item{CatalogID: catalogID})
	if err != nil {
		return nil, err
	}
	out := &api.MediaDetails{
		Details:       *details,
		Status:        resolution.Status,
		EmbyID:        resolution.InventoryID,
		RequestUserID: resolution.RequestUserID,
	}

	if out.EmbyID != "" {
		if item, err := s.inventory.ItemDetails(ctx, out.EmbyID); err != nil {
			logger.Warn("emby media info unavailable", logging.Error(err))
		} else {
			out.MediaInfo = emby.ExtractMediaInfo(item)
		}
	}

	if kind != "tv" || len(details.Seasons) == 0 {
		return out, nil
	}

	out.Seasons = make([]api.SeasonItem, 0, len(details.Seasons))
	numbers := make([]int, 0, len(details.Seasons))
	for _, season := range details.Seasons {
		out.Seasons = append(out.Seasons, api.SeasonItem{SeasonSummary: season})
		numbers = append(numbers, season.SeasonNumber)
	}

	if out.EmbyID != "" {
		if episodes, err := s.inventory.Episodes(ctx, out.EmbyID, nil); err != nil {
			logger.Warn("emby episode listing failed", logging.Error(err))
		} else {
			counts := make(map[int]int)
			for _, ep := range episodes {
				if ep.ParentIndexNumber != nil {
					counts[*ep.ParentIndexNumber]++
				}
			}
			for i := range out.Seasons {
				count := counts[out.Seasons[i].SeasonNumber]
				out.Seasons[i].ExistingEpisodeCount = &count
			}
		}
	}

	statuses, err := s.resolver.SeasonStatuses(ctx, catalogID, numbers)
	if err != nil {
		return nil, err
	}
	for i := range out.Seasons {
		out.Seasons[i].SubscriptionStatus = statuses[out.Seasons[i].SeasonNumber]
	}
	return out, nil
}

// EmbyImage proxies an item's primary image.
func (s *Service) EmbyImage(ctx context.Context, itemID string) ([]byte, string, error) {
	body, contentType, err := s.inventory.PrimaryImage(ctx, itemID)
	if err != nil {
		return nil, "", services.Wrap(services.ErrExternal, "media", "emby_image", "image unavailable", err)
	}
	return body, contentType, nil
}

// CatalogImage proxies a TMDB image. Any failure is reported as not found.
func (s *Service) CatalogImage(ctx context.Context, size, path string) ([]byte, string, error) {
	body, contentType, err := s.catalog.Image(ctx, size, path)
	if err != nil {
		return nil, "", services.Wrap(services.ErrNotFound, "media", "tmdb_image", "image unavailable", err)
	}
	return body, contentType, nil
}

func (s *Service) annotate(ctx context.Context, media []tmdb.Media) ([]api.MediaItem, error) {
	items := make([]resolver.Item, len(media))
	for i, m := range media {
		items[i] = resolver.Item{CatalogID: m.IDString()}
	}
	resolutions, err := s.resolver.Resolve(ctx, items)
	if err != nil {
		return nil, err
	}
	out := make([]api.MediaItem, len(media))
	for i, m := range media {
		out[i] = api.MediaItem{
			Media:         m,
			Status:        resolutions[i].Status,
			EmbyID:        resolutions[i].InventoryID,
			RequestUserID: resolutions[i].RequestUserID,
		}
	}
	return out, nil
}

func isTitle(kind string) bool {
	return kind == "movie" || kind == "tv"
}

func defaultValue(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
