package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"embysub/internal/logging"
	"embysub/internal/services/emby"
	"embysub/internal/store"
)

const (
	// StatusAvailable marks a title that Emby already holds.
	StatusAvailable = "AVAILABLE"
	// StatusUnknown marks a title that is neither in Emby nor requested.
	StatusUnknown = "UNKNOWN"

	// CatalogProvider is the Emby provider-id key for TMDB ids.
	CatalogProvider = "Tmdb"

	defaultConcurrency = 4
)

// Inventory is the Emby lookup the resolver needs.
type Inventory interface {
	FindByProviderID(ctx context.Context, provider, id string) ([]emby.Item, error)
}

// Requests is the request store lookup the resolver needs.
type Requests interface {
	FirstByCatalogID(ctx context.Context, tmdbID string) (*store.Request, error)
	FindByKey(ctx context.Context, key store.Key) (*store.Request, error)
	ListByCatalogID(ctx context.Context, tmdbID string) ([]*store.Request, error)
}

// Item identifies a catalog title to resolve. When MatchSeason is set only a request
// with the same Season value (nil meaning the whole series) counts as a match;
// otherwise any request for the catalog id does.
type Item struct {
	CatalogID   string
	Season      *int
	MatchSeason bool
}

// Resolution is the status of one Item.
type Resolution struct {
	Status        string
	InventoryID   string
	RequestUserID string
}

// Resolver annotates catalog titles with their library or request status.
type Resolver struct {
	inventory   Inventory
	requests    Requests
	logger      *slog.Logger
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConcurrency bounds the number of items resolved in parallel.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New constructs a Resolver.
func New(inventory Inventory, requests Requests, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		inventory:   inventory,
		requests:    requests,
		logger:      logging.NewComponentLogger(logger, "resolver"),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns one Resolution per item, in input order. An Emby failure for an
// item counts as "not in library" for that item only. A store failure fails the batch.
func (r *Resolver) Resolve(ctx context.Context, items []Item) ([]Resolution, error) {
	if len(items) == 0 {
		return []Resolution{}, nil
	}
	mapper := iter.Mapper[Item, Resolution]{MaxGoroutines: r.concurrency}
	results, err := mapper.MapErr(items, func(item *Item) (Resolution, error) {
		return r.ResolveOne(ctx, *item)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ResolveOne applies the library, then request, then unknown precedence to one item.
func (r *Resolver) ResolveOne(ctx context.Context, item Item) (Resolution, error) {
	catalogID := strings.TrimSpace(item.CatalogID)
	if catalogID == "" {
		return Resolution{Status: StatusUnknown}, nil
	}

	if inventoryID, ok := r.lookupInventory(ctx, catalogID); ok {
		return Resolution{Status: StatusAvailable, InventoryID: inventoryID}, nil
	}

	req, err := r.lookupRequest(ctx, item, catalogID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %s: %w", catalogID, err)
	}
	if req != nil {
		return Resolution{Status: req.Status.Upper(), RequestUserID: req.UserID}, nil
	}
	return Resolution{Status: StatusUnknown}, nil
}

// InventoryID returns the Emby id holding catalogID. Failures are logged and reported as absent.
func (r *Resolver) InventoryID(ctx context.Context, catalogID string) (string, bool) {
	return r.lookupInventory(ctx, strings.TrimSpace(catalogID))
}

// SeasonStatuses maps each season number to the upper-cased status of the request
// covering it: a request for that specific season first, else a whole-series request.
// Seasons with no covering request are omitted.
func (r *Resolver) SeasonStatuses(ctx context.Context, catalogID string, seasons []int) (map[int]string, error) {
	requests, err := r.requests.ListByCatalogID(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("season statuses for %s: %w", catalogID, err)
	}
	bySeason := make(map[int]store.Status, len(requests))
	var whole *store.Request
	for _, req := range requests {
		if req.SpecificSeason == nil {
			if whole == nil {
				whole = req
			}
			continue
		}
		if _, seen := bySeason[*req.SpecificSeason]; !seen {
			bySeason[*req.SpecificSeason] = req.Status
		}
	}
	out := make(map[int]string, len(seasons))
	for _, n := range seasons {
		if status, ok := bySeason[n]; ok {
			out[n] = status.Upper()
			continue
		}
		if whole != nil {
			out[n] = whole.Status.Upper()
		}
	}
	return out, nil
}

func (r *Resolver) lookupInventory(ctx context.Context, catalogID string) (string, bool) {
	if r.inventory == nil || catalogID == "" {
		return "", false
	}
	items, err := r.inventory.FindByProviderID(ctx, CatalogProvider, catalogID)
	if err != nil {
		logging.WarnWithContext(r.logger, "emby lookup failed; treating title as not in library", "inventory_lookup_failed",
			logging.String(logging.FieldCatalogID, catalogID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check emby.url and emby.api_key"),
			logging.String(logging.FieldImpact, "status falls back to request state"),
		)
		return "", false
	}
	if len(items) == 0 {
		return "", false
	}
	return items[0].ID, true
}

func (r *Resolver) lookupRequest(ctx context.Context, item Item, catalogID string) (*store.Request, error) {
	if item.MatchSeason {
		return r.requests.FindByKey(ctx, store.Key{TMDBID: catalogID, Season: item.Season})
	}
	return r.requests.FirstByCatalogID(ctx, catalogID)
}
