package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/common"
	"github.com/airbusgeo/enmap-catalog/interface/catalog"
	"github.com/airbusgeo/enmap-catalog/service"
	"github.com/airbusgeo/enmap-catalog/service/log"
)

// DefaultPreviewTimeout is the timeout to fetch a preview image
const DefaultPreviewTimeout = 10 * time.Second

// DefaultPreviewAllowedHosts are the domains the preview proxy may fetch from (subdomains included)
var DefaultPreviewAllowedHosts = []string{"dlr.de"}

// Catalog is the main class of this package
type Catalog struct {
	Provider catalog.ScenesProvider
	Resolver *Resolver
	// PreviewClient is used by the preview proxy
	PreviewClient *http.Client
	// PreviewAllowedHosts restricts the hosts of the preview proxy (and their subdomains). Empty allows any host.
	PreviewAllowedHosts []string
	// Reported by the status endpoint
	STACURL    string
	Collection string
}

// NewCatalog creates a catalog with the default resolver and preview client
func NewCatalog(provider catalog.ScenesProvider, stacURL, collection string) *Catalog {
	return &Catalog{
		Provider:            provider,
		Resolver:            NewResolver(),
		PreviewClient:       service.NewHTTPClient(DefaultPreviewTimeout, false),
		PreviewAllowedHosts: DefaultPreviewAllowedHosts,
		STACURL:             stacURL,
		Collection:          collection,
	}
}

// Query searches the scenes of the area and resolves their urls
func (c *Catalog) Query(ctx context.Context, area *entities.Area) ([]entities.Result, error) {
	if area.Datetime == "" {
		area.Datetime = common.DefaultDatetime
	}
	if area.MaxItems <= 0 {
		area.MaxItems = common.DefaultMaxItems
	}
	if err := area.BBox.Validate(); err != nil {
		return nil, fmt.Errorf("Query: %w: %w", catalog.ErrInvalidSearch, err)
	}

	start := time.Now()
	scenes, err := c.Provider.SearchScenes(ctx, area)
	if err != nil {
		return nil, fmt.Errorf("Query.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%d scenes found in %v (bbox: %v, datetime: %s)", len(scenes.Scenes), time.Since(start), area.BBox, area.Datetime)

	resolver := c.Resolver
	if resolver == nil {
		resolver = NewResolver()
	}
	return resolver.ResolveScenes(ctx, scenes.Scenes), nil
}
