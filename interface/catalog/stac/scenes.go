package stac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom/encoding/geojson"

	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/common"
	"github.com/airbusgeo/enmap-catalog/interface/catalog"
	"github.com/airbusgeo/enmap-catalog/service"
	"github.com/airbusgeo/enmap-catalog/service/geometry"
	"github.com/airbusgeo/enmap-catalog/service/log"
)

const (
	// PageLimit is the default number of items per page
	PageLimit = 100
	// NbRetries is the number of retries of a page request
	NbRetries = 3
)

// ErrInvalidSearch is returned when the search parameters are not valid
var ErrInvalidSearch = catalog.ErrInvalidSearch

type SearchData struct {
	Features       []Feature `json:"features"`
	Links          []Link    `json:"links"`
	NumberMatched  int       `json:"numberMatched"`
	NumberReturned int       `json:"numberReturned"`
}

type Link struct {
	Body   map[string]interface{} `json:"body"`
	Href   string                 `json:"href"`
	Method string                 `json:"method"`
	Rel    string                 `json:"rel"`
}

type Feature struct {
	Id          string                 `json:"id"`
	Collection  string                 `json:"collection"`
	BoundingBox []float64              `json:"bbox"`
	Properties  map[string]interface{} `json:"properties"`
	Geometry    *geojson.Geometry      `json:"geometry"`
	Assets      entities.Assets        `json:"assets"`
}

type search struct {
	Bbox        []float64 `json:"bbox,omitempty"`
	Datetime    string    `json:"datetime,omitempty"`
	Collections []string  `json:"collections"`
	Limit       int       `json:"limit,omitempty"`
}

// Provider searches scenes in a STAC API (item search)
type Provider struct {
	URL        string
	Collection string
	// Limit is the number of items per page (default: PageLimit)
	Limit  int
	Client *http.Client
}

// NewProvider returns a provider of the default collection
func NewProvider(url string) *Provider {
	return &Provider{URL: url, Collection: common.DefaultCollection, Limit: PageLimit}
}

// SearchScenes returns at most area.MaxItems scenes intersecting area.BBox during area.Datetime
func (p *Provider) SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	if err := area.BBox.Validate(); err != nil {
		return entities.Scenes{}, fmt.Errorf("SearchScenes(STAC): %w: %v", ErrInvalidSearch, err)
	}
	datetime := area.Datetime
	if datetime == "" {
		datetime = common.DefaultDatetime
	}
	interval, err := ParseInterval(datetime)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("SearchScenes(STAC).%w", err)
	}
	maxItems := area.MaxItems
	if maxItems <= 0 {
		maxItems = common.DefaultMaxItems
	}
	collection := p.Collection
	if collection == "" {
		collection = common.DefaultCollection
	}

	req := search{
		Bbox:        area.BBox[:],
		Datetime:    interval,
		Collections: []string{collection},
	}
	features, err := p.query(ctx, req, maxItems)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("SearchScenes(STAC).%w", err)
	}

	scenes := make([]*entities.Scene, len(features))
	for i, feature := range features {
		scenes[i] = toScene(ctx, feature)
	}

	return entities.Scenes{
		Scenes: scenes,
		Properties: map[string]string{
			"collection": collection,
			"datetime":   interval,
			"bbox":       area.BBox.WKT(),
		},
	}, nil
}

func toScene(ctx context.Context, feature Feature) *entities.Scene {
	scene := &entities.Scene{
		ID:         feature.Id,
		Collection: feature.Collection,
		Properties: feature.Properties,
		Assets:     feature.Assets,
		BBox:       feature.BoundingBox,
	}
	if scene.Properties == nil {
		scene.Properties = map[string]interface{}{}
	}
	if dt, ok := scene.Properties[common.PropertyDatetime].(string); ok && dt != "" {
		if date, err := parseDatetime(dt); err == nil {
			scene.Datetime = &date
		} else {
			log.Logger(ctx).Sugar().Debugf("STAC: %s: %v", feature.Id, err)
		}
	}
	if feature.Geometry != nil && feature.Geometry.Geometry != nil {
		if w, err := geometry.GeoJSONToWKT(feature.Geometry); err == nil {
			scene.GeometryWKT = w
		} else {
			log.Logger(ctx).Sugar().Debugf("STAC: %s: %v", feature.Id, err)
		}
	}
	return scene
}

func parseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return dateparse.ParseIn(s, time.UTC)
}

// query fetches the pages, following the "next" links, until maxItems features are retrieved
func (p *Provider) query(ctx context.Context, searchReq search, maxItems int) ([]Feature, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = PageLimit
	}
	if limit > maxItems {
		limit = maxItems
	}
	searchReq.Limit = limit

	url := strings.TrimSuffix(p.URL, "/") + "/search"
	method := http.MethodPost
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, fmt.Errorf("query.json.encode: %w", err)
	}

	features := []Feature{}
	for len(features) < maxItems {
		log.Logger(ctx).Sugar().Debugf("STAC search %s %s (%d/%d items)", method, url, len(features), maxItems)
		req, err := service.NewJSONRequest(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("query.%w", err)
		}
		respBody, err := service.GetBodyRetryReq(p.Client, req, NbRetries)
		if err != nil {
			return nil, fmt.Errorf("query.GetBodyRetryReq: %w", err)
		}

		page := SearchData{}
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("query.search parse body (%s): %w", url, err)
		}
		if n := maxItems - len(features); len(page.Features) > n {
			page.Features = page.Features[:n]
		}
		features = append(features, page.Features...)

		next := nextLink(page.Links)
		if next == nil || len(page.Features) == 0 {
			break
		}
		url, method, body = next.Href, strings.ToUpper(next.Method), nil
		if method == "" {
			method = http.MethodGet
		}
		if method == http.MethodPost {
			if next.Body != nil {
				if body, err = json.Marshal(next.Body); err != nil {
					return nil, fmt.Errorf("query.json.encode: %w", err)
				}
			} else if body, err = json.Marshal(searchReq); err != nil {
				return nil, fmt.Errorf("query.json.encode: %w", err)
			}
		}
	}
	return features, nil
}

func nextLink(links []Link) *Link {
	for i := range links {
		if links[i].Rel == "next" && links[i].Href != "" {
			return &links[i]
		}
	}
	return nil
}

// ParseInterval converts "start/end" into a STAC RFC3339 interval.
// Dates can be given in any format supported by dateparse. Open bounds are given with ".." or an empty string.
// An end date without time is the end of the day.
func ParseInterval(interval string) (string, error) {
	parts := strings.Split(strings.TrimSpace(interval), "/")
	if len(parts) != 2 {
		return "", fmt.Errorf("ParseInterval: %w: expecting start/end, got %q", ErrInvalidSearch, interval)
	}
	var bounds [2]string
	var times [2]time.Time
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == ".." {
			bounds[i] = ".."
			continue
		}
		t, err := parseDatetime(part)
		if err != nil {
			return "", fmt.Errorf("ParseInterval: %w: %q: %v", ErrInvalidSearch, part, err)
		}
		t = t.UTC()
		if i == 1 && !strings.Contains(part, ":") && t.Equal(t.Truncate(24*time.Hour)) {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		times[i] = t
		bounds[i] = t.Format("2006-01-02T15:04:05.000Z")
	}
	if bounds[0] == ".." && bounds[1] == ".." {
		return "", fmt.Errorf("ParseInterval: %w: both bounds are open", ErrInvalidSearch)
	}
	if bounds[0] != ".." && bounds[1] != ".." && times[1].Before(times[0]) {
		return "", fmt.Errorf("ParseInterval: %w: end %s is before start %s", ErrInvalidSearch, bounds[1], bounds[0])
	}
	return bounds[0] + "/" + bounds[1], nil
}
