package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
)

// EarthRadiusKm is the mean radius of the Earth
const EarthRadiusKm = 6371.0088

// ErrInvalidBBox is returned when a bounding box cannot be used for a search
var ErrInvalidBBox = errors.New("invalid bounding box")

// BBox is a geographic bounding box: [min_lon, min_lat, max_lon, max_lat] (EPSG:4326)
type BBox [4]float64

// NewBBox checks the values and returns the BBox
// values must be [min_lon, min_lat, max_lon, max_lat]
func NewBBox(values []float64) (BBox, error) {
	if len(values) != 4 {
		return BBox{}, fmt.Errorf("%w: expecting 4 values, got %d", ErrInvalidBBox, len(values))
	}
	b := BBox{values[0], values[1], values[2], values[3]}
	return b, b.Validate()
}

// Validate returns ErrInvalidBBox if the coordinates are out of range or not ordered
func (b BBox) Validate() error {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidBBox, [4]float64(b))
		}
	}
	ext := b.Extent()
	switch {
	case ext.MinX() < -180 || ext.MaxX() > 180:
		return fmt.Errorf("%w: longitude must be in [-180, 180]: %v", ErrInvalidBBox, [4]float64(b))
	case ext.MinY() < -90 || ext.MaxY() > 90:
		return fmt.Errorf("%w: latitude must be in [-90, 90]: %v", ErrInvalidBBox, [4]float64(b))
	case ext.MinX() > ext.MaxX():
		return fmt.Errorf("%w: min_lon > max_lon: %v", ErrInvalidBBox, [4]float64(b))
	case ext.MinY() > ext.MaxY():
		return fmt.Errorf("%w: min_lat > max_lat: %v", ErrInvalidBBox, [4]float64(b))
	}
	return nil
}

// Extent returns the bbox as a geom.Extent
func (b BBox) Extent() *geom.Extent {
	ext := geom.Extent(b)
	return &ext
}

// Polygon returns the closed polygon of the bbox
func (b BBox) Polygon() geom.Polygon {
	return geom.Polygon{{
		{b[0], b[1]},
		{b[2], b[1]},
		{b[2], b[3]},
		{b[0], b[3]},
		{b[0], b[1]},
	}}
}

// WKT returns the bbox as a WKT polygon
func (b BBox) WKT() string {
	return geomwkt.MustEncode(b.Polygon())
}

// Width in degrees
func (b BBox) Width() float64 {
	return b.Extent().XSpan()
}

// Height in degrees
func (b BBox) Height() float64 {
	return b.Extent().YSpan()
}

// Midpoint returns the center of the bbox (lon, lat)
func (b BBox) Midpoint() [2]float64 {
	return [2]float64{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2}
}

// AreaKm2 returns the area of the bbox on the sphere, in square kilometers
func (b BBox) AreaKm2() float64 {
	rad := math.Pi / 180
	return EarthRadiusKm * EarthRadiusKm * math.Abs(b.Width()*rad) *
		math.Abs(math.Sin(b[3]*rad)-math.Sin(b[1]*rad))
}

// GeoJSONToWKT encodes a geojson geometry as WKT. An empty geometry returns an empty string
func GeoJSONToWKT(g *geojson.Geometry) (string, error) {
	if g == nil || g.Geometry == nil {
		return "", nil
	}
	wkt, err := geomwkt.EncodeString(g.Geometry)
	if err != nil {
		return "", fmt.Errorf("GeoJSONToWKT.EncodeString: %w", err)
	}
	return wkt, nil
}
