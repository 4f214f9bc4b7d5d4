package bounds

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/airbusgeo/enmap-catalog/service"
	"github.com/airbusgeo/enmap-catalog/service/geometry"
	"github.com/go-spatial/geom"
)

// Header of the bounds CSV files
var Header = []string{"granule_id", "north_lat", "south_lat", "west_lon", "east_lon"}

// Bounds is a named geographic extent
type Bounds struct {
	GranuleID string  `json:"granule_id"`
	North     float64 `json:"north_lat"`
	South     float64 `json:"south_lat"`
	West      float64 `json:"west_lon"`
	East      float64 `json:"east_lon"`
}

// Info describes the extent of Bounds
type Info struct {
	GranuleID string        `json:"granule_id"`
	BBox      geometry.BBox `json:"bbox"`
	Width     float64       `json:"width_deg"`
	Height    float64       `json:"height_deg"`
	AreaKm2   float64       `json:"area_km2"`
	Midpoint  [2]float64    `json:"midpoint"`
}

// FromBBox creates Bounds from [west, south, east, north]
func FromBBox(granuleID string, bbox geometry.BBox) Bounds {
	return Bounds{GranuleID: granuleID, West: bbox[0], South: bbox[1], East: bbox[2], North: bbox[3]}
}

// BBox returns [west, south, east, north]
func (b Bounds) BBox() geometry.BBox {
	return geometry.BBox{b.West, b.South, b.East, b.North}
}

// Validate returns an error if the extent is not valid
func (b Bounds) Validate() error {
	return b.BBox().Validate()
}

// Info returns the size and the center of the bounds
func (b Bounds) Info() Info {
	bbox := b.BBox()
	return Info{
		GranuleID: b.GranuleID,
		BBox:      bbox,
		Width:     bbox.Width(),
		Height:    bbox.Height(),
		AreaKm2:   bbox.AreaKm2(),
		Midpoint:  bbox.Midpoint(),
	}
}

// Read parses a bounds CSV. Columns are identified by the header (order does not matter, unknown columns are ignored).
// An empty granule_id is replaced by "bounds_<n>"
func Read(r io.Reader) ([]Bounds, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("bounds.Read: empty file")
		}
		return nil, fmt.Errorf("bounds.Read: %w", err)
	}
	columns := map[string]int{}
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, h := range Header {
		if _, ok := columns[h]; !ok {
			return nil, fmt.Errorf("bounds.Read: missing column %s", h)
		}
	}

	var res []Bounds
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bounds.Read: %w", err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		b, err := parseRecord(record, columns)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("bounds.Read: line %d: %w", line, err)
		}
		if b.GranuleID == "" {
			b.GranuleID = fmt.Sprintf("bounds_%d", len(res)+1)
		}
		res = append(res, b)
	}
	return res, nil
}

func parseRecord(record []string, columns map[string]int) (Bounds, error) {
	field := func(name string) (string, error) {
		i := columns[name]
		if i >= len(record) {
			return "", fmt.Errorf("missing value for %s", name)
		}
		return strings.TrimSpace(record[i]), nil
	}
	float := func(name string) (float64, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return f, nil
	}

	var b Bounds
	var err error
	if b.GranuleID, err = field("granule_id"); err != nil {
		return b, err
	}
	if b.North, err = float("north_lat"); err != nil {
		return b, err
	}
	if b.South, err = float("south_lat"); err != nil {
		return b, err
	}
	if b.West, err = float("west_lon"); err != nil {
		return b, err
	}
	if b.East, err = float("east_lon"); err != nil {
		return b, err
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

// ReadGeoJSON returns the extents of the features of a geojson geometry, feature or featureCollection.
// Features are named after their granule_id, name or id property (or "bounds_<n>")
func ReadGeoJSON(data []byte) ([]Bounds, error) {
	geometries, err := service.UnmarshalGeometries(data)
	if err != nil {
		return nil, fmt.Errorf("bounds.ReadGeoJSON.%w", err)
	}
	res := make([]Bounds, 0, len(geometries))
	for i, g := range geometries {
		ext, err := geom.NewExtentFromGeometry(g.Geometry)
		if err != nil {
			return nil, fmt.Errorf("bounds.ReadGeoJSON: feature %d: %w", i, err)
		}
		b := FromBBox(g.Name, geometry.BBox(*ext))
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bounds.ReadGeoJSON: feature %d: %w", i, err)
		}
		if b.GranuleID == "" {
			b.GranuleID = fmt.Sprintf("bounds_%d", len(res)+1)
		}
		res = append(res, b)
	}
	return res, nil
}

// Write writes the bounds as CSV, with Header
func Write(w io.Writer, bounds []Bounds) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("bounds.Write: %w", err)
	}
	for _, b := range bounds {
		if err := writer.Write([]string{
			b.GranuleID,
			formatFloat(b.North),
			formatFloat(b.South),
			formatFloat(b.West),
			formatFloat(b.East),
		}); err != nil {
			return fmt.Errorf("bounds.Write: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("bounds.Write: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
