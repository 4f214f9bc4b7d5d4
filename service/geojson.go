package service

import (
	"encoding/json"
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// NamedGeometry is a geometry and the name found in the properties of its feature
type NamedGeometry struct {
	Name     string
	Geometry geom.Geometry
}

var nameProperties = []string{"granule_id", "name", "id"}

func featureName(properties map[string]interface{}) string {
	for _, key := range nameProperties {
		if name, ok := properties[key].(string); ok && name != "" {
			return name
		}
	}
	return ""
}

// UnmarshalGeometries decodes a geojson geometry, feature or featureCollection into a list of geometries
func UnmarshalGeometries(data []byte) ([]NamedGeometry, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("UnmarshalGeometries: %w", err)
	}
	switch header.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("UnmarshalGeometries.FeatureCollection: %w", err)
		}
		res := make([]NamedGeometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry.Geometry != nil {
				res = append(res, NamedGeometry{Name: featureName(f.Properties), Geometry: f.Geometry.Geometry})
			}
		}
		return res, nil
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("UnmarshalGeometries.Feature: %w", err)
		}
		if f.Geometry.Geometry == nil {
			return nil, nil
		}
		return []NamedGeometry{{Name: featureName(f.Properties), Geometry: f.Geometry.Geometry}}, nil
	default:
		var g geojson.Geometry
		if err := g.UnmarshalJSON(data); err != nil {
			return nil, fmt.Errorf("UnmarshalGeometries: %w", err)
		}
		return []NamedGeometry{{Geometry: g.Geometry}}, nil
	}
}
