package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/enmap-catalog/common"
	"github.com/airbusgeo/enmap-catalog/service/geometry"
)

// Asset is a downloadable artifact of a scene
type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
	// Malformed is true if the descriptor could not be decoded or has no href string
	Malformed bool `json:"-"`
}

// Link returns the href of the asset and whether it is usable (well-formed and not empty)
func (a Asset) Link() (string, bool) {
	if a.Malformed || strings.TrimSpace(a.Href) == "" {
		return "", false
	}
	return a.Href, true
}

// NamedAsset is used to build Assets
type NamedAsset struct {
	Name string
	Asset
}

// Assets maps asset names to assets, keeping the order of declaration
type Assets struct {
	names  []string
	assets map[string]Asset
}

// NewAssets creates Assets in the given order
func NewAssets(assets ...NamedAsset) Assets {
	a := Assets{}
	for _, asset := range assets {
		a.Set(asset.Name, asset.Asset)
	}
	return a
}

// Set adds or replaces the asset. A replaced asset keeps its position
func (a *Assets) Set(name string, asset Asset) {
	if a.assets == nil {
		a.assets = map[string]Asset{}
	}
	if _, ok := a.assets[name]; !ok {
		a.names = append(a.names, name)
	}
	a.assets[name] = asset
}

// Get returns the asset and true if it exists
func (a Assets) Get(name string) (Asset, bool) {
	asset, ok := a.assets[name]
	return asset, ok
}

// Names returns the names of the assets in the order of declaration (never nil)
func (a Assets) Names() []string {
	names := make([]string, len(a.names))
	copy(names, a.names)
	return names
}

// Len returns the number of assets
func (a Assets) Len() int {
	return len(a.names)
}

// UnmarshalJSON implements json.Unmarshaler, keeping the order of the keys.
// Descriptors that cannot be decoded are kept as Malformed assets.
// A null or non-object value gives an empty Assets.
func (a *Assets) UnmarshalJSON(b []byte) error {
	*a = Assets{}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("Assets.UnmarshalJSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("Assets.UnmarshalJSON: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("Assets.UnmarshalJSON: unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("Assets.UnmarshalJSON[%s]: %w", name, err)
		}
		a.Set(name, decodeAsset(raw))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("Assets.UnmarshalJSON: %w", err)
	}
	return nil
}

func decodeAsset(raw json.RawMessage) Asset {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Asset{Malformed: true}
	}
	asset := Asset{}
	if href, ok := fields["href"]; !ok || json.Unmarshal(href, &asset.Href) != nil {
		asset.Malformed = true
	}
	// Optional fields are decoded on a best-effort basis
	if v, ok := fields["type"]; ok {
		json.Unmarshal(v, &asset.Type)
	}
	if v, ok := fields["title"]; ok {
		json.Unmarshal(v, &asset.Title)
	}
	if v, ok := fields["roles"]; ok {
		json.Unmarshal(v, &asset.Roles)
	}
	return asset
}

// MarshalJSON implements json.Marshaler, keeping the order of the keys
func (a Assets) MarshalJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte('{')
	for i, name := range a.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(a.assets[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Scene is a record of the catalog
type Scene struct {
	ID          string                 `json:"id"`
	Collection  string                 `json:"collection,omitempty"`
	Datetime    *time.Time             `json:"datetime"`
	Properties  map[string]interface{} `json:"properties"`
	Assets      Assets                 `json:"assets"`
	BBox        []float64              `json:"bbox,omitempty"`
	GeometryWKT string                 `json:"wkt,omitempty"`
}

// CloudCover returns the cloud cover percentage of the scene, or nil if it is absent or not a number
func (s Scene) CloudCover() *float64 {
	var v float64
	switch cc := s.Properties[common.PropertyCloudCover].(type) {
	case float64:
		v = cc
	case float32:
		v = float64(cc)
	case int:
		v = float64(cc)
	case int64:
		v = float64(cc)
	case json.Number:
		f, err := cc.Float64()
		if err != nil {
			return nil
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(cc), 64)
		if err != nil {
			return nil
		}
		v = f
	default:
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Scenes is the result of a catalog search
type Scenes struct {
	Scenes     []*Scene
	Properties map[string]string
}

// Area is the input of a catalog search
type Area struct {
	Name     string        `json:"name,omitempty"`
	BBox     geometry.BBox `json:"bounds"`
	Datetime string        `json:"datetime"`
	MaxItems int           `json:"max_items"`
}

// Result is the resolution of a scene
type Result struct {
	ID              string   `json:"id"`
	Datetime        *string  `json:"datetime"`
	CloudCover      *float64 `json:"cloud_cover"`
	DataURL         string   `json:"data_url"`
	PreviewURL      string   `json:"preview_url"`
	AvailableAssets []string `json:"available_assets"`
}

// HasAsset returns true if the asset was declared by the scene
func (r Result) HasAsset(name string) bool {
	for _, n := range r.AvailableAssets {
		if n == name {
			return true
		}
	}
	return false
}
