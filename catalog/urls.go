package catalog

import (
	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/common"
)

// Default url templates (see common.FormatBrackets)
// {BASE} is replaced by URLTemplates.BaseURL and {COLLECTION} by URLTemplates.Collection
const (
	DefaultDownloadBaseURL    = "https://download.geoservice.dlr.de"
	DefaultDataURLTemplate    = "{BASE}/ENMAP/files/L2A/{YEAR}/{MONTH}/{DAY}/{DATA_TAKE}/{COLLECTION_VERSION}/{SCENE}-QL_VNIR_COG.zip"
	DefaultPreviewURLTemplate = "{BASE}/ENMAP/files/L2A/{YEAR}/{MONTH}/{DAY}/{DATA_TAKE}/{COLLECTION_VERSION}/{SCENE}-QL_VNIR_COG_thumbnail.jpg"
	DefaultFallbackDataURL    = "https://geoservice.dlr.de/eoc/oseo/download?parentIdentifier={COLLECTION}&uid={SCENE}"
	DefaultFallbackPreviewURL = "https://geoservice.dlr.de/eoc/oseo/quicklook?parentIdentifier={COLLECTION}&uid={SCENE}"
)

// Candidate asset names, by priority
var (
	DataAssetCandidates = []string{
		common.AssetData,
		common.AssetVNIR,
		common.AssetSWIR,
		common.AssetProduct,
		common.AssetQLVNIRCOG,
		common.AssetQLSWIRCOG,
	}
	PreviewAssetCandidates = []string{
		common.AssetThumbnail,
		common.AssetVisual,
		common.AssetPreview,
		common.AssetQuicklook,
	}
)

// URLTemplates defines how the download and preview urls of a scene are built
type URLTemplates struct {
	BaseURL    string
	Collection string
	Data       string
	Preview    string
	// Used when the identifier of the scene cannot be parsed
	FallbackData    string
	FallbackPreview string
}

// DefaultURLTemplates returns the templates of the DLR geoservice
func DefaultURLTemplates() URLTemplates {
	return URLTemplates{
		BaseURL:         DefaultDownloadBaseURL,
		Collection:      common.DefaultCollection,
		Data:            DefaultDataURLTemplate,
		Preview:         DefaultPreviewURLTemplate,
		FallbackData:    DefaultFallbackDataURL,
		FallbackPreview: DefaultFallbackPreviewURL,
	}
}

func (t URLTemplates) constants() map[string]string {
	return map[string]string{
		"BASE":       t.BaseURL,
		"COLLECTION": t.Collection,
	}
}

// Canonical builds the direct download and thumbnail urls from the fields of the identifier (see common.Info)
func (t URLTemplates) Canonical(info map[string]string) (string, string) {
	return common.FormatBrackets(t.Data, info, t.constants()),
		common.FormatBrackets(t.Preview, info, t.constants())
}

// Fallback builds the generic catalog lookup urls, with the scene identifier verbatim
func (t URLTemplates) Fallback(sceneID string) (string, string) {
	info := map[string]string{"SCENE": sceneID}
	return common.FormatBrackets(t.FallbackData, info, t.constants()),
		common.FormatBrackets(t.FallbackPreview, info, t.constants())
}

// OverrideFromAssets returns the link of the first candidate asset that exists and has a usable link.
// Otherwise, it returns current.
func OverrideFromAssets(assets entities.Assets, candidates []string, current string) string {
	for _, name := range candidates {
		asset, ok := assets.Get(name)
		if !ok {
			continue
		}
		if link, ok := asset.Link(); ok {
			return link
		}
	}
	return current
}
