package common

// STAC item properties
const (
	PropertyDatetime        = "datetime"
	PropertyCloudCover      = "eo:cloud_cover"
	PropertyPlatform        = "platform"
	PropertyInstruments     = "instruments"
	PropertyProcessingLevel = "processing:level"
)

// STAC asset names
const (
	AssetData      = "data"
	AssetVNIR      = "VNIR"
	AssetSWIR      = "SWIR"
	AssetProduct   = "product"
	AssetQLVNIRCOG = "ql_VNIR_COG"
	AssetQLSWIRCOG = "ql_SWIR_COG"
	AssetThumbnail = "thumbnail"
	AssetVisual    = "visual"
	AssetPreview   = "preview"
	AssetQuicklook = "quicklook"
)

// EnMAP catalog defaults
const (
	DefaultSTACURL    = "https://geoservice.dlr.de/eoc/ogc/stac/v1/"
	DefaultCollection = "ENMAP_HSI_L2A"
	DefaultDatetime   = "2024-01-01/2026-01-05"
	DefaultMaxItems   = 100
)
