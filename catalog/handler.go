package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/airbusgeo/enmap-catalog/bounds"
	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/interface/catalog"
	"github.com/airbusgeo/enmap-catalog/service/geometry"
	"github.com/airbusgeo/enmap-catalog/service/log"
	"github.com/gorilla/mux"
)

//go:embed web/index.html
var indexHTML []byte

const csvFileField = "file"

// maxRequestSize limits the size of the bodies of the requests
const maxRequestSize = 10 << 20

func (c *Catalog) AddHandler(r *mux.Router) {
	r.HandleFunc("/", c.IndexHandler).Methods("GET")
	r.HandleFunc("/api/query-enmap", c.QueryHandler).Methods("POST")
	r.HandleFunc("/api/preview", c.PreviewHandler).Methods("GET")
	r.HandleFunc("/api/status", c.StatusHandler).Methods("GET")
	r.HandleFunc("/api/bounds/parse", c.ParseBoundsHandler).Methods("POST")
	r.HandleFunc("/api/bounds/export", c.ExportBoundsHandler).Methods("POST")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// IndexHandler serves the bounds viewer
func (c *Catalog) IndexHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

type queryRequest struct {
	Bounds   []float64 `json:"bounds"`
	Datetime string    `json:"datetime"`
	MaxItems int       `json:"max_items"`
}

type queryResponse struct {
	Success bool              `json:"success"`
	Count   int               `json:"count"`
	Items   []entities.Result `json:"items"`
}

// QueryHandler searches the scenes of the bounds and returns their download and preview urls
func (c *Catalog) QueryHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var query queryRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxRequestSize)).Decode(&query); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: %v", err)
		return
	}
	bbox, err := geometry.NewBBox(query.Bounds)
	if err != nil {
		log.Logger(ctx).Sugar().Debugf("catalog.QueryHandler: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid bounds format")
		return
	}

	results, err := c.Query(ctx, &entities.Area{BBox: bbox, Datetime: query.Datetime, MaxItems: query.MaxItems})
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.QueryHandler: %v", err)
		if errors.Is(err, catalog.ErrInvalidSearch) {
			writeError(w, http.StatusBadRequest, "%v", err)
		} else {
			writeError(w, http.StatusInternalServerError, "%v", err)
		}
		return
	}

	if err := writeJSON(w, http.StatusOK, queryResponse{Success: true, Count: len(results), Items: results}); err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.QueryHandler: %v", err)
	}
}

// StatusHandler returns the configuration of the server
func (c *Catalog) StatusHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"stac_api":   c.STACURL,
		"collection": c.Collection,
	})
}

// readCSV reads the file from the field "file" of a multipart form or from the body
func readCSV(req *http.Request) ([]byte, error) {
	if mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type")); mediaType != "multipart/form-data" {
		return io.ReadAll(io.LimitReader(req.Body, maxRequestSize))
	}
	if err := req.ParseMultipartForm(maxRequestSize); err != nil {
		return nil, err
	}
	file, _, err := req.FormFile(csvFileField)
	if err != nil {
		return nil, fmt.Errorf("missing required field: '%s' (text/csv): %w", csvFileField, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isGeoJSON(req *http.Request, data []byte) bool {
	switch mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type")); mediaType {
	case "application/json", "application/geo+json":
		return true
	case "text/csv":
		return false
	}
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}

// ParseBoundsHandler parses a bounds CSV (or a geojson) and returns the extent of each bounds
func (c *Catalog) ParseBoundsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	data, err := readCSV(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	var bs []bounds.Bounds
	if isGeoJSON(req, data) {
		bs, err = bounds.ReadGeoJSON(data)
	} else {
		bs, err = bounds.Read(bytes.NewReader(data))
	}
	if err != nil {
		log.Logger(ctx).Sugar().Debugf("catalog.ParseBoundsHandler: %v", err)
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	infos := make([]bounds.Info, len(bs))
	for i, b := range bs {
		infos[i] = b.Info()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(infos), "bounds": infos})
}

// ExportBoundsHandler converts a json list of bounds into a CSV file
func (c *Catalog) ExportBoundsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var export struct {
		Bounds []bounds.Bounds `json:"bounds"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, maxRequestSize)).Decode(&export); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: %v", err)
		return
	}
	for i, b := range export.Bounds {
		if err := b.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "bounds %d (%s): %v", i, b.GranuleID, err)
			return
		}
	}

	var buf bytes.Buffer
	if err := bounds.Write(&buf, export.Bounds); err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.ExportBoundsHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="bounds.csv"`)
	w.Write(buf.Bytes())
}
