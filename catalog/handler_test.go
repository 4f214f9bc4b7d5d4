package catalog_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/airbusgeo/enmap-catalog/catalog"
	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/common"
	icatalog "github.com/airbusgeo/enmap-catalog/interface/catalog"
	"github.com/airbusgeo/enmap-catalog/service"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const sceneID = "ENMAP01-____L2A-DT0000173759_20260103T101500Z_003_V010505_20260104T050000Z"

var _ = Describe("Handlers", func() {
	var (
		provider *MockProvider
		c        *catalog.Catalog
		router   http.Handler
	)

	do := func(method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, bytes.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	decode := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var v map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &v)).To(Succeed())
		return v
	}

	BeforeEach(func() {
		dt := time.Date(2026, 1, 3, 10, 15, 0, 0, time.UTC)
		provider = &MockProvider{Scenes: []*entities.Scene{
			{ID: sceneID, Datetime: &dt, Properties: map[string]interface{}{"eo:cloud_cover": 4.5}},
			{ID: "not-a-valid-id", Properties: map[string]interface{}{"eo:cloud_cover": "N/A"},
				Assets: entities.NewAssets(
					entities.NamedAsset{Name: "VNIR", Asset: entities.Asset{Href: "https://dl/vnir.zip"}},
					entities.NamedAsset{Name: "thumbnail", Asset: entities.Asset{Href: ""}},
				)},
		}}
		c = catalog.NewCatalog(provider, common.DefaultSTACURL, common.DefaultCollection)
		r := mux.NewRouter()
		c.AddHandler(r)
		router = catalog.RequestLogger(r)
	})

	Describe("query-enmap", func() {
		It("should resolve the scenes", func() {
			rec := do("POST", "/api/query-enmap", []byte(`{"bounds":[11.23,48.05,11.33,48.11],"datetime":"2025-01-01/2025-12-31","max_items":10}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var resp struct {
				Success bool
				Count   int
				Items   []entities.Result
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Success).To(BeTrue())
			Expect(resp.Count).To(Equal(2))
			Expect(resp.Items).To(HaveLen(2))

			Expect(resp.Items[0].ID).To(Equal(sceneID))
			Expect(*resp.Items[0].Datetime).To(Equal("2026-01-03T10:15:00Z"))
			Expect(*resp.Items[0].CloudCover).To(Equal(4.5))
			Expect(resp.Items[0].DataURL).To(HaveSuffix("/2026/01/03/DT0000173759/003/" + sceneID + "-QL_VNIR_COG.zip"))
			Expect(resp.Items[0].AvailableAssets).To(BeEmpty())

			Expect(resp.Items[1].Datetime).To(BeNil())
			Expect(resp.Items[1].CloudCover).To(BeNil())
			Expect(resp.Items[1].DataURL).To(Equal("https://dl/vnir.zip"))
			Expect(resp.Items[1].PreviewURL).To(Equal("https://geoservice.dlr.de/eoc/oseo/quicklook?parentIdentifier=ENMAP_HSI_L2A&uid=not-a-valid-id"))
			Expect(resp.Items[1].AvailableAssets).To(Equal([]string{"VNIR", "thumbnail"}))

			Expect(provider.Areas).To(HaveLen(1))
			Expect(provider.Areas[0].MaxItems).To(Equal(10))
			Expect(provider.Areas[0].Datetime).To(Equal("2025-01-01/2025-12-31"))
		})

		It("should use the defaults", func() {
			rec := do("POST", "/api/query-enmap", []byte(`{"bounds":[11,48,12,49]}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(provider.Areas[0].MaxItems).To(Equal(common.DefaultMaxItems))
			Expect(provider.Areas[0].Datetime).To(Equal(common.DefaultDatetime))
		})

		It("should return an empty list", func() {
			provider.Scenes = nil
			rec := do("POST", "/api/query-enmap", []byte(`{"bounds":[11,48,12,49]}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"success":true,"count":0,"items":[]}`))
		})

		It("should reject invalid bounds", func() {
			for _, body := range []string{`{}`, `{"bounds":[1,2,3]}`, `{"bounds":[12,48,11,49]}`, `{"bounds":[0,-95,1,0]}`} {
				rec := do("POST", "/api/query-enmap", []byte(body), "application/json")
				Expect(rec.Code).To(Equal(http.StatusBadRequest), body)
				Expect(decode(rec)).To(HaveKeyWithValue("error", "Invalid bounds format"))
			}
			rec := do("POST", "/api/query-enmap", []byte(`not json`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(provider.Areas).To(BeEmpty())
		})

		It("should report catalog errors", func() {
			provider.Err = fmt.Errorf("catalog unreachable")
			rec := do("POST", "/api/query-enmap", []byte(`{"bounds":[11,48,12,49]}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(rec)["error"]).To(ContainSubstring("catalog unreachable"))
		})

		It("should report invalid searches as bad requests", func() {
			provider.Err = fmt.Errorf("ParseInterval: %w: \"yesterday\"", icatalog.ErrInvalidSearch)
			rec := do("POST", "/api/query-enmap", []byte(`{"bounds":[11,48,12,49],"datetime":"yesterday"}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should set a request id", func() {
			rec := do("POST", "/api/query-enmap", []byte(`{"bounds":[11,48,12,49]}`), "application/json")
			_, err := uuid.Parse(rec.Header().Get(catalog.RequestIDHeader))
			Expect(err).NotTo(HaveOccurred())

			id := uuid.New().String()
			req := httptest.NewRequest("GET", "/api/status", nil)
			req.Header.Set(catalog.RequestIDHeader, id)
			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			Expect(rec.Header().Get(catalog.RequestIDHeader)).To(Equal(id))
		})
	})

	Describe("status", func() {
		It("should return the configuration", func() {
			rec := do("GET", "/api/status", nil, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"ok","stac_api":"https://geoservice.dlr.de/eoc/ogc/stac/v1/","collection":"ENMAP_HSI_L2A"}`))
		})
	})

	Describe("index", func() {
		It("should serve the viewer", func() {
			rec := do("GET", "/", nil, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/html"))
			Expect(rec.Body.String()).To(ContainSubstring("/api/query-enmap"))
		})
	})

	Describe("preview", func() {
		var upstream *httptest.Server
		var contentType string
		var status int

		BeforeEach(func() {
			contentType, status = "application/octet-stream", http.StatusOK
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/slow" {
					select {
					case <-time.After(2 * time.Second):
					case <-r.Context().Done():
					}
					return
				}
				w.Header().Set("Content-Type", contentType)
				w.WriteHeader(status)
				w.Write([]byte("JPEGDATA"))
			}))
			c.PreviewAllowedHosts = []string{"127.0.0.1"}
		})
		AfterEach(func() {
			upstream.Close()
		})

		preview := func(u string) *httptest.ResponseRecorder {
			return do("GET", "/api/preview?url="+url.QueryEscape(u), nil, "")
		}

		It("should proxy the image", func() {
			rec := preview(upstream.URL + "/ql.dat")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("JPEGDATA"))
			h := rec.Header()
			Expect(h.Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(h.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(h.Get("Cache-Control")).To(Equal("max-age=86400"))
			Expect(h.Get("Content-Length")).To(Equal("8"))
			Expect(h.Get("Content-Disposition")).To(Equal("inline"))
		})

		It("should keep a valid content-type", func() {
			contentType = "image/png"
			rec := preview(upstream.URL + "/ql.png")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("image/png"))
		})

		It("should propagate the upstream status", func() {
			status = http.StatusNotFound
			rec := preview(upstream.URL + "/missing.jpg")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "Failed to fetch preview: 404"))
		})

		It("should time out", func() {
			c.PreviewClient = service.NewHTTPClient(100*time.Millisecond, false)
			rec := preview(upstream.URL + "/slow")
			Expect(rec.Code).To(Equal(http.StatusGatewayTimeout))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "Request timeout"))
		})

		It("should reject invalid urls", func() {
			Expect(do("GET", "/api/preview", nil, "").Code).To(Equal(http.StatusBadRequest))
			Expect(preview("file:///etc/passwd").Code).To(Equal(http.StatusBadRequest))
		})

		It("should only fetch from the allowed hosts", func() {
			c.PreviewAllowedHosts = catalog.DefaultPreviewAllowedHosts
			rec := preview(upstream.URL + "/ql.jpg")
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "Host not allowed: 127.0.0.1"))

			c.PreviewAllowedHosts = nil
			Expect(preview(upstream.URL + "/ql.jpg").Code).To(Equal(http.StatusOK))
		})

		It("should report unreachable hosts", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			addr := srv.URL
			srv.Close()
			Expect(preview(addr + "/ql.jpg").Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("bounds", func() {
		const csv = "granule_id,north_lat,south_lat,west_lon,east_lon\nmunich,48.11,48.05,11.23,11.33\n"

		It("should parse a csv body", func() {
			rec := do("POST", "/api/bounds/parse", []byte(csv), "text/csv")
			Expect(rec.Code).To(Equal(http.StatusOK))
			resp := decode(rec)
			Expect(resp["count"]).To(BeNumerically("==", 1))
			b := resp["bounds"].([]interface{})[0].(map[string]interface{})
			Expect(b["granule_id"]).To(Equal("munich"))
			Expect(b["bbox"]).To(Equal([]interface{}{11.23, 48.05, 11.33, 48.11}))
			Expect(b["width_deg"]).To(BeNumerically("~", 0.1, 1e-9))
			Expect(b["area_km2"]).To(BeNumerically(">", 0))
		})

		It("should parse a csv file", func() {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			fw, err := mw.CreateFormFile("file", "bounds.csv")
			Expect(err).NotTo(HaveOccurred())
			fw.Write([]byte(csv))
			Expect(mw.Close()).To(Succeed())

			rec := do("POST", "/api/bounds/parse", body.Bytes(), mw.FormDataContentType())
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["count"]).To(BeNumerically("==", 1))
		})

		It("should parse a geojson", func() {
			fc := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"munich"},` +
				`"geometry":{"type":"Polygon","coordinates":[[[11.23,48.05],[11.33,48.05],[11.33,48.11],[11.23,48.11],[11.23,48.05]]]}}]}`
			rec := do("POST", "/api/bounds/parse", []byte(fc), "application/geo+json")
			Expect(rec.Code).To(Equal(http.StatusOK))
			b := decode(rec)["bounds"].([]interface{})[0].(map[string]interface{})
			Expect(b["granule_id"]).To(Equal("munich"))
			Expect(b["bbox"]).To(Equal([]interface{}{11.23, 48.05, 11.33, 48.11}))
		})

		It("should reject an invalid csv", func() {
			rec := do("POST", "/api/bounds/parse", []byte("granule_id,north_lat\n"), "text/csv")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)["error"]).To(ContainSubstring("missing column"))
		})

		It("should export a csv", func() {
			rec := do("POST", "/api/bounds/export", []byte(`{"bounds":[{"granule_id":"munich","north_lat":48.11,"south_lat":48.05,"west_lon":11.23,"east_lon":11.33}]}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("text/csv"))
			Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring("bounds.csv"))
			Expect(rec.Body.String()).To(Equal(csv))
		})

		It("should reject invalid bounds", func() {
			rec := do("POST", "/api/bounds/export", []byte(`{"bounds":[{"granule_id":"x","north_lat":1,"south_lat":2,"west_lon":0,"east_lon":1}]}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(strings.Contains(decode(rec)["error"].(string), "x")).To(BeTrue())
		})
	})
})
