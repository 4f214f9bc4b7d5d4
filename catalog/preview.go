package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/airbusgeo/enmap-catalog/service/log"
)

// MaxPreviewSize is the maximum size of a proxied preview image
const MaxPreviewSize = 32 << 20

var errPreviewTooLarge = errors.New("preview too large")

// PreviewContentType returns the content-type to serve a preview with.
// DLR quicklooks are JPEG but may be served as octet-stream or ".dat" files.
func PreviewContentType(upstream string) string {
	if upstream == "" || strings.Contains(upstream, "octet-stream") || strings.Contains(strings.ToLower(upstream), "dat") {
		return "image/jpeg"
	}
	return upstream
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// hostAllowed returns true if host is one of allowed or a subdomain of one of them, or if allowed is empty
func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, a := range allowed {
		a = strings.ToLower(strings.Trim(a, ". "))
		if a != "" && (host == a || strings.HasSuffix(host, "."+a)) {
			return true
		}
	}
	return false
}

// fetchPreview returns the body and the content-type of the preview, or an error with the http status to return
func (c *Catalog) fetchPreview(req *http.Request, previewURL string) ([]byte, string, int, error) {
	u, err := url.Parse(previewURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", http.StatusBadRequest, fmt.Errorf("Invalid URL: %s", previewURL)
	}
	if !hostAllowed(u.Hostname(), c.PreviewAllowedHosts) {
		return nil, "", http.StatusForbidden, fmt.Errorf("Host not allowed: %s", u.Hostname())
	}

	r, err := http.NewRequestWithContext(req.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", http.StatusBadRequest, fmt.Errorf("Invalid URL: %v", err)
	}
	client := c.PreviewClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(r)
	if err != nil {
		if isTimeout(err) {
			return nil, "", http.StatusGatewayTimeout, fmt.Errorf("Request timeout")
		}
		return nil, "", http.StatusInternalServerError, fmt.Errorf("Proxy error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", resp.StatusCode, fmt.Errorf("Failed to fetch preview: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPreviewSize+1))
	if err == nil && len(body) > MaxPreviewSize {
		err = errPreviewTooLarge
	}
	if err != nil {
		if isTimeout(err) {
			return nil, "", http.StatusGatewayTimeout, fmt.Errorf("Request timeout")
		}
		return nil, "", http.StatusInternalServerError, fmt.Errorf("Proxy error: %v", err)
	}
	return body, PreviewContentType(resp.Header.Get("Content-Type")), http.StatusOK, nil
}

// PreviewHandler fetches the image given by the url parameter and serves it inline, with permissive CORS headers
func (c *Catalog) PreviewHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	previewURL := req.URL.Query().Get("url")
	if previewURL == "" {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return
	}

	body, contentType, status, err := c.fetchPreview(req, previewURL)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.PreviewHandler(%s): %v", previewURL, err)
		writeError(w, status, "%v", err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cache-Control", "max-age=86400")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
