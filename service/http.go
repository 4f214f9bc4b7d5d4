package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airbusgeo/enmap-catalog/service/log"
)

// DefaultClient is used by GetBodyRetryReq when no client is provided
var DefaultClient = &http.Client{Timeout: 2 * time.Minute}

// NewHTTPClient returns a client with the given timeout.
// If insecure, the certificate of the server is not verified
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// NewJSONRequest creates a request with a json body (or no body if body is nil)
func NewJSONRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("NewJSONRequest: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, application/geo+json")
	return req, nil
}

// GetBodyRetryReq executes the request with N retries in case of temporary errors (exponential backoff, starting at 0)
// 4xx status codes (but 429) are not retried.
// The body of the request is replayed using req.GetBody
func GetBodyRetryReq(client *http.Client, req *http.Request, nbRetries int) ([]byte, error) {
	if client == nil {
		client = DefaultClient
	}
	ctx := req.Context()
	var err error
	for i := 0; i < nbRetries+1; i++ {
		if i > 0 {
			log.Logger(ctx).Sugar().Debugf("GetBodyRetryReq: retry %d/%d %s: %v", i, nbRetries, req.URL, err)
			select {
			case <-time.After(((1 << i) - 1) * RetryBackoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("GetBodyRetryReq: %w", ctx.Err())
			}
			if req.GetBody != nil {
				body, e := req.GetBody()
				if e != nil {
					return nil, fmt.Errorf("GetBodyRetryReq.GetBody: %w", e)
				}
				req.Body = body
			}
		}
		var body []byte
		if body, err = doRequest(client, req); err == nil {
			return body, nil
		}
		if !Temporary(err) {
			return nil, err
		}
	}
	return nil, err
}

// RetryBackoff is the unit of the exponential backoff of GetBodyRetryReq
var RetryBackoff = time.Second

func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, ErrHTTPStatus{URL: req.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
