package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tablemap/internal/record"
)

// ── HTTP Source ─────────────────────────────────────────────
// Fetches records from a JSON API endpoint.

type httpSource struct{}

func init() { Register(&httpSource{}) }

func (s *httpSource) Spec() Spec {
	return Spec{
		Type:  "http",
		Label: "HTTP API",
		ConfigFields: []ConfigField{
			{Key: "url", Label: "URL", Required: true, Help: "Full URL to fetch (e.g., https://api.example.com/items)"},
			{Key: "method", Label: "Method", Required: false, Default: "GET"},
			{Key: "headers", Label: "Headers", Required: false, Help: "JSON object of headers (e.g., {\"Authorization\": \"Bearer xxx\"})"},
			{Key: "query", Label: "Query Params", Required: false, Help: "JSON object appended to the URL query string"},
			{Key: "body", Label: "Body", Required: false, Help: "Request body (for POST)"},
			{Key: "dataPath", Label: "Data Path", Required: false, Help: "Dot-separated path to the array in the response (e.g., 'data.items')"},
		},
	}
}

func (s *httpSource) Read(ctx context.Context, cfg Config) (<-chan *record.Record, <-chan error) {
	out := make(chan *record.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		recs, err := fetchHTTP(ctx, cfg)
		if err != nil {
			errCh <- err
			return
		}
		for _, rec := range recs {
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

func fetchHTTP(ctx context.Context, cfg Config) ([]*record.Record, error) {
	endpoint, _ := cfg["url"].(string)
	if endpoint == "" {
		return nil, fmt.Errorf("url is required")
	}

	method, _ := cfg["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	if queryStr, ok := cfg["query"].(string); ok && queryStr != "" {
		var params map[string]string
		if err := json.Unmarshal([]byte(queryStr), &params); err == nil && len(params) > 0 {
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, fmt.Errorf("parse url: %w", err)
			}
			q := u.Query()
			for k, v := range params {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			endpoint = u.String()
		}
	}

	var bodyReader io.Reader
	if body, ok := cfg["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if headersStr, ok := cfg["headers"].(string); ok && headersStr != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(headersStr), &headers); err == nil {
			for k, v := range headers {
				req.Header.Set(k, v)
			}
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	dataPath, _ := cfg["dataPath"].(string)
	return parseRecords(data, dataPath)
}

// parseRecords extracts records from a JSON payload. With a dataPath it
// navigates to the nested array before parsing; the response's field
// order is preserved in each record.
func parseRecords(data []byte, dataPath string) ([]*record.Record, error) {
	raw := string(data)
	if dataPath != "" {
		res := gjson.GetBytes(data, dataPath)
		if !res.Exists() {
			return nil, fmt.Errorf("data path %q not found in response", dataPath)
		}
		raw = res.Raw
	}

	v, err := record.FromJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	switch v.Kind() {
	case record.KindList:
		var recs []*record.Record
		for _, item := range v.List() {
			if item.Kind() == record.KindRecord {
				recs = append(recs, item.Record())
			}
		}
		return recs, nil
	case record.KindRecord:
		return []*record.Record{v.Record()}, nil
	default:
		return nil, fmt.Errorf("expected a json object or array, got %s", v.Kind())
	}
}
