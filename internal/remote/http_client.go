package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to the backend's record API. All failures are classified:
// transport errors, timeouts, and 5xx responses are transient; 4xx responses
// are rejections carrying the backend's code and reason verbatim.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a record store client for the given backend.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type updateBody struct {
	Filter Filter `json:"filter"`
	Patch  Record `json:"patch"`
}

type selectBody struct {
	Rows []Record `json:"rows"`
}

func (c *HTTPClient) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPost, "/api/records/"+table, rec, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Update(ctx context.Context, table string, filter Filter, patch Record) error {
	return c.do(ctx, http.MethodPatch, "/api/records/"+table, updateBody{Filter: filter, Patch: patch}, nil, nil)
}

func (c *HTTPClient) Select(ctx context.Context, table string, filter Filter) ([]Record, error) {
	q := url.Values{}
	for k, v := range filter {
		q.Set(k, fmt.Sprint(v))
	}
	var out selectBody
	if err := c.do(ctx, http.MethodGet, "/api/records/"+table, nil, q, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

// Probe checks backend reachability. Used by the connectivity monitor.
func (c *HTTPClient) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < http.StatusInternalServerError
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return NewRejected(CodeConstraint, "encode request: "+err.Error())
		}
		reader = bytes.NewReader(payload)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return NewTransient("build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewTransient(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return NewTransient(fmt.Sprintf("backend returned %d", resp.StatusCode))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if jsonErr := json.Unmarshal(data, &eb); jsonErr != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(data))
			if eb.Error == "" {
				eb.Error = resp.Status
			}
		}
		if eb.Code == "" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			eb.Code = CodeUnauthorized
		}
		return NewRejected(eb.Code, eb.Error)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// The operation may have succeeded server-side; keep it ambiguous.
			return NewTransient("decode response: " + err.Error())
		}
	}
	return nil
}

var _ RecordStore = (*HTTPClient)(nil)
