package api

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

	"github.com/outletpos/syncengine/internal/models"
)

// HTTPClient implements Client over net/http against the wire contract:
//
//	POST   {base}/{kind}            create
//	PUT    {base}/{kind}/{id}       update (X-Force-Update: true overrides)
//	DELETE {base}/{kind}/{id}       delete
//	GET    {base}/{kind}?since=...&outletId=...
//	GET    {base}/health
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client for the API rooted at baseURL. A nil
// httpClient falls back to a default with the given timeout applied.
func NewHTTPClient(baseURL string, httpClient *http.Client, timeout time.Duration) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *HTTPClient) Create(ctx context.Context, kind models.EntityKind, payload json.RawMessage) (json.RawMessage, error) {
	return c.mutate(ctx, http.MethodPost, c.collectionURL(kind), payload, false)
}

func (c *HTTPClient) Update(ctx context.Context, kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
	return c.mutate(ctx, http.MethodPut, c.entityURL(kind, id), payload, force)
}

func (c *HTTPClient) Delete(ctx context.Context, kind models.EntityKind, id string) error {
	_, err := c.mutate(ctx, http.MethodDelete, c.entityURL(kind, id), nil, false)
	return err
}

func (c *HTTPClient) Pull(ctx context.Context, kind models.EntityKind, since time.Time, outletID string) ([]Entity, error) {
	u, err := url.Parse(c.collectionURL(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to build pull URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	if outletID != "" {
		q.Set("outletId", outletID)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}

	items := make([]Entity, 0, len(raw))
	for _, r := range raw {
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(r, &probe); err != nil || probe.ID == "" {
			return nil, fmt.Errorf("pull response item without id: %s", r)
		}
		items = append(items, Entity{ID: probe.ID, Data: r})
	}
	return items, nil
}

func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %s", ErrServerUnavailable, resp.Status)
	}
	return nil
}

func (c *HTTPClient) mutate(ctx context.Context, method, url string, payload json.RawMessage, force bool) (json.RawMessage, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if force {
		req.Header.Set("X-Force-Update", "true")
	}

	return c.do(req)
}

// do executes the request and maps the response: 409 becomes ConflictError
// with the server snapshot, any other non-2xx becomes StatusError, 2xx
// returns the raw body (nil for 204).
func (c *HTTPClient) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, &ConflictError{ServerData: body}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	case len(body) == 0:
		return nil, nil
	default:
		return body, nil
	}
}

func (c *HTTPClient) collectionURL(kind models.EntityKind) string {
	return c.baseURL + "/" + string(kind)
}

func (c *HTTPClient) entityURL(kind models.EntityKind, id string) string {
	return c.baseURL + "/" + string(kind) + "/" + url.PathEscape(id)
}
