package runapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/JonMunkholm/mdo/internal/schema"
)

// APIPrefix is the path every endpoint lives under.
const APIPrefix = "/api/v1"

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 << 20

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("run backend error (status=%d)", e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("run backend error (status=%d, code=%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("run backend error (status=%d): %s", e.StatusCode, msg)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the run backend over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the backend at baseURL. The URL is
// normalised to end with /api/v1.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base := NormalizeBaseURL(baseURL)
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeBaseURL trims trailing slashes and appends /api/v1 when missing.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasSuffix(base, APIPrefix) {
		return base
	}
	return base + APIPrefix
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartRun uploads files with their mapping entries and returns the id of
// the new run.
func (c *Client) StartRun(ctx context.Context, files []mapping.File, specs []FileSpec) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		if err := writeFilePart(writer, f); err != nil {
			return "", err
		}
	}

	if specs == nil {
		specs = []FileSpec{}
	}
	payload, err := json.Marshal(specs)
	if err != nil {
		return "", fmt.Errorf("marshal mapping: %w", err)
	}
	if err := writer.WriteField("mapping", string(payload)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/runs", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out StartResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.RunID == "" {
		return "", errors.New("run backend returned no run id")
	}
	return out.RunID, nil
}

func writeFilePart(w *multipart.Writer, f mapping.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
	header.Set("Content-Type", "text/csv")
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("read %s: %w", f.Name, err)
	}
	return nil
}

// GetRun returns the current state of a run.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("run id is required")
	}
	var out Run
	if err := c.getJSON(ctx, "/runs/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns the most recent runs first. A limit of zero uses the
// backend default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	path := "/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []RunSummary
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTemplates returns the backend's schema catalog.
func (c *Client) ListTemplates(ctx context.Context) ([]schema.SchemaTemplate, error) {
	var out []schema.SchemaTemplate
	if err := c.getJSON(ctx, "/templates", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMappings returns the saved mapping configurations.
func (c *Client) ListMappings(ctx context.Context) ([]mappings.Config, error) {
	var out []mappings.Config
	if err := c.getJSON(ctx, "/mappings", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveMapping stores a named configuration.
func (c *Client) SaveMapping(ctx context.Context, name string, entries []mappings.Entry) (mappings.Config, error) {
	if entries == nil {
		entries = []mappings.Entry{}
	}
	body, err := json.Marshal(struct {
		Name     string           `json:"name"`
		Mappings []mappings.Entry `json:"mappings"`
	}{name, entries})
	if err != nil {
		return mappings.Config{}, fmt.Errorf("marshal mapping: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/mappings", bytes.NewReader(body))
	if err != nil {
		return mappings.Config{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out mappings.Config
	if err := c.do(req, &out); err != nil {
		return mappings.Config{}, err
	}
	return out, nil
}

// DeleteMapping removes a saved configuration.
func (c *Client) DeleteMapping(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/mappings/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Mappings exposes the saved-mapping endpoints as a mappings.Repository.
// A 404 on delete becomes mappings.ErrNotFound.
func (c *Client) Mappings() mappings.Repository {
	return remoteMappings{c}
}

type remoteMappings struct{ c *Client }

func (r remoteMappings) Save(ctx context.Context, name string, entries []mappings.Entry) (mappings.Config, error) {
	return r.c.SaveMapping(ctx, name, entries)
}

func (r remoteMappings) List(ctx context.Context) ([]mappings.Config, error) {
	return r.c.ListMappings(ctx)
}

func (r remoteMappings) Delete(ctx context.Context, id string) error {
	err := r.c.DeleteMapping(ctx, id)
	if IsNotFound(err) {
		return mappings.ErrNotFound
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var er ErrorResponse
		if json.Unmarshal(body, &er) == nil && (er.Message != "" || er.Error != "") {
			apiErr.Message = er.Message
			if apiErr.Message == "" {
				apiErr.Message = er.Error
			}
			apiErr.Code = er.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
