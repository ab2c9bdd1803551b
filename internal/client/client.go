// Package client talks to the annotation API and keeps the local list of
// drafts for a document.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pbaille/fieldmap/internal/domain"
	"github.com/pbaille/fieldmap/internal/ingest"
	"github.com/pbaille/fieldmap/internal/projector"
)

// Client is a typed wrapper over the HTTP API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the server at baseURL
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// APIError is a non-2xx response from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Upload sends a document and returns the created process
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*domain.Process, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var proc domain.Process
	if err := c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), &body, &proc); err != nil {
		return nil, err
	}
	return &proc, nil
}

// Processes lists every uploaded document
func (c *Client) Processes(ctx context.Context) ([]domain.Process, error) {
	var out []domain.Process
	err := c.do(ctx, http.MethodGet, "/api/processes", "", nil, &out)
	return out, err
}

// Process fetches one document by id
func (c *Client) Process(ctx context.Context, id string) (*domain.Process, error) {
	var proc domain.Process
	if err := c.do(ctx, http.MethodGet, "/api/processes/"+url.PathEscape(id), "", nil, &proc); err != nil {
		return nil, err
	}
	return &proc, nil
}

// BulkSave submits a batch of annotations
func (c *Client) BulkSave(ctx context.Context, anns []domain.Annotation) (*ingest.Result, error) {
	data, err := json.Marshal(anns)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	var res ingest.Result
	if err := c.do(ctx, http.MethodPost, "/api/pdf-annotation-mappings/bulk", "application/json", bytes.NewReader(data), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Annotations lists the stored annotations of a process
func (c *Client) Annotations(ctx context.Context, processID string) ([]domain.Annotation, error) {
	var out []domain.Annotation
	err := c.do(ctx, http.MethodGet, "/api/annotations/"+url.PathEscape(processID), "", nil, &out)
	return out, err
}

// Clear removes every stored annotation of a process
func (c *Client) Clear(ctx context.Context, processID string) error {
	return c.do(ctx, http.MethodDelete, "/api/annotations/clear/"+url.PathEscape(processID), "", nil, nil)
}

// FieldDefinitions fetches the projected field definitions of a process
func (c *Client) FieldDefinitions(ctx context.Context, processID string, formID *string) ([]projector.FieldDefinition, error) {
	path := "/api/field-definitions/" + url.PathEscape(processID)
	if formID != nil {
		path += "?form_id=" + url.QueryEscape(*formID)
	}
	var out []projector.FieldDefinition
	err := c.do(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
