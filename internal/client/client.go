// Package client is a typed HTTP client for the person API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/crudapp/internal/domain/model"
)

const (
	// DefaultBaseURL is the local address the service listens on by default.
	DefaultBaseURL = "http://localhost:8080"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Client calls the person API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// New returns a client for baseURL, or DefaultBaseURL when empty.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// CreateResult is the answer to Create.
type CreateResult struct {
	Person    model.Person `json:"person"`
	Duplicate bool         `json:"duplicate"`
}

// List fetches every person in list order. It sends exactly one request.
func (c *Client) List(ctx context.Context) ([]model.Person, error) {
	var out struct {
		Persons []model.Person `json:"persons"`
	}
	if err := c.do(ctx, http.MethodGet, "/person/list", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Persons == nil {
		out.Persons = []model.Person{}
	}
	return out.Persons, nil
}

// Get fetches one person by id.
func (c *Client) Get(ctx context.Context, id int64) (model.Person, error) {
	var out struct {
		Person model.Person `json:"person"`
	}
	err := c.do(ctx, http.MethodGet, "/person/edit/"+strconv.FormatInt(id, 10), nil, nil, &out)
	return out.Person, err
}

// Create stores p. A non-empty idempotencyKey makes retries safe.
func (c *Client) Create(ctx context.Context, p model.Person, idempotencyKey string) (CreateResult, error) {
	var hdr http.Header
	if idempotencyKey != "" {
		hdr = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	p.PersonID = 0
	var out CreateResult
	err := c.do(ctx, http.MethodPost, "/person/create", p, hdr, &out)
	return out, err
}

// Update replaces the person with p.PersonID.
func (c *Client) Update(ctx context.Context, p model.Person) (model.Person, error) {
	var out struct {
		Person model.Person `json:"person"`
	}
	err := c.do(ctx, http.MethodPost, "/person/edit", p, nil, &out)
	return out.Person, err
}

// Delete removes the person with id. Unknown ids are not an error.
func (c *Client) Delete(ctx context.Context, id int64) error {
	body := struct {
		Command  string `json:"command"`
		PersonID int64  `json:"personId"`
	}{Command: "Delete", PersonID: id}
	return c.do(ctx, http.MethodPost, "/person/delete", body, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any, hdr http.Header, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %w", ErrRequest, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequest, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	var payload struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&payload); err == nil {
		se.APICode = payload.Code
		se.Message = payload.Message
		se.Errors = payload.Errors
		if se.APICode == "" && len(se.Errors) > 0 {
			se.APICode = "validation_failed"
			se.Message = strings.Join(se.Errors, "; ")
		}
	}
	return se
}
