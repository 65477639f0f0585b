package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// apiClient is a thin HTTP client for the orchestrator daemon's operator
// surface (§6), authenticating with whichever credential the caller
// configured: the internal service token, or an operator session via HTTP
// Basic.
type apiClient struct {
	baseURL  string
	token    string
	username string
	password string
	http     *http.Client
}

func newAPIClient(baseURL, token, username, password string) *apiClient {
	return &apiClient{
		baseURL:  baseURL,
		token:    token,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is returned for any non-2xx response, carrying the daemon's
// structured errorBody so callers can branch on kind the same way an
// in-process caller of apierr would.
type apiError struct {
	Status  int
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Kind, e.Status)
}

// do issues method/path against the daemon with an optional JSON body,
// decoding a successful response into out (if non-nil).
func (c *apiClient) do(method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(raw)
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func (c *apiClient) authenticate(req *http.Request) {
	if c.token != "" {
		req.Header.Set("X-Internal-Token", c.token)
		return
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
