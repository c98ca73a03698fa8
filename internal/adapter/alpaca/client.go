// Package alpaca talks to the Alpaca brokerage REST APIs: market data for
// quotes and bars, and the trading API for order submission.
package alpaca

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

// Credentials authenticate requests to both Alpaca APIs
type Credentials struct {
	APIKey    string
	APISecret string
}

// apiError is the error body returned by Alpaca
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpStatusError is returned for non-2xx responses
type httpStatusError struct {
	StatusCode int
	Message    string
}

func (e *httpStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("alpaca returned %d", e.StatusCode)
	}
	return fmt.Sprintf("alpaca returned %d: %s", e.StatusCode, e.Message)
}

// unreadableResponseError is returned when a 2xx response body cannot be read
// or decoded. The request itself was accepted.
type unreadableResponseError struct {
	StatusCode int
	Err        error
}

func (e *unreadableResponseError) Error() string {
	return fmt.Sprintf("alpaca returned %d: %v", e.StatusCode, e.Err)
}

func (e *unreadableResponseError) Unwrap() error {
	return e.Err
}

// client holds what the trading and market-data clients share
type client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

func newClient(baseURL string, creds Credentials, httpClient *http.Client) client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
	}
}

// do sends a JSON request and decodes a 2xx JSON response into out
func (c client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.creds.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.creds.APISecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if ok {
			return &unreadableResponseError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	if !ok {
		statusErr := &httpStatusError{StatusCode: resp.StatusCode}
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			statusErr.Message = apiErr.Message
		} else {
			statusErr.Message = strings.TrimSpace(string(raw))
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &unreadableResponseError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
