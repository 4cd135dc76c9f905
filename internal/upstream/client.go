package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 8 << 20

// StatusError is returned when the provider answers with a non-2xx status
// and a body that is not JSON.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

var errInvalidJSON = errors.New("upstream response is not valid JSON")

type Client struct {
	BaseURL    string
	APIKey     string
	OutputSize int
	HTTP       *http.Client
}

func NewClient(baseURL, apiKey string, outputSize int, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		OutputSize: outputSize,
		HTTP: &http.Client{
			Transport: NewTransport(),
			Timeout:   timeout,
		},
	}
}

// Fetch requests the time series for symbol/interval and returns the body
// unchanged. Any JSON body is a payload whatever the HTTP status;
// provider-side errors are detected by the caller with ErrorMarker.
func (c *Client) Fetch(ctx context.Context, symbol, interval string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("outputsize", strconv.Itoa(c.OutputSize))
	q.Set("format", "JSON")
	q.Set("apikey", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/time_series?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, redactKey(err, c.APIKey)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if !json.Valid(body) {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		return nil, errInvalidJSON
	}
	return json.RawMessage(body), nil
}

// ErrorMarker reports whether payload is a provider error object
// ({"status":"error"}) and returns its message, which may be empty.
func ErrorMarker(payload json.RawMessage) (string, bool) {
	var marker struct {
		Status  string `json:"status"`
		Message any    `json:"message"`
	}
	if err := json.Unmarshal(payload, &marker); err != nil {
		return "", false
	}
	if marker.Status != "error" {
		return "", false
	}
	msg, _ := marker.Message.(string)
	return msg, true
}

// redactKey strips the API key from transport errors, which embed the
// request URL.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED")
	msg = strings.ReplaceAll(msg, key, "REDACTED")
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
