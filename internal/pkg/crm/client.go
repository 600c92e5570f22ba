package crm

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

	"golang.org/x/oauth2"
)

// Config holds the record store connection settings.
type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyScheme string
	Timeout      time.Duration
}

// Client talks to a Frappe-style REST resource API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client that sends "Authorization: <scheme> <key>" on
// every request.
func NewClient(cfg Config) *Client {
	scheme := cfg.APIKeyScheme
	if scheme == "" {
		scheme = "token"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   scheme,
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: src,
				Base:   http.DefaultTransport,
			},
		},
	}
}

// APIError is a non-2xx answer from the record store. Message is shown to
// the user verbatim.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("record store error [%d] %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("record store error [%d]: %s", e.StatusCode, e.Message)
}

// Doc is one resource document.
type Doc map[string]interface{}

type errorBody struct {
	ExcType        string          `json:"exc_type"`
	Exception      string          `json:"exception"`
	Message        json.RawMessage `json:"message"`
	ServerMessages string          `json:"_server_messages"`
}

func (c *Client) do(ctx context.Context, method, path string, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach record store: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

func parseAPIError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Type = body.ExcType
		apiErr.Message = firstNonEmpty(
			serverMessage(body.ServerMessages),
			rawString(body.Message),
			lastLine(body.Exception),
		)
	}
	if apiErr.Message == "" {
		text := strings.TrimSpace(string(raw))
		if len(text) > 200 || strings.HasPrefix(text, "<") {
			text = ""
		}
		apiErr.Message = firstNonEmpty(text, http.StatusText(status))
	}
	return apiErr
}

// serverMessage unpacks the doubly encoded _server_messages list.
func serverMessage(s string) string {
	if s == "" {
		return ""
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil || len(list) == 0 {
		return ""
	}
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(list[0]), &msg); err != nil {
		return list[0]
	}
	return msg.Message
}

func rawString(m json.RawMessage) string {
	var s string
	if err := json.Unmarshal(m, &s); err != nil {
		return ""
	}
	return s
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func resourcePath(doctype string, name ...string) string {
	p := "/api/resource/" + url.PathEscape(doctype)
	for _, n := range name {
		p += "/" + url.PathEscape(n)
	}
	return p
}
