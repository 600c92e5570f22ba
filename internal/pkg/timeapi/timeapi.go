package timeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultWorldTimeAPIURL = "https://worldtimeapi.org"
	DefaultTimeAPIIOURL    = "https://timeapi.io"
)

// Client queries public time APIs for the current time in a fixed zone.
type Client struct {
	httpClient *http.Client
	location   *time.Location
}

func NewClient(httpClient *http.Client, location *time.Location) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		location:   location,
	}
}

type worldTimeResponse struct {
	Datetime string `json:"datetime"`
	Timezone string `json:"timezone"`
}

type timeAPIIOResponse struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// WorldTimeAPI fetches GET {baseURL}/api/timezone/{zone}.
func (c *Client) WorldTimeAPI(ctx context.Context, baseURL string) (time.Time, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/timezone/" + c.location.String()

	var resp worldTimeResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return time.Time{}, err
	}
	if resp.Datetime == "" {
		return time.Time{}, fmt.Errorf("worldtimeapi: missing datetime")
	}

	t, err := time.Parse(time.RFC3339Nano, resp.Datetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("worldtimeapi: invalid datetime %q: %w", resp.Datetime, err)
	}
	return t.In(c.location), nil
}

// TimeAPIIO fetches GET {baseURL}/api/Time/current/zone?timeZone={zone}. The
// response carries local time without an offset.
func (c *Client) TimeAPIIO(ctx context.Context, baseURL string) (time.Time, error) {
	q := url.Values{}
	q.Set("timeZone", c.location.String())
	endpoint := strings.TrimRight(baseURL, "/") + "/api/Time/current/zone?" + q.Encode()

	var resp timeAPIIOResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return time.Time{}, err
	}
	if resp.DateTime == "" {
		return time.Time{}, fmt.Errorf("timeapi.io: missing dateTime")
	}

	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", resp.DateTime, c.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeapi.io: invalid dateTime %q: %w", resp.DateTime, err)
	}
	return t, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
