package geocode

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
)

const DefaultURL = "https://nominatim.openstreetmap.org"

var ErrNoAddress = errors.New("no address found for coordinates")

// Nominatim reverse-geocodes coordinates through a Nominatim-compatible API.
type Nominatim struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	language   string
}

func NewNominatim(httpClient *http.Client, baseURL, userAgent string) *Nominatim {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Nominatim{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		language:   "id",
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse returns a human readable address for lat/lng.
func (n *Nominatim) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 7, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 7, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", n.language)
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geocoder returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if body.Error != "" || body.DisplayName == "" {
		return "", ErrNoAddress
	}
	return body.DisplayName, nil
}
