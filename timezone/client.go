package timezone

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const lookupPath = "/v1/timezone"

type lookupResponse struct {
	TimeZone string `json:"timeZone"`
}

// Client resolves the IANA zone of a coordinate. Without a configured lookup
// service it trusts the caller supplied hint.
type Client struct {
	transport *Transport
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{transport: NewTransport(baseURL, apiKey)}
}

// Resolve returns the zone at the coordinate. A failed or unusable lookup
// falls back to the hint together with the lookup error.
func (c *Client) Resolve(ctx context.Context, latitude, longitude float64, hint string) (string, error) {
	if c.transport == nil {
		return validOrEmpty(hint), nil
	}

	var resp lookupResponse
	err := c.transport.GetJSON(ctx, lookupPath, map[string]string{
		"lat": strconv.FormatFloat(latitude, 'f', 6, 64),
		"lng": strconv.FormatFloat(longitude, 'f', 6, 64),
	}, &resp)
	if err != nil {
		return validOrEmpty(hint), fmt.Errorf("timezone lookup: %w", err)
	}

	if zone := validOrEmpty(resp.TimeZone); zone != "" {
		return zone, nil
	}
	return validOrEmpty(hint), fmt.Errorf("timezone lookup returned unknown zone %q", resp.TimeZone)
}

func validOrEmpty(zone string) string {
	if zone == "" || zone == "Local" {
		return ""
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return ""
	}
	return zone
}
