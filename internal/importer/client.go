// Package importer pulls vehicle listings from an external vendor feed and
// upserts them into the auction store, keyed by (source, source id).
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultPageSize = 50

// VendorAuction is one listing as the vendor feed describes it. Raw holds
// the untouched vendor JSON so the original payload survives re-mapping.
type VendorAuction struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	VIN           string          `json:"vin"`
	StartsAt      time.Time       `json:"startsAt"`
	EndsAt        time.Time       `json:"endsAt"`
	StartingPrice int64           `json:"startingPrice"`
	SoftCloseSec  int             `json:"softCloseSec"`
	Photos        []string        `json:"photos"`
	Raw           json.RawMessage `json:"-"`
}

type vendorPage struct {
	Items   []json.RawMessage `json:"items"`
	HasMore bool              `json:"hasMore"`
}

// Client talks to the vendor HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClientFromEnv builds a Client from VENDOR_API_BASE and
// VENDOR_API_TOKEN. Returns nil when no base URL is configured.
func NewClientFromEnv() *Client {
	base := strings.TrimRight(os.Getenv("VENDOR_API_BASE"), "/")
	if base == "" {
		return nil
	}
	return &Client{
		base:  base,
		token: os.Getenv("VENDOR_API_TOKEN"),
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchPage loads one page of vendor listings. The second return value
// reports whether more pages follow.
func (c *Client) FetchPage(ctx context.Context, page, limit int) ([]VendorAuction, bool, error) {
	if limit < 1 {
		limit = defaultPageSize
	}
	u := fmt.Sprintf("%s/auctions?%s", c.base, url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("vendor request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("vendor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p vendorPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, false, fmt.Errorf("decode vendor page: %w", err)
	}

	out := make([]VendorAuction, 0, len(p.Items))
	for _, raw := range p.Items {
		var va VendorAuction
		if err := json.Unmarshal(raw, &va); err != nil {
			// Malformed items are counted by the caller via the zero ID.
			out = append(out, VendorAuction{Raw: raw})
			continue
		}
		va.Raw = raw
		out = append(out, va)
	}
	return out, p.HasMore, nil
}
