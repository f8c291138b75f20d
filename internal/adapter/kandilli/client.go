// Package kandilli polls the Kandilli observatory XML feed and stores
// official earthquake records for side-by-side display with app-detected
// events.
package kandilli

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kenet-project/seismic-fusion/internal/domain"
)

// feedTimeLayout is the timestamp format used by the feed, interpreted
// as Turkey time.
const feedTimeLayout = "2006.01.02 15:04:05"

// Client fetches the observatory's last-24-hours XML feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
	location   *time.Location
	logger     *slog.Logger
}

// NewClient creates a feed client for the given URL.
func NewClient(feedURL string, timeout time.Duration, logger *slog.Logger) *Client {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		// Zone database unavailable; fall back to the fixed offset.
		loc = time.FixedZone("TRT", 3*60*60)
	}
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		location: loc,
		logger:   logger,
	}
}

// Fetch downloads and parses the feed. Malformed entries are skipped
// with a warning rather than failing the whole poll.
func (c *Client) Fetch(ctx context.Context) ([]domain.OfficialQuake, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed error: status %d: %s", resp.StatusCode, body)
	}

	var feed feedDocument
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	quakes := make([]domain.OfficialQuake, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		q, err := c.mapEntry(e)
		if err != nil {
			c.logger.Warn("skipping malformed feed entry", "error", err, "name", e.Name)
			continue
		}
		quakes = append(quakes, q)
	}
	return quakes, nil
}

func (c *Client) mapEntry(e feedEntry) (domain.OfficialQuake, error) {
	if e.Name == "" {
		return domain.OfficialQuake{}, fmt.Errorf("entry has no name attribute")
	}
	occurredAt, err := time.ParseInLocation(feedTimeLayout, e.Name, c.location)
	if err != nil {
		return domain.OfficialQuake{}, fmt.Errorf("parse time %q: %w", e.Name, err)
	}

	lat, err := strconv.ParseFloat(e.Lat, 64)
	if err != nil {
		return domain.OfficialQuake{}, fmt.Errorf("parse lat %q: %w", e.Lat, err)
	}
	lng, err := strconv.ParseFloat(e.Lng, 64)
	if err != nil {
		return domain.OfficialQuake{}, fmt.Errorf("parse lng %q: %w", e.Lng, err)
	}
	mag, err := strconv.ParseFloat(e.Magnitude, 64)
	if err != nil {
		return domain.OfficialQuake{}, fmt.Errorf("parse magnitude %q: %w", e.Magnitude, err)
	}
	depth, err := strconv.ParseFloat(e.Depth, 64)
	if err != nil {
		return domain.OfficialQuake{}, fmt.Errorf("parse depth %q: %w", e.Depth, err)
	}

	return domain.OfficialQuake{
		// The timestamp attribute is unique per event and stable across
		// polls; compacted it serves as the feed's identifier.
		ExternalID: occurredAt.UTC().Format("20060102150405"),
		Title:      strings.TrimSpace(e.Location),
		Magnitude:  mag,
		Depth:      depth,
		Lat:        lat,
		Lng:        lng,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

// Feed XML types. The element name "earhquake" is the feed's own
// spelling, not a typo here.

type feedDocument struct {
	XMLName xml.Name    `xml:"eqlist"`
	Entries []feedEntry `xml:"earhquake"`
}

type feedEntry struct {
	Name      string `xml:"name,attr"` // event timestamp, "2006.01.02 15:04:05"
	Location  string `xml:"lokasyon,attr"`
	Lat       string `xml:"lat,attr"`
	Lng       string `xml:"lng,attr"`
	Magnitude string `xml:"mag,attr"`
	Depth     string `xml:"Depth,attr"`
}
