// Package source provides HTML-backed data sources for pipeline stages that
// pull records from upstream platforms.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dmaher/flowline/internal/port"
	"github.com/dmaher/flowline/internal/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; Flowline/1.0)"

// Selectors maps page structure to records: Record matches one element per
// record, Key yields its identity, and Fields yields named field values
// relative to the record element.
type Selectors struct {
	// Record matches one element per record.
	Record string `json:"record" validate:"required"`
	// Key selects the identity value within a record element.
	Key string `json:"key" validate:"required"`
	// KeyAttr reads the identity from an attribute instead of text content.
	KeyAttr string `json:"key_attr,omitempty"`
	// Fields maps field names to selectors within a record element.
	Fields map[string]string `json:"fields,omitempty"`
	// Mutable lists which extracted fields the writer may overwrite later.
	Mutable []string `json:"mutable,omitempty"`
}

// Options configures the HTTP behavior of the source.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

// DefaultOptions returns sensible defaults for fetching
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// HTMLSource implements port.DataSource over static HTML pages. Network
// failures and server errors are transient; client errors and selector
// misses are not.
type HTMLSource struct {
	selectors Selectors
	opts      *Options
	client    *http.Client
}

// NewHTMLSource creates a source for the given selector set
func NewHTMLSource(selectors Selectors, opts *Options) (*HTMLSource, error) {
	if selectors.Record == "" {
		return nil, fmt.Errorf("record selector is required")
	}
	if selectors.Key == "" {
		return nil, fmt.Errorf("key selector is required")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLSource{
		selectors: selectors,
		opts:      opts,
		client:    &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Fetch retrieves the page at the query URL and extracts one record per
// matching element. Records with an empty identity are dropped.
func (s *HTMLSource) Fetch(ctx context.Context, query string) ([]types.Record, error) {
	parsed, err := url.Parse(query)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid source URL %q", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	for key, value := range s.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, port.Transient("fetch "+query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, port.Transient("fetch "+query, fmt.Errorf("server returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", query, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", query, err)
	}

	var records []types.Record
	doc.Find(s.selectors.Record).Each(func(_ int, sel *goquery.Selection) {
		key := s.extractKey(sel)
		if key == "" {
			return
		}

		fields := make(map[string]any, len(s.selectors.Fields))
		for name, fieldSel := range s.selectors.Fields {
			if value := strings.TrimSpace(sel.Find(fieldSel).First().Text()); value != "" {
				fields[name] = value
			}
		}

		records = append(records, types.Record{
			Key:     key,
			Fields:  fields,
			Mutable: s.selectors.Mutable,
		})
	})

	return records, nil
}

func (s *HTMLSource) extractKey(sel *goquery.Selection) string {
	target := sel.Find(s.selectors.Key).First()
	if s.selectors.KeyAttr != "" {
		value, _ := target.Attr(s.selectors.KeyAttr)
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(target.Text())
}
