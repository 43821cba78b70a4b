package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production Internet Archive endpoint. Tests
	// point the client at an httptest server instead.
	DefaultBaseURL = "https://archive.org"

	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "archivestream"
)

// Client queries the Internet Archive search index and metadata API. The
// zero value is not usable; call New.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// New returns a Client for the given base URL. An empty baseURL selects the
// production archive endpoint; a zero timeout selects the default.
func New(baseURL string, timeout time.Duration, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// BaseURL returns the base URL the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// Doc is a single search hit from the advancedsearch index.
type Doc struct {
	Identifier string     `json:"identifier"`
	Title      string     `json:"title"`
	Creator    StringList `json:"creator"`
	Downloads  int        `json:"downloads"`
}

type searchResponse struct {
	Response struct {
		NumFound int   `json:"numFound"`
		Docs     []Doc `json:"docs"`
	} `json:"response"`
}

// Search queries the archive's search index for audio items matching the
// free-text query, sorted by descending download count. Only items carrying
// a license URL are returned; unlicensed material is filtered out at the
// query level.
func (c *Client) Search(ctx context.Context, query string, rows int) ([]Doc, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("(%s) AND mediatype:(audio) AND licenseurl:[* TO *]", query))
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "creator")
	params.Add("fl[]", "downloads")
	params.Add("sort[]", "downloads desc")
	params.Set("rows", strconv.Itoa(rows))
	params.Set("page", "1")
	params.Set("output", "json")

	reqURL := c.baseURL + "/advancedsearch.php?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := DoWithRetry(ctx, c.httpClient, req, 0)
	if err != nil {
		return nil, fmt.Errorf("archive search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive search returned HTTP %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	return sr.Response.Docs, nil
}

// Item is the metadata record for a single archive identifier.
type Item struct {
	Files    []File       `json:"files"`
	Metadata ItemMetadata `json:"metadata"`
}

// ItemMetadata holds the descriptive fields of an item record.
type ItemMetadata struct {
	Title   string     `json:"title"`
	Creator StringList `json:"creator"`
}

// File is one entry in an item's file listing.
type File struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Source string `json:"source"`
	Size   string `json:"size"`
}

// Metadata fetches the metadata record for an identifier, including the
// item's file listing.
func (c *Client) Metadata(ctx context.Context, identifier string) (*Item, error) {
	reqURL := c.baseURL + "/metadata/" + url.PathEscape(identifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating metadata request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := DoWithRetry(ctx, c.httpClient, req, 0)
	if err != nil {
		return nil, fmt.Errorf("archive metadata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive metadata returned HTTP %d", resp.StatusCode)
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("parsing metadata response: %w", err)
	}

	return &item, nil
}

// StringList decodes a JSON value that may be either a single string or a
// list of strings. The archive uses both shapes for creator fields.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("creator is neither string nor list: %w", err)
	}
	*s = StringList(many)
	return nil
}

// Join returns the list as a single comma-joined display string.
func (s StringList) Join() string {
	return strings.Join(s, ", ")
}
