// Package yuque is a small client for the knowledge-base REST API.
package yuque

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jcdickinson/kbpress/internal/toc"
	"golang.org/x/time/rate"
)

const userAgent = "kbpress/0.1.0"

var ErrNotFound = errors.New("not found")

// APIError is returned for non-2xx responses other than 404.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d for %s: %s", e.Status, e.Path, e.Body)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient returns a client for the API at host. Requests are throttled
// to limit per second; zero or negative means unlimited.
func NewClient(host, token string, limit float64) *Client {
	l := rate.NewLimiter(rate.Inf, 1)
	if limit > 0 {
		l = rate.NewLimiter(rate.Limit(limit), max(1, int(limit)))
	}
	return &Client{
		baseURL:    strings.TrimRight(host, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    l,
	}
}

type Repo struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Description string `json:"description"`
}

type TocItem struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	UUID       string `json:"uuid"`
	URL        string `json:"url"`
	DocID      int    `json:"doc_id"`
	Level      int    `json:"level"`
	ParentUUID string `json:"parent_uuid"`
	ChildUUID  string `json:"child_uuid"`
}

// Entry converts the item into an outline entry.
func (i TocItem) Entry() toc.Entry {
	return toc.Entry{
		Kind:      toc.ParseKind(i.Type),
		Level:     i.Level,
		Title:     i.Title,
		UUID:      i.UUID,
		ChildUUID: i.ChildUUID,
		DocID:     i.DocID,
		URL:       i.URL,
	}
}

// Entries converts a whole outline.
func Entries(items []TocItem) []toc.Entry {
	out := make([]toc.Entry, len(items))
	for i, it := range items {
		out[i] = it.Entry()
	}
	return out
}

type DocSummary struct {
	ID          int    `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Doc struct {
	ID     int    `json:"id"`
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Format string `json:"format"`
	Body   string `json:"body"`
}

// Repo fetches the metadata of a namespace such as "group/book".
func (c *Client) Repo(ctx context.Context, namespace string) (*Repo, error) {
	var out struct {
		Data Repo `json:"data"`
	}
	if err := c.get(ctx, "/api/v2/repos/"+namespace, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// TOC fetches the outline of a namespace in display order.
func (c *Client) TOC(ctx context.Context, namespace string) ([]TocItem, error) {
	var out struct {
		Data []TocItem `json:"data"`
	}
	if err := c.get(ctx, "/api/v2/repos/"+namespace+"/toc", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Docs lists the documents of a namespace.
func (c *Client) Docs(ctx context.Context, namespace string) ([]DocSummary, error) {
	var out struct {
		Data []DocSummary `json:"data"`
	}
	if err := c.get(ctx, "/api/v2/repos/"+namespace+"/docs", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Doc fetches a document with its raw markdown body. ref is the document
// id or slug.
func (c *Client) Doc(ctx context.Context, namespace, ref string) (*Doc, error) {
	var out struct {
		Data Doc `json:"data"`
	}
	q := url.Values{"raw": {"1"}}
	if err := c.get(ctx, "/api/v2/repos/"+namespace+"/docs/"+url.PathEscape(ref), q, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Status: resp.StatusCode, Path: path, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
