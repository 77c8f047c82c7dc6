// Package client is a Go consumer of the linkboard API. It keeps an
// office-scoped cache of listings that is updated optimistically: mutations
// are applied to the cache before the server answers, and the affected office
// cache is dropped once the request settles so the next read refetches the
// server's truth. Failed mutations are never retried automatically.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultCheckDebounce = 2000 * time.Millisecond

// Listing is the wire shape shared by opportunities and resources. Fields
// that only one kind carries are zero for the other.
type Listing struct {
	ID            string   `json:"_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	OriginalURL   string   `json:"originalUrl"`
	ShortLink     string   `json:"shortLink"`
	CoverImageURL *string  `json:"coverImageUrl,omitempty"`
	Functions     []string `json:"functions,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Deadline      string   `json:"deadline,omitempty"`
	OfficeID      string   `json:"officeId"`
}

// Kind selects which collection an operation targets.
type Kind string

const (
	KindOpportunity Kind = "opportunities"
	KindResource    Kind = "resources"
)

// APIError is a non-2xx response decoded into the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL  string
	http     *http.Client
	debounce time.Duration

	mu    sync.Mutex
	cache map[Kind]map[string][]Listing

	checkMu    sync.Mutex
	checkTimer *time.Timer
	checkSeq   uint64
}

type Option func(*Client)

// WithCheckDebounce overrides the short-link availability debounce window.
func WithCheckDebounce(d time.Duration) Option {
	return func(c *Client) { c.debounce = d }
}

// WithHTTPClient swaps the underlying transport. A cookie jar is attached if
// the given client has none, since the session rides on a cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		debounce: defaultCheckDebounce,
		cache:    map[Kind]map[string][]Listing{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// SignIn exchanges an identity-provider token plus email for a session
// cookie, which the jar replays on every later call.
func (c *Client) SignIn(ctx context.Context, idpToken, email string) error {
	body, _ := json.Marshal(map[string]string{"email": email})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/session", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-linkboard-idp-token", idpToken)
	return c.do(req, nil)
}

// Me reports the signed-in caller's role and office.
func (c *Client) Me(ctx context.Context) (role, officeID string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return "", "", err
	}
	var out struct {
		UserType string `json:"userType"`
		OfficeID string `json:"officeId"`
	}
	if err := c.do(req, &out); err != nil {
		return "", "", err
	}
	return out.UserType, out.OfficeID, nil
}

func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return err
	}
	err = c.do(req, nil)
	c.mu.Lock()
	c.cache = map[Kind]map[string][]Listing{}
	c.mu.Unlock()
	return err
}

// List returns the office's listings, serving the cache when it is warm.
func (c *Client) List(ctx context.Context, kind Kind, officeID string) ([]Listing, error) {
	c.mu.Lock()
	if cached, ok := c.cache[kind][officeID]; ok {
		out := make([]Listing, len(cached))
		copy(out, cached)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	return c.refetch(ctx, kind, officeID)
}

func (c *Client) refetch(ctx context.Context, kind Kind, officeID string) ([]Listing, error) {
	endpoint := fmt.Sprintf("%s/api/%s?officeId=%s", c.baseURL, kind, url.QueryEscape(officeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []Listing `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.cache[kind] == nil {
		c.cache[kind] = map[string][]Listing{}
	}
	c.cache[kind][officeID] = out.Data
	c.mu.Unlock()

	result := make([]Listing, len(out.Data))
	copy(result, out.Data)
	return result, nil
}

// Search asks the server for listings matching the query. Results are not
// cached; search output is a projection, not the office's canonical slice.
func (c *Client) Search(ctx context.Context, kind Kind, officeID, query string) ([]Listing, error) {
	endpoint := fmt.Sprintf("%s/api/%s?officeId=%s&q=%s", c.baseURL, kind, url.QueryEscape(officeID), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []Listing `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Create posts a new listing. The cache gets an optimistic copy immediately;
// once the request settles the office cache is invalidated either way, so
// the temporary entry never outlives the next read.
func (c *Client) Create(ctx context.Context, kind Kind, listing Listing) (string, error) {
	optimistic := listing
	optimistic.ID = fmt.Sprintf("pending-%d", time.Now().UnixNano())
	c.applyLocal(kind, listing.OfficeID, func(items []Listing) []Listing {
		return append(items, optimistic)
	})
	defer c.invalidate(kind, listing.OfficeID)

	body, err := json.Marshal(listing)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+string(kind), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		ID string `json:"_id"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Update applies the patch to the cached entry by id, then settles against
// the server and invalidates.
func (c *Client) Update(ctx context.Context, kind Kind, officeID, id string, patch map[string]any) error {
	c.applyLocal(kind, officeID, func(items []Listing) []Listing {
		for i := range items {
			if items[i].ID == id {
				applyPatch(&items[i], patch)
			}
		}
		return items
	})
	defer c.invalidate(kind, officeID)

	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/api/%s/%s", c.baseURL, kind, id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Delete drops the entry from the cache by id before asking the server.
func (c *Client) Delete(ctx context.Context, kind Kind, officeID, id string) error {
	c.applyLocal(kind, officeID, func(items []Listing) []Listing {
		kept := items[:0]
		for _, item := range items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		return kept
	})
	defer c.invalidate(kind, officeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/api/%s/%s", c.baseURL, kind, id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// CheckShortLink schedules a debounced availability probe and reports the
// result to the callback. A later call supersedes a pending one; only the
// last requested short link is ever checked.
func (c *Client) CheckShortLink(kind Kind, shortLink string, callback func(taken bool, err error)) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	c.checkSeq++
	seq := c.checkSeq
	if c.checkTimer != nil {
		c.checkTimer.Stop()
	}
	c.checkTimer = time.AfterFunc(c.debounce, func() {
		c.checkMu.Lock()
		superseded := seq != c.checkSeq
		c.checkMu.Unlock()
		if superseded {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		taken, err := c.checkShortLinkNow(ctx, kind, shortLink)
		callback(taken, err)
	})
}

func (c *Client) checkShortLinkNow(ctx context.Context, kind Kind, shortLink string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/%s?shortLink=%s", c.baseURL, kind, url.QueryEscape(shortLink))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(req, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) applyLocal(kind Kind, officeID string, mutate func([]Listing) []Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.cache[kind][officeID]
	if !ok {
		return
	}
	c.cache[kind][officeID] = mutate(cached)
}

func (c *Client) invalidate(kind Kind, officeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byOffice, ok := c.cache[kind]; ok {
		delete(byOffice, officeID)
	}
}

func applyPatch(listing *Listing, patch map[string]any) {
	for key, value := range patch {
		text, _ := value.(string)
		switch key {
		case "title":
			listing.Title = text
		case "description":
			listing.Description = text
		case "originalUrl":
			listing.OriginalURL = text
		case "shortLink":
			listing.ShortLink = text
		case "deadline":
			listing.Deadline = text
		}
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "SERVER_ERROR", Message: resp.Status}
		var envelope struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Code != "" {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Error
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
