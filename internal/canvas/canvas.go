// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package canvas implements a client for the Canvas LMS REST API.
//
// The client translates the remote module/item tree into [Item] values with
// an explicit kind and a stable, kind-prefixed identifier at fetch time, so
// the rest of the pipeline never inspects raw API objects.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.astrophena.name/canvasbot/internal/request"
)

// Some classes of errors returned by the Canvas API. All three mean that the
// course is no longer accessible with the current credentials.
var (
	ErrNotFound     = errors.New("course not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid access token")
)

// IsAccessRevoked reports whether err means that the course became
// inaccessible (deleted, access revoked or token invalidated) rather than
// transiently unavailable.
func IsAccessRevoked(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidToken)
}

// Kind identifies what a content tree entry is.
type Kind int

const (
	KindModule Kind = iota
	KindModuleItem
	KindAnnouncement
)

// Label returns the human-readable kind label used in notifications.
func (k Kind) Label() string {
	switch k {
	case KindModule:
		return "Module"
	case KindModuleItem:
		return "Module Item"
	case KindAnnouncement:
		return "Announcement"
	}
	return "Item"
}

// Item is a single entry of a course's content tree: a module, one of its
// items, or an announcement. Items are read-only; the bot never mutates
// remote state.
type Item struct {
	// ID is the stable kind-prefixed identifier ("module:123", "item:456",
	// "ann:<guid>") persisted in snapshots.
	ID    string
	Kind  Kind
	Title string
	// URL optionally points at the entry. Empty for entries that have no page
	// of their own (modules, subheaders).
	URL string
}

// Course is the course metadata the bot cares about.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Config configures a [Client].
type Config struct {
	// BaseURL is the root of the Canvas instance, e.g. "https://canvas.ubc.ca".
	BaseURL string
	// Token is the Canvas API access token.
	Token      string
	HTTPClient *http.Client
	Scrubber   *strings.Replacer
}

// Client is a Canvas API client.
type Client struct {
	baseURL  string
	token    string
	httpc    *http.Client
	scrubber *strings.Replacer
}

// New returns a Client for a Canvas instance.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token:    cfg.Token,
		httpc:    cfg.HTTPClient,
		scrubber: cfg.Scrubber,
	}
	if c.httpc == nil {
		c.httpc = request.DefaultClient
	}
	return c
}

// GetCourse fetches course metadata.
func (c *Client) GetCourse(ctx context.Context, id int64) (*Course, error) {
	course, err := request.Make[*Course](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.baseURL + "/api/v1/courses/" + strconv.FormatInt(id, 10),
		Headers:    c.headers(),
		HTTPClient: c.httpc,
		Scrubber:   c.scrubber,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("course %d: %w", id, err))
	}
	return course, nil
}

// ModuleTree fetches the course's modules and their items, flattened in the
// remote tree's order: each module first, then its items.
func (c *Client) ModuleTree(ctx context.Context, courseID int64) ([]Item, error) {
	type module struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	type moduleItem struct {
		ID      int64  `json:"id"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	}

	coursePath := "/api/v1/courses/" + strconv.FormatInt(courseID, 10)

	modules, err := getPaged[module](ctx, c, coursePath+"/modules")
	if err != nil {
		return nil, classify(fmt.Errorf("course %d: modules: %w", courseID, err))
	}

	var tree []Item
	for _, m := range modules {
		// Unpublished modules come back without a name; skip them like the
		// items endpoint does.
		if m.Name == "" {
			continue
		}
		tree = append(tree, Item{
			ID:    "module:" + strconv.FormatInt(m.ID, 10),
			Kind:  KindModule,
			Title: m.Name,
		})

		items, err := getPaged[moduleItem](ctx, c, coursePath+"/modules/"+strconv.FormatInt(m.ID, 10)+"/items")
		if err != nil {
			return nil, classify(fmt.Errorf("course %d: module %d items: %w", courseID, m.ID, err))
		}
		for _, it := range items {
			if it.Title == "" {
				continue
			}
			tree = append(tree, Item{
				ID:    "item:" + strconv.FormatInt(it.ID, 10),
				Kind:  KindModuleItem,
				Title: it.Title,
				URL:   it.HTMLURL,
			})
		}
	}

	return tree, nil
}

const perPage = 100

// getPaged follows Canvas page-number pagination until a short page.
func getPaged[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		batch, err := request.Make[[]T](ctx, request.Params{
			Method:     http.MethodGet,
			URL:        c.baseURL + path + "?" + q.Encode(),
			Headers:    c.headers(),
			HTTPClient: c.httpc,
			Scrubber:   c.scrubber,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			return all, nil
		}
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.token,
	}
}

// classify maps HTTP status errors onto the access-revoked sentinel errors,
// leaving everything else (transient failures) untouched.
func classify(err error) error {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch statusErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case http.StatusUnauthorized:
		if strings.Contains(string(statusErr.Body), "Invalid access token") {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return err
}
