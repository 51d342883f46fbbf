// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package announce fetches course announcement feeds.
//
// Canvas exposes an Atom feed per course; when a tracked course declares one
// in config.star, its entries join the module tree in the reconciliation
// pipeline as items of kind [canvas.KindAnnouncement].
package announce

import (
	"context"
	"fmt"
	"net/http"

	"go.astrophena.name/canvasbot/internal/canvas"
	"go.astrophena.name/canvasbot/internal/request"
	"go.astrophena.name/canvasbot/internal/version"

	"github.com/mmcdole/gofeed"
)

// Fetcher fetches and parses announcement feeds.
type Fetcher struct {
	httpc *http.Client
	fp    *gofeed.Parser
}

// New returns a Fetcher using httpc, or [request.DefaultClient] if nil.
func New(httpc *http.Client) *Fetcher {
	f := &Fetcher{httpc: httpc, fp: gofeed.NewParser()}
	if f.httpc == nil {
		f.httpc = request.DefaultClient
	}
	return f
}

// Fetch downloads the feed at url and converts its entries into items, in
// feed order. Entries without a GUID fall back to their link as identifier;
// entries with neither are skipped.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]canvas.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := f.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed %q: want 200, got %d", url, res.StatusCode)
	}

	feed, err := f.fp.Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %q: %w", url, err)
	}

	var items []canvas.Item
	for _, entry := range feed.Items {
		guid := entry.GUID
		if guid == "" {
			guid = entry.Link
		}
		if guid == "" {
			continue
		}
		items = append(items, canvas.Item{
			ID:    "ann:" + guid,
			Kind:  canvas.KindAnnouncement,
			Title: entry.Title,
			URL:   entry.Link,
		})
	}
	return items, nil
}
