// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package diff computes which fetched items are new relative to a snapshot.
package diff

import (
	"go.astrophena.name/canvasbot/internal/canvas"
	"go.astrophena.name/canvasbot/internal/util/set"
)

// Compute returns, preserving fetch order, every item of fetched whose id is
// absent from known. It performs no I/O.
func Compute(fetched []canvas.Item, known set.Set[string]) []canvas.Item {
	var fresh []canvas.Item
	for _, item := range fetched {
		if known.Has(item.ID) {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}

// IDs returns the ids of items, in order.
func IDs(items []canvas.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
