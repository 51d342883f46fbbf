// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package batch packs new items into size-bounded notification batches.
//
// The bounds match Discord embed limits: at most 25 fields per embed and at
// most 6000 characters across the title and all field names and values.
package batch

import (
	"fmt"
	"unicode/utf8"

	"go.astrophena.name/canvasbot/internal/canvas"
)

const (
	// MaxEntries is the maximum number of entries per batch.
	MaxEntries = 25
	// MaxChars is the maximum accumulated character count per batch: title
	// plus every entry's label and value, counted in runes.
	MaxChars = 6000
	// MaxTitleLength is the length display strings are truncated to.
	MaxTitleLength = 100
)

// Entry is a single formatted item inside a batch.
type Entry struct {
	// Label is the kind label ("Module", "Module Item", "Announcement").
	Label string
	// Value is the display string: the truncated item title, wrapped in
	// [title](url) markup when the item has a link.
	Value string
}

// Batch is an ordered group of entries under a title. It is ephemeral:
// built and delivered within a single reconciliation pass.
type Batch struct {
	Title   string
	Entries []Entry
}

func (b *Batch) size() int {
	n := utf8.RuneCountInString(b.Title)
	for _, e := range b.Entries {
		n += utf8.RuneCountInString(e.Label) + utf8.RuneCountInString(e.Value)
	}
	return n
}

// Build packs items, in order, into batches that respect [MaxEntries] and
// [MaxChars]. The first batch is titled "New items found for {course}:";
// subsequent ones get a "(continued)" title. A single entry that alone
// exceeds the limits still occupies its own batch: entries are never split.
func Build(courseName string, items []canvas.Item) []Batch {
	if len(items) == 0 {
		return nil
	}

	contTitle := fmt.Sprintf("New items found for %s (continued):", courseName)

	var out []Batch
	cur := Batch{Title: fmt.Sprintf("New items found for %s:", courseName)}
	size := utf8.RuneCountInString(cur.Title)

	for _, item := range items {
		e := render(item)
		esize := utf8.RuneCountInString(e.Label) + utf8.RuneCountInString(e.Value)

		if len(cur.Entries) > 0 && (len(cur.Entries) == MaxEntries || size+esize > MaxChars) {
			out = append(out, cur)
			cur = Batch{Title: contTitle}
			size = utf8.RuneCountInString(contTitle)
		}

		cur.Entries = append(cur.Entries, e)
		size += esize
	}

	if len(cur.Entries) > 0 {
		out = append(out, cur)
	}
	return out
}

func render(item canvas.Item) Entry {
	title := Truncate(item.Title)
	if item.URL != "" {
		title = fmt.Sprintf("[%s](%s)", title, item.URL)
	}
	return Entry{Label: item.Kind.Label(), Value: title}
}

// Truncate shortens s to [MaxTitleLength] runes, replacing the tail with an
// ellipsis so the result is exactly [MaxTitleLength] runes long.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}
	return string([]rune(s)[:MaxTitleLength-3]) + "..."
}
