// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	"go.astrophena.name/canvasbot/internal/canvas"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Per-course configuration, declared in config.star.

type courseConfig struct {
	id                int64
	announcementsFeed string
	blockRule         *starlark.Function
	keepRule          *starlark.Function
}

func (c *courseConfig) String() string        { return fmt.Sprintf("<course id=%d>", c.id) }
func (c *courseConfig) Type() string          { return "course" }
func (c *courseConfig) Freeze()               {} // immutable
func (c *courseConfig) Truth() starlark.Bool  { return starlark.Bool(c.id != 0) }
func (c *courseConfig) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", c.Type()) }

func courseBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, errors.New("unexpected positional arguments")
	}
	c := new(courseConfig)
	if err := starlark.UnpackArgs("course", args, kwargs,
		"id", &c.id,
		"announcements_feed?", &c.announcementsFeed,
		"block_rule?", &c.blockRule,
		"keep_rule?", &c.keepRule,
	); err != nil {
		return nil, err
	}
	if c.id <= 0 {
		return nil, fmt.Errorf("invalid course id %d", c.id)
	}
	return c, nil
}

// parseConfigFile reads per-course options from path. A missing file means no
// course has any.
func (t *tracker) parseConfigFile(path string) (map[int64]*courseConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return t.parseConfig(string(b))
}

func (t *tracker) parseConfig(config string) (map[int64]*courseConfig, error) {
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { t.logf("%s", msg) },
		},
		"config.star",
		config,
		starlark.StringDict{
			"course": starlark.NewBuiltin("course", courseBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	coursesList, ok := globals["courses"].(*starlark.List)
	if !ok {
		return nil, errors.New("courses must be defined and be a list")
	}

	courses := make(map[int64]*courseConfig)

	for elem := range coursesList.Elements() {
		cc, ok := elem.(*courseConfig)
		if !ok {
			continue
		}
		if cc.announcementsFeed != "" {
			if _, err := url.Parse(cc.announcementsFeed); err != nil {
				return nil, fmt.Errorf("invalid announcements feed URL %q of course %d", cc.announcementsFeed, cc.id)
			}
		}
		if _, dup := courses[cc.id]; dup {
			return nil, fmt.Errorf("course %d is declared twice", cc.id)
		}
		courses[cc.id] = cc
	}

	return courses, nil
}

// filterItems applies the course's block and keep rules to items. Filtered
// items are not announced, but the caller still records them as seen.
func (t *tracker) filterItems(cc *courseConfig, items []canvas.Item) []canvas.Item {
	if cc.blockRule == nil && cc.keepRule == nil {
		return items
	}

	var kept []canvas.Item
	for _, item := range items {
		if cc.blockRule != nil {
			if blocked := t.applyRule(cc.blockRule, item); blocked {
				t.slog.Debug("blocked by block rule", "item", item.ID)
				continue
			}
		}
		if cc.keepRule != nil {
			if keep := t.applyRule(cc.keepRule, item); !keep {
				t.slog.Debug("skipped by keep rule", "item", item.ID)
				continue
			}
		}
		kept = append(kept, item)
	}
	return kept
}

func (t *tracker) applyRule(rule *starlark.Function, item canvas.Item) bool {
	val, err := starlark.Call(
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { t.slog.Info(msg) },
		},
		rule,
		starlark.Tuple{starlarkstruct.FromStringDict(
			starlarkstruct.Default,
			starlark.StringDict{
				"id":    starlark.String(item.ID),
				"kind":  starlark.String(item.Kind.Label()),
				"title": starlark.String(item.Title),
				"url":   starlark.String(item.URL),
			},
		)},
		[]starlark.Tuple{},
	)
	if err != nil {
		t.slog.Warn("applying rule for item", "item", item.ID, "error", err)
		return false
	}
	return bool(val.Truth())
}
