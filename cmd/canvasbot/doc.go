// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Canvasbot notifies Discord channels about newly published Canvas course
content.

It keeps a directory per tracked course under its state directory, remembers
which modules, module items and announcements it has already seen, and on
every reconciliation cycle sends the difference to all channels watching the
course, packed into embeds that respect Discord's field and character limits.

# Usage

	$ canvasbot [flags...] <command> [arguments...]

Available commands:

  - run: perform one reconciliation cycle over all tracked courses
  - serve: reconcile periodically and expose a localhost admin API
  - track <course_id> <channel_id>: subscribe a channel to a course
  - untrack <course_id> <channel_id>: unsubscribe a channel from a course
  - list <channel_id>: list courses watched by a channel

# Configuration

Canvasbot is configured through environment variables:

  - CANVAS_URL: the root URL of the Canvas instance
  - CANVAS_TOKEN: the Canvas API access token
  - DISCORD_TOKEN: the Discord bot token
  - STATE_DIRECTORY: where course state lives (defaults to
    $XDG_STATE_HOME/canvasbot)
  - ADMIN_ADDR: the admin API address used by serve (defaults to
    localhost:3000)

An optional config.star file in the state directory declares per-course
options:

	courses = [
	    course(
	        id = 53523,
	        announcements_feed = "https://canvas.example.edu/feeds/courses/abcdef.atom",
	        block_rule = lambda item: item.title.startswith("Draft"),
	    ),
	]

block_rule and keep_rule are predicates receiving an item with id, kind,
title and url attributes; blocked items are not announced but still recorded
as seen.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/canvasbot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
