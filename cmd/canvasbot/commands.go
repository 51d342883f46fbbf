// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.astrophena.name/canvasbot/internal/canvas"
	"go.astrophena.name/canvasbot/internal/cli"
)

// track subscribes a channel to a course. The course must be reachable with
// the current credentials; the first reconciliation cycle after that records
// the whole existing tree as seen, so only content published later is
// announced.
func (t *tracker) track(ctx context.Context, env *cli.Env, courseID int64, handle string) error {
	course, err := t.canvas.GetCourse(ctx, courseID)
	if err != nil {
		switch {
		case errors.Is(err, canvas.ErrNotFound):
			fmt.Fprintf(env.Stdout, "Course %d could not be found.\n", courseID)
			return nil
		case canvas.IsAccessRevoked(err):
			fmt.Fprintf(env.Stdout, "Course %d exists but is not accessible with the current credentials.\n", courseID)
			return nil
		}
		return err
	}

	added, err := t.store.AddWatcher(courseID, handle)
	if err != nil {
		return err
	}
	if err := t.store.SetName(courseID, course.Name); err != nil {
		return err
	}

	if added {
		fmt.Fprintf(env.Stdout, "Channel %s is now tracking %s.\n", handle, course.Name)
	} else {
		fmt.Fprintf(env.Stdout, "Channel %s is already tracking %s.\n", handle, course.Name)
	}
	return nil
}

// untrack unsubscribes a channel from a course. It works entirely on local
// state, so a course can be dropped even after access to it was revoked. The
// last watcher leaving removes the course directory.
func (t *tracker) untrack(env *cli.Env, courseID int64, handle string) error {
	name := t.store.Name(courseID)

	removed, err := t.store.RemoveWatcher(courseID, handle)
	if err != nil {
		return err
	}

	watchers, err := t.store.Watchers(courseID)
	if err != nil {
		return err
	}
	if len(watchers) == 0 {
		if err := t.store.Delete(courseID); err != nil {
			return err
		}
	}

	if removed {
		fmt.Fprintf(env.Stdout, "Channel %s is no longer tracking %s.\n", handle, name)
	} else {
		fmt.Fprintf(env.Stdout, "Channel %s is not tracking %s.\n", handle, name)
	}
	return nil
}

// list prints the courses a channel is watching, one per line.
func (t *tracker) list(env *cli.Env, handle string) error {
	courses, err := t.store.Courses()
	if err != nil {
		return err
	}

	var n int
	for _, courseID := range courses {
		watchers, err := t.store.Watchers(courseID)
		if err != nil {
			return err
		}
		if !slices.Contains(watchers, handle) {
			continue
		}
		fmt.Fprintf(env.Stdout, "%d\t%s\n", courseID, t.store.Name(courseID))
		n++
	}
	if n == 0 {
		fmt.Fprintf(env.Stdout, "Channel %s is not tracking any courses.\n", handle)
	}
	return nil
}
