// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.astrophena.name/canvasbot/internal/batch"
	"go.astrophena.name/canvasbot/internal/canvas"
	"go.astrophena.name/canvasbot/internal/diff"
	"go.astrophena.name/canvasbot/internal/discord"
	"go.astrophena.name/canvasbot/internal/filelock"
)

// runCycle performs one reconciliation cycle over every tracked course.
//
// Cycles are mutually exclusive, both within a process (the running flag) and
// across processes sharing a state directory (the lock file), so an on-demand
// run can never interleave with a scheduled one.
func (t *tracker) runCycle(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer t.running.Store(false)

	lock, err := filelock.Acquire(filepath.Join(t.stateDir, "run.lock"))
	if err != nil {
		if errors.Is(err, filelock.ErrAlreadyLocked) {
			return errAlreadyRunning
		}
		return err
	}
	defer lock.Release()

	courses, err := t.store.Courses()
	if err != nil {
		return err
	}
	t.slog.Debug("reconciliation cycle started", "courses", len(courses))

	for _, courseID := range courses {
		if err := ctx.Err(); err != nil {
			return err
		}
		// A failing course doesn't block the others; its state is left
		// untouched and it is retried on the next cycle.
		if err := t.reconcile(ctx, courseID); err != nil {
			t.slog.Error("course reconciliation failed", "course", courseID, "error", err)
		}
	}

	return nil
}

// reconcile runs the fetch, diff, batch, notify, persist sequence for a single
// course. The snapshot is only rewritten after every batch has been delivered,
// so a mid-cycle failure means the same items are announced again next time
// rather than silently lost.
func (t *tracker) reconcile(ctx context.Context, courseID int64) error {
	course, err := t.canvas.GetCourse(ctx, courseID)
	if err != nil {
		if canvas.IsAccessRevoked(err) {
			t.slog.Warn("course became inaccessible", "course", courseID, "error", err)
			return t.teardown(ctx, courseID)
		}
		return err
	}

	fetched, err := t.canvas.ModuleTree(ctx, courseID)
	if err != nil {
		if canvas.IsAccessRevoked(err) {
			t.slog.Warn("course became inaccessible", "course", courseID, "error", err)
			return t.teardown(ctx, courseID)
		}
		return err
	}

	cc := t.config[courseID]
	if cc != nil && cc.announcementsFeed != "" {
		anns, err := t.feeds.Fetch(ctx, cc.announcementsFeed)
		if err != nil {
			// Abandon the whole course: recording the tree without the
			// announcements would drop them from every future diff.
			return err
		}
		fetched = append(fetched, anns...)
	}

	known, err := t.store.Snapshot(courseID)
	if err != nil {
		return err
	}

	fresh := diff.Compute(fetched, known)
	notify := fresh
	if cc != nil {
		notify = t.filterItems(cc, fresh)
	}

	batches := batch.Build(course.Name, notify)
	t.slog.Debug("course reconciled",
		"course", courseID,
		"name", course.Name,
		"fetched", len(fetched),
		"new", len(fresh),
		"announced", len(notify),
		"batches", len(batches),
	)

	if t.dry {
		for _, b := range batches {
			t.logf("%s", b.Title)
			for _, e := range b.Entries {
				t.logf("  %s: %s", e.Label, e.Value)
			}
		}
		return nil
	}

	remaining, err := t.deliver(ctx, courseID, batches)
	if err != nil {
		return err
	}
	if remaining == 0 {
		t.slog.Info("no watchers remain, dropping course", "course", courseID)
		return t.store.Delete(courseID)
	}

	if err := t.store.WriteSnapshot(courseID, diff.IDs(fetched)); err != nil {
		return err
	}
	return t.store.SetName(courseID, course.Name)
}

// deliver sends every batch to every watcher of the course and returns how
// many watchers remain registered afterwards.
//
// Watchers whose channel no longer resolves are pruned from the list before
// anything is sent. A failed delivery aborts the course's cycle; because the
// snapshot hasn't been rewritten yet, the batches are rebuilt and resent on
// the next one.
func (t *tracker) deliver(ctx context.Context, courseID int64, batches []batch.Batch) (remaining int, err error) {
	watchers, err := t.store.Watchers(courseID)
	if err != nil {
		return 0, err
	}
	if len(batches) == 0 {
		return len(watchers), nil
	}

	var (
		kept  []string
		dests []*discord.Channel
	)
	for _, handle := range watchers {
		ch, err := t.sink.Resolve(ctx, handle)
		if err != nil {
			if errors.Is(err, discord.ErrUnknownChannel) {
				t.slog.Warn("pruning unreachable watcher", "course", courseID, "channel", handle)
				continue
			}
			return 0, err
		}
		kept = append(kept, handle)
		dests = append(dests, ch)
	}
	if len(kept) != len(watchers) {
		if err := t.store.SetWatchers(courseID, kept); err != nil {
			return 0, err
		}
	}

	for i, ch := range dests {
		for _, b := range batches {
			if err := t.sink.Send(ctx, ch, b); err != nil {
				return 0, fmt.Errorf("sending to channel %s: %w", kept[i], err)
			}
		}
	}

	return len(kept), nil
}

// teardown notifies the course's watchers that tracking stopped and removes
// all local state. Notification is best effort: an unreachable watcher doesn't
// keep dead state on disk.
func (t *tracker) teardown(ctx context.Context, courseID int64) error {
	name := t.store.Name(courseID)

	if t.dry {
		t.logf("would stop tracking %s (%d)", name, courseID)
		return nil
	}

	watchers, err := t.store.Watchers(courseID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("No longer tracking %s: the course was deleted or access to it was revoked.", name)
	for _, handle := range watchers {
		ch, err := t.sink.Resolve(ctx, handle)
		if err != nil {
			t.slog.Warn("skipping teardown notice", "course", courseID, "channel", handle, "error", err)
			continue
		}
		if err := t.sink.SendText(ctx, ch, text); err != nil {
			t.slog.Warn("failed to deliver teardown notice", "course", courseID, "channel", handle, "error", err)
		}
	}

	return t.store.Delete(courseID)
}
