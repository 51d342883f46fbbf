// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.astrophena.name/canvasbot/internal/web"
)

// serve reconciles all tracked courses every interval and exposes the admin
// API until ctx is canceled.
func (t *tracker) serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/courses", t.handleCourses)
	mux.HandleFunc("POST /api/run", t.handleRun)

	web.Health(mux).RegisterFunc("reconciliation", func() (status string, ok bool) {
		if t.running.Load() {
			return "running", true
		}
		return "idle", true
	})

	go t.periodic(ctx)

	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:  t.adminAddr,
		Mux:   mux,
		Logf:  t.webLogf(),
		Ready: t.ready,
	})
}

func (t *tracker) periodic(ctx context.Context) {
	for {
		if err := t.runCycle(ctx); err != nil && !errors.Is(err, errAlreadyRunning) && ctx.Err() == nil {
			t.slog.Error("reconciliation cycle failed", "error", err)
		}
		if !t.sleep(ctx, t.interval) {
			return
		}
	}
}

type courseInfo struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Watchers []string `json:"watchers"`
	Known    int      `json:"known_items"`
}

func (t *tracker) handleCourses(w http.ResponseWriter, r *http.Request) {
	ids, err := t.store.Courses()
	if err != nil {
		web.RespondJSONError(w, r, err)
		return
	}

	courses := make([]courseInfo, 0, len(ids))
	for _, id := range ids {
		watchers, err := t.store.Watchers(id)
		if err != nil {
			web.RespondJSONError(w, r, err)
			return
		}
		known, err := t.store.Snapshot(id)
		if err != nil {
			web.RespondJSONError(w, r, err)
			return
		}
		courses = append(courses, courseInfo{
			ID:       id,
			Name:     t.store.Name(id),
			Watchers: watchers,
			Known:    known.Len(),
		})
	}

	web.RespondJSON(w, courses)
}

func (t *tracker) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := t.runCycle(r.Context()); err != nil {
		if errors.Is(err, errAlreadyRunning) {
			web.RespondJSONError(w, r, fmt.Errorf("%w: %v", web.ErrConflict, err))
			return
		}
		web.RespondJSONError(w, r, err)
		return
	}
	web.RespondJSON(w, map[string]string{"status": "ok"})
}
