// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/canvasbot/internal/testutil"
)

func TestHandleCourses(t *testing.T) {
	t.Parallel()

	tm := testMux(t, nil)
	tr := testTracker(t, tm)

	if _, err := tr.store.AddWatcher(courseID, "111"); err != nil {
		t.Fatal(err)
	}
	if err := tr.store.WriteSnapshot(courseID, []string{"module:1", "item:10"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.store.SetName(courseID, "Biology 200"); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	tr.handleCourses(w, httptest.NewRequest(http.MethodGet, "/api/courses", nil))

	testutil.AssertEqual(t, w.Code, http.StatusOK)
	courses := testutil.UnmarshalJSON[[]courseInfo](t, w.Body.Bytes())
	testutil.AssertEqual(t, courses, []courseInfo{{
		ID:       courseID,
		Name:     "Biology 200",
		Watchers: []string{"111"},
		Known:    2,
	}})
}

func TestHandleRun(t *testing.T) {
	t.Parallel()

	tm := testMux(t, nil)
	tr := testTracker(t, tm)

	if _, err := tr.store.AddWatcher(courseID, "111"); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	tr.handleRun(w, httptest.NewRequest(http.MethodPost, "/api/run", nil))

	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, len(tm.sentMessages), 1)
}

func TestHandleRunConflict(t *testing.T) {
	t.Parallel()

	tr := testTracker(t, testMux(t, nil))
	tr.running.Store(true)
	defer tr.running.Store(false)

	w := httptest.NewRecorder()
	tr.handleRun(w, httptest.NewRequest(http.MethodPost, "/api/run", nil))

	testutil.AssertEqual(t, w.Code, http.StatusConflict)
}
