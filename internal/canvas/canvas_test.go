// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"go.astrophena.name/canvasbot/internal/testutil"
)

const canvasToken = "test-canvas-token"

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testClient(m *http.ServeMux) *Client {
	return New(Config{
		BaseURL: "https://canvas.example.edu",
		Token:   canvasToken,
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				w := httptest.NewRecorder()
				m.ServeHTTP(w, r)
				return w.Result(), nil
			}),
		},
	})
}

func respondJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

func TestGetCourse(t *testing.T) {
	t.Parallel()

	m := http.NewServeMux()
	m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("Authorization"), "Bearer "+canvasToken)
		respondJSON(t, w, map[string]any{"id": 53523, "name": "Biology 200"})
	})

	course, err := testClient(m).GetCourse(context.Background(), 53523)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, course, &Course{ID: 53523, Name: "Biology 200"})
}

func TestGetCourseErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status  int
		body    string
		wantErr error
	}{
		"not found": {
			status:  http.StatusNotFound,
			body:    `{"errors":[{"message":"The specified resource does not exist."}]}`,
			wantErr: ErrNotFound,
		},
		"invalid token": {
			status:  http.StatusUnauthorized,
			body:    `{"errors":[{"message":"Invalid access token."}]}`,
			wantErr: ErrInvalidToken,
		},
		"unauthorized": {
			status:  http.StatusUnauthorized,
			body:    `{"errors":[{"message":"user not authorized to perform that action"}]}`,
			wantErr: ErrUnauthorized,
		},
		"forbidden": {
			status:  http.StatusForbidden,
			body:    `{"errors":[{"message":"user not authorized to perform that action"}]}`,
			wantErr: ErrUnauthorized,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m := http.NewServeMux()
			m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523", func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tc.body, tc.status)
			})

			_, err := testClient(m).GetCourse(context.Background(), 53523)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
			testutil.AssertEqual(t, IsAccessRevoked(err), true)
		})
	}
}

func TestGetCourseTransientError(t *testing.T) {
	t.Parallel()

	m := http.NewServeMux()
	m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})

	_, err := testClient(m).GetCourse(context.Background(), 53523)
	if err == nil {
		t.Fatal("want error, got nil")
	}
	testutil.AssertEqual(t, IsAccessRevoked(err), false)
}

func TestModuleTree(t *testing.T) {
	t.Parallel()

	m := http.NewServeMux()
	m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523/modules", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, []map[string]any{
			{"id": 1, "name": "Week 1"},
			{"id": 2, "name": ""}, // unpublished, skipped
			{"id": 3, "name": "Week 2"},
		})
	})
	m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523/modules/1/items", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, []map[string]any{
			{"id": 10, "title": "Syllabus", "html_url": "https://canvas.example.edu/courses/53523/modules/items/10"},
			{"id": 11, "title": ""}, // unpublished, skipped
		})
	})
	m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523/modules/3/items", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, []map[string]any{
			{"id": 12, "title": "Lab 1", "html_url": "https://canvas.example.edu/courses/53523/modules/items/12"},
		})
	})

	tree, err := testClient(m).ModuleTree(context.Background(), 53523)
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, tree, []Item{
		{ID: "module:1", Kind: KindModule, Title: "Week 1"},
		{ID: "item:10", Kind: KindModuleItem, Title: "Syllabus", URL: "https://canvas.example.edu/courses/53523/modules/items/10"},
		{ID: "module:3", Kind: KindModule, Title: "Week 2"},
		{ID: "item:12", Kind: KindModuleItem, Title: "Lab 1", URL: "https://canvas.example.edu/courses/53523/modules/items/12"},
	})
}

func TestModuleTreePagination(t *testing.T) {
	t.Parallel()

	// 150 modules: a full first page and a short second one.
	const total = perPage + 50

	m := http.NewServeMux()
	m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523/modules", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			t.Fatalf("bad page parameter: %v", err)
		}
		testutil.AssertEqual(t, r.URL.Query().Get("per_page"), strconv.Itoa(perPage))

		var modules []map[string]any
		for i := (page-1)*perPage + 1; i <= min(page*perPage, total); i++ {
			modules = append(modules, map[string]any{"id": i, "name": fmt.Sprintf("Module %d", i)})
		}
		respondJSON(t, w, modules)
	})
	m.HandleFunc("GET canvas.example.edu/api/v1/courses/53523/modules/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, []map[string]any{})
	})

	tree, err := testClient(m).ModuleTree(context.Background(), 53523)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(tree), total)
	testutil.AssertEqual(t, tree[0].ID, "module:1")
	testutil.AssertEqual(t, tree[total-1].ID, "module:"+strconv.Itoa(total))
}
