// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.astrophena.name/canvasbot/internal/testutil"
)

func TestMake(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("X-Test"), "yes")
		w.Write([]byte(`{"message": "hello"}`))
	}))
	defer srv.Close()

	res, err := Make[struct {
		Message string `json:"message"`
	}](context.Background(), Params{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "yes"},
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, res.Message, "hello")
}

func TestMakeStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := Make[IgnoreResponse](context.Background(), Params{
		Method: http.MethodGet,
		URL:    srv.URL,
	})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("got error %v, want a StatusError", err)
	}
	testutil.AssertEqual(t, statusErr.StatusCode, http.StatusTeapot)
}

func TestMakeScrubsErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token secret123 is invalid", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Make[IgnoreResponse](context.Background(), Params{
		Method:   http.MethodGet,
		URL:      srv.URL,
		Scrubber: strings.NewReplacer("secret123", "[EXPUNGED]"),
	})
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if strings.Contains(err.Error(), "secret123") {
		t.Fatalf("error message %q leaks the secret", err)
	}
	if !strings.Contains(err.Error(), "[EXPUNGED]") {
		t.Fatalf("error message %q wasn't scrubbed", err)
	}
}
