// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.astrophena.name/canvasbot/internal/batch"
	"go.astrophena.name/canvasbot/internal/testutil"
)

const botToken = "test-discord-token"

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testSink(m *http.ServeMux) *Sink {
	s := New(Config{
		Token: botToken,
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				w := httptest.NewRecorder()
				m.ServeHTTP(w, r)
				return w.Result(), nil
			}),
		},
	})
	// Don't actually wait in rate limit tests.
	s.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }
	return s
}

func TestResolve(t *testing.T) {
	t.Parallel()

	var calls int
	m := http.NewServeMux()
	m.HandleFunc("GET discord.com/api/v10/channels/111", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("Authorization"), "Bot "+botToken)
		calls++
		w.Write([]byte(`{"id": "111", "name": "biology-200"}`))
	})

	s := testSink(m)

	ch, err := s.Resolve(context.Background(), "111")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, ch, &Channel{ID: "111", Name: "biology-200"})

	// Second resolve hits the cache.
	if _, err := s.Resolve(context.Background(), "111"); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, calls, 1)
}

func TestResolveUnknownChannel(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound} {
		m := http.NewServeMux()
		m.HandleFunc("GET discord.com/api/v10/channels/111", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message": "Unknown Channel", "code": 10003}`, status)
		})

		_, err := testSink(m).Resolve(context.Background(), "111")
		if !errors.Is(err, ErrUnknownChannel) {
			t.Fatalf("status %d: got error %v, want ErrUnknownChannel", status, err)
		}
	}
}

func TestResolveTransientError(t *testing.T) {
	t.Parallel()

	// 401 means a bad bot token, not a dead channel: it must not mark the
	// handle prunable.
	for _, status := range []int{http.StatusUnauthorized, http.StatusInternalServerError} {
		m := http.NewServeMux()
		m.HandleFunc("GET discord.com/api/v10/channels/111", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "oops", status)
		})

		_, err := testSink(m).Resolve(context.Background(), "111")
		if err == nil || errors.Is(err, ErrUnknownChannel) {
			t.Fatalf("status %d: got error %v, want a transient one", status, err)
		}
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	var got *message
	m := http.NewServeMux()
	m.HandleFunc("POST discord.com/api/v10/channels/111/messages", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("Authorization"), "Bot "+botToken)
		var msg message
		if err := readJSON(r, &msg); err != nil {
			t.Fatal(err)
		}
		got = &msg
		w.Write([]byte(`{}`))
	})

	b := batch.Batch{
		Title: "New items found for Biology 200:",
		Entries: []batch.Entry{
			{Label: "Module", Value: "Week 1"},
			{Label: "Module Item", Value: "[Syllabus](https://canvas.example.edu/courses/53523/modules/items/10)"},
		},
	}
	if err := testSink(m).Send(context.Background(), &Channel{ID: "111"}, b); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, got, &message{
		Embeds: []embed{{
			Title: "New items found for Biology 200:",
			Color: embedColor,
			Fields: []embedField{
				{Name: "Module", Value: "Week 1"},
				{Name: "Module Item", Value: "[Syllabus](https://canvas.example.edu/courses/53523/modules/items/10)"},
			},
		}},
	})
}

func TestSendText(t *testing.T) {
	t.Parallel()

	var got *message
	m := http.NewServeMux()
	m.HandleFunc("POST discord.com/api/v10/channels/111/messages", func(w http.ResponseWriter, r *http.Request) {
		var msg message
		if err := readJSON(r, &msg); err != nil {
			t.Fatal(err)
		}
		got = &msg
		w.Write([]byte(`{}`))
	})

	if err := testSink(m).SendText(context.Background(), &Channel{ID: "111"}, "No longer tracking Biology 200."); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, &message{Content: "No longer tracking Biology 200."})
}

func TestSendRateLimited(t *testing.T) {
	t.Parallel()

	var calls int
	m := http.NewServeMux()
	m.HandleFunc("POST discord.com/api/v10/channels/111/messages", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, `{"message": "You are being rate limited.", "retry_after": 0.1}`, http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	})

	err := testSink(m).SendText(context.Background(), &Channel{ID: "111"}, "hi")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, calls, 3)
}

func TestSendRateLimitedGivesUp(t *testing.T) {
	t.Parallel()

	var calls int
	m := http.NewServeMux()
	m.HandleFunc("POST discord.com/api/v10/channels/111/messages", func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message": "You are being rate limited.", "retry_after": 0.1}`, http.StatusTooManyRequests)
	})

	err := testSink(m).SendText(context.Background(), &Channel{ID: "111"}, "hi")
	if err == nil {
		t.Fatal("want error, got nil")
	}
	testutil.AssertEqual(t, calls, sendRetryLimit)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
