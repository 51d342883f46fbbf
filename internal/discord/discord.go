// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package discord implements notification delivery over the Discord REST API.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/canvasbot/internal/batch"
	"go.astrophena.name/canvasbot/internal/request"

	"github.com/patrickmn/go-cache"
)

const (
	discordAPI     = "https://discord.com/api/v10"
	sendRetryLimit = 5 // N attempts to retry message sending

	embedColor = 0xff0000
)

// ErrUnknownChannel is returned by [Sink.Resolve] when the handle doesn't
// resolve to a reachable channel. Such handles are safe to prune.
var ErrUnknownChannel = errors.New("unknown channel")

// Config configures a Discord sink.
type Config struct {
	// Token is the Discord bot token.
	Token      string
	HTTPClient *http.Client
	Scrubber   *strings.Replacer
	Logger     *slog.Logger
}

// Channel is a resolved notification destination.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Sink resolves channel handles and sends notification batches to them.
type Sink struct {
	token    string
	httpc    *http.Client
	scrubber *strings.Replacer
	slog     *slog.Logger

	// Resolved channels are cached for an hour so one reconciliation cycle
	// costs at most one lookup per watcher.
	resolved *cache.Cache

	sleep func(context.Context, time.Duration) bool
}

// New returns a Sink sending as the bot identified by cfg.Token.
func New(cfg Config) *Sink {
	s := &Sink{
		token:    cfg.Token,
		httpc:    cfg.HTTPClient,
		scrubber: cfg.Scrubber,
		slog:     cfg.Logger,
		resolved: cache.New(time.Hour, 10*time.Minute),
	}
	if s.httpc == nil {
		s.httpc = request.DefaultClient
	}
	if s.slog == nil {
		s.slog = slog.Default()
	}
	s.sleep = sleep
	return s
}

// Resolve looks up a channel by its handle. It returns [ErrUnknownChannel]
// when the channel doesn't exist or the bot can't reach it; any other error
// is a transient failure.
func (s *Sink) Resolve(ctx context.Context, handle string) (*Channel, error) {
	if ch, ok := s.resolved.Get(handle); ok {
		return ch.(*Channel), nil
	}

	ch, err := request.Make[*Channel](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        discordAPI + "/channels/" + handle,
		Headers:    s.headers(),
		HTTPClient: s.httpc,
		Scrubber:   s.scrubber,
	})
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, handle)
			}
		}
		return nil, err
	}

	s.resolved.Set(handle, ch, cache.DefaultExpiration)
	return ch, nil
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title  string       `json:"title"`
	Color  int          `json:"color"`
	Fields []embedField `json:"fields"`
}

type message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

// Send delivers a single batch to the channel as one embed.
func (s *Sink) Send(ctx context.Context, ch *Channel, b batch.Batch) error {
	e := embed{Title: b.Title, Color: embedColor}
	for _, entry := range b.Entries {
		e.Fields = append(e.Fields, embedField{Name: entry.Label, Value: entry.Value})
	}
	return s.post(ctx, ch, &message{Embeds: []embed{e}})
}

// SendText delivers a plain text message to the channel.
func (s *Sink) SendText(ctx context.Context, ch *Channel, text string) error {
	return s.post(ctx, ch, &message{Content: text})
}

func (s *Sink) post(ctx context.Context, ch *Channel, msg *message) error {
	var err error
	for range sendRetryLimit {
		err = s.makeRequest(ctx, ch.ID, msg)
		if err == nil {
			return nil
		}
		retryable, wait := isRateLimited(err)
		if !retryable {
			break
		}
		s.slog.Warn("sending rate limited, waiting", "channel", ch.ID, "wait", wait)
		if !s.sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	return err
}

func (s *Sink) makeRequest(ctx context.Context, channelID string, msg *message) error {
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        discordAPI + "/channels/" + channelID + "/messages",
		Body:       msg,
		Headers:    s.headers(),
		HTTPClient: s.httpc,
		Scrubber:   s.scrubber,
	})
	return err
}

func (s *Sink) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bot " + s.token,
	}
}

func isRateLimited(err error) (retryable bool, wait time.Duration) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return false, 0
	}

	var errorResponse struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return false, 0
	}

	return true, time.Duration(errorResponse.RetryAfter * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
