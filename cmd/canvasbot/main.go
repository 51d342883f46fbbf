// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.astrophena.name/canvasbot/internal/announce"
	"go.astrophena.name/canvasbot/internal/canvas"
	"go.astrophena.name/canvasbot/internal/cli"
	"go.astrophena.name/canvasbot/internal/discord"
	"go.astrophena.name/canvasbot/internal/logger"
	"go.astrophena.name/canvasbot/internal/store"
)

func main() { cli.Main(new(tracker)) }

type tracker struct {
	running atomic.Bool

	init     sync.Once
	initErr  error
	loadOnce sync.Once

	// configuration, read from the environment in Run
	canvasURL    string
	canvasToken  string
	discordToken string
	stateDir     string
	adminAddr    string

	// flags
	dry      bool
	interval time.Duration

	// initialized by doInit
	logf      logger.Logf
	slog      *slog.Logger
	slogLevel *slog.LevelVar
	scrubber  *strings.Replacer
	httpc     *http.Client
	store     *store.Store
	canvas    *canvas.Client
	sink      *discord.Sink
	feeds     *announce.Fetcher

	config map[int64]*courseConfig

	// sleep is used to wait between reconciliation cycles, swapped in tests.
	sleep func(context.Context, time.Duration) bool
	// ready, if set, is called with the admin API address once it is bound.
	ready func(addr string)
}

func (t *tracker) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&t.dry, "dry", false, "Print what would be sent instead of sending.")
	fs.DurationVar(&t.interval, "interval", time.Hour, "How often serve reconciles all courses.")
	fs.StringVar(&t.adminAddr, "admin-addr", "", "Admin API address used by serve (overrides ADMIN_ADDR).")
}

var errAlreadyRunning = errors.New("another reconciliation cycle is running")

func (t *tracker) Run(ctx context.Context, env *cli.Env) (err error) {
	if len(env.Args) == 0 {
		return fmt.Errorf("%w: no command specified, try \"run\"", cli.ErrInvalidArgs)
	}

	t.canvasURL = env.Getenv("CANVAS_URL")
	t.canvasToken = env.Getenv("CANVAS_TOKEN")
	t.discordToken = env.Getenv("DISCORD_TOKEN")
	t.adminAddr = cmp.Or(t.adminAddr, env.Getenv("ADMIN_ADDR"), "localhost:3000")
	t.stateDir = cmp.Or(t.stateDir, env.Getenv("STATE_DIRECTORY"))
	if t.stateDir == "" {
		stateHome := cmp.Or(env.Getenv("XDG_STATE_HOME"), filepath.Join(env.Getenv("HOME"), ".local", "state"))
		t.stateDir = filepath.Join(stateHome, "canvasbot")
	}

	if t.canvasURL == "" || t.canvasToken == "" {
		return fmt.Errorf("%w: CANVAS_URL and CANVAS_TOKEN must be set", cli.ErrInvalidArgs)
	}

	t.init.Do(func() { t.initErr = t.doInit(env) })
	if t.initErr != nil {
		return t.initErr
	}

	if err := t.loadConfig(); err != nil {
		return err
	}

	cmd, args := env.Args[0], env.Args[1:]

	switch cmd {
	case "run":
		return t.runCycle(ctx)
	case "serve":
		return t.serve(ctx)
	case "track":
		courseID, handle, err := courseAndChannelArgs(cmd, args)
		if err != nil {
			return err
		}
		return t.track(ctx, env, courseID, handle)
	case "untrack":
		courseID, handle, err := courseAndChannelArgs(cmd, args)
		if err != nil {
			return err
		}
		return t.untrack(env, courseID, handle)
	case "list":
		if len(args) != 1 {
			return fmt.Errorf("%w: usage: list <channel_id>", cli.ErrInvalidArgs)
		}
		return t.list(env, args[0])
	}

	return fmt.Errorf("%w: unknown command %q", cli.ErrInvalidArgs, cmd)
}

func courseAndChannelArgs(cmd string, args []string) (courseID int64, handle string, err error) {
	if len(args) != 2 {
		return 0, "", fmt.Errorf("%w: usage: %s <course_id> <channel_id>", cli.ErrInvalidArgs, cmd)
	}
	courseID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil || courseID <= 0 {
		return 0, "", fmt.Errorf("%w: %q is not a valid course id", cli.ErrInvalidArgs, args[0])
	}
	return courseID, args[1], nil
}

func (t *tracker) doInit(env *cli.Env) error {
	t.logf = env.Logf

	if t.slogLevel == nil {
		t.slogLevel = new(slog.LevelVar)
	}
	if t.dry {
		t.slogLevel.Set(slog.LevelDebug)
	}
	if t.slog == nil {
		t.slog = slog.New(slog.NewTextHandler(env.Stderr, &slog.HandlerOptions{Level: t.slogLevel}))
	}

	var scrubPairs []string
	for _, secret := range []string{t.canvasToken, t.discordToken} {
		if secret != "" {
			scrubPairs = append(scrubPairs, secret, "[EXPUNGED]")
		}
	}
	t.scrubber = strings.NewReplacer(scrubPairs...)

	if err := os.MkdirAll(t.stateDir, 0o755); err != nil {
		return err
	}

	t.store = store.New(filepath.Join(t.stateDir, "courses"))
	t.canvas = canvas.New(canvas.Config{
		BaseURL:    t.canvasURL,
		Token:      t.canvasToken,
		HTTPClient: t.httpc,
		Scrubber:   t.scrubber,
	})
	t.sink = discord.New(discord.Config{
		Token:      t.discordToken,
		HTTPClient: t.httpc,
		Scrubber:   t.scrubber,
		Logger:     t.slog,
	})
	t.feeds = announce.New(t.httpc)

	if t.sleep == nil {
		t.sleep = sleep
	}

	return nil
}

func (t *tracker) loadConfig() (err error) {
	t.loadOnce.Do(func() {
		var cfg map[int64]*courseConfig
		cfg, err = t.parseConfigFile(filepath.Join(t.stateDir, "config.star"))
		if err != nil {
			return
		}
		t.config = cfg
	})
	return err
}

func (t *tracker) webLogf() logger.Logf {
	return log.New(t.logf, "web: ", 0).Printf
}

func sleep(ctx context.Context, d time.Duration) bool {
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return true
	case <-ctx.Done():
		return false
	}
}
