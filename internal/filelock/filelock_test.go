// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package filelock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"go.astrophena.name/canvasbot/internal/testutil"
)

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}

	// flock is per open file description, so a second acquire conflicts even
	// within one process.
	if _, err := Acquire(path); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("got error %v, want ErrAlreadyLocked", err)
	}

	// The holder's pid is recorded for debugging.
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), strconv.Itoa(os.Getpid())+"\n")

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}

	lock, err = Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseNil(t *testing.T) {
	t.Parallel()

	var lock *Lock
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
}
