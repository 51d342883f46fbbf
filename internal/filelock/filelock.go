// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package filelock serializes reconciliation cycles across processes.
//
// The scheduled serve loop and an on-demand run may live in different
// processes sharing one state directory; both take the same lock file before
// touching course state.
package filelock

import (
	"errors"
	"os"
	"strconv"
	"syscall"
)

// ErrAlreadyLocked indicates another process is holding the lock, that is,
// running a reconciliation cycle right now.
var ErrAlreadyLocked = errors.New("another process holds the run lock")

// Lock is a held run lock. Release it when the cycle finishes.
type Lock struct{ f *os.File }

// Acquire takes a non-blocking exclusive flock on path, creating the file if
// needed, and records the holder's pid in it for debugging. It returns
// [ErrAlreadyLocked] if another process holds the lock.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			return nil, errors.Join(err, closeErr)
		}
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrAlreadyLocked
		}
		return nil, err
	}

	l := &Lock{f: f}

	// The pid is advisory: flock, not the file content, is what locks.
	if err := f.Truncate(0); err != nil {
		l.Release()
		return nil, err
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		l.Release()
		return nil, err
	}

	return l, nil
}

// Release unlocks and closes the lock file. It is safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		if closeErr := l.f.Close(); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}
	return l.f.Close()
}
