// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store manages the per-course on-disk state.
//
// Every tracked course owns a directory named after its id, holding three
// line-terminated UTF-8 text files:
//
//	modules.txt     one known item id per line (the snapshot)
//	watchers.txt    one notification channel id per line
//	course_name.txt the cached course display name, single line
//
// A course directory exists if and only if at least one watcher is
// registered for it. The package assumes a single writer per course.
package store

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.astrophena.name/canvasbot/internal/atomicio"
	"go.astrophena.name/canvasbot/internal/util/set"
)

const (
	snapshotFile = "modules.txt"
	watchersFile = "watchers.txt"
	nameFile     = "course_name.txt"
)

// UnknownCourseName is returned by [Store.Name] when no display name has been
// cached yet.
const UnknownCourseName = "unknown course"

// Store manages course directories under a single root.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created lazily.
func New(dir string) *Store { return &Store{root: dir} }

func (s *Store) courseDir(courseID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(courseID, 10))
}

// Courses returns the ids of all tracked courses, ascending. Directory names
// that are not well-formed positive integers are ignored.
func (s *Store) Courses() ([]int64, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var ids []int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Ensure creates the course directory and its empty snapshot and watcher
// files if they don't exist yet. It is idempotent and never destroys
// existing data.
func (s *Store) Ensure(courseID int64) error {
	dir := s.courseDir(courseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range []string{snapshotFile, watchersFile} {
		if err := touch(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Delete recursively removes all local state for a course. Removing a course
// that has no state is not an error.
func (s *Store) Delete(courseID int64) error {
	return os.RemoveAll(s.courseDir(courseID))
}

// Snapshot returns the set of item ids known as of the last successful
// reconciliation. A missing file yields an empty set.
func (s *Store) Snapshot(courseID int64) (set.Set[string], error) {
	if err := s.Ensure(courseID); err != nil {
		return nil, err
	}
	lines, err := readLines(filepath.Join(s.courseDir(courseID), snapshotFile))
	if err != nil {
		return nil, err
	}
	return set.NewFromSlice(lines...), nil
}

// WriteSnapshot atomically replaces the snapshot with the given ids, one per
// line, in the supplied order.
func (s *Store) WriteSnapshot(courseID int64, ids []string) error {
	if err := s.Ensure(courseID); err != nil {
		return err
	}
	return atomicio.WriteFile(filepath.Join(s.courseDir(courseID), snapshotFile), joinLines(ids), 0o644)
}

// Watchers returns the channel ids watching the course, in file order.
func (s *Store) Watchers(courseID int64) ([]string, error) {
	if err := s.Ensure(courseID); err != nil {
		return nil, err
	}
	return readLines(filepath.Join(s.courseDir(courseID), watchersFile))
}

// AddWatcher appends handle to the course's watcher list if it's not there
// yet and reports whether it was newly added.
//
// The file is opened once for both the duplicate scan and the append; the
// scan compares whole lines including the terminator, so a previously
// interrupted partial write can never mask a handle.
func (s *Store) AddWatcher(courseID int64, handle string) (added bool, err error) {
	if err := s.Ensure(courseID); err != nil {
		return false, err
	}

	f, err := os.OpenFile(filepath.Join(s.courseDir(courseID), watchersFile), os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return false, err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	b, err := io.ReadAll(f)
	if err != nil {
		return false, err
	}

	line := handle + "\n"
	rest := string(b)
	for {
		idx := strings.IndexByte(rest, '\n')
		if idx == -1 {
			break
		}
		if rest[:idx+1] == line {
			return false, nil
		}
		rest = rest[idx+1:]
	}

	// Writes go to the end of the file regardless of any prior reads.
	if _, err := f.WriteString(line); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveWatcher rewrites the watcher list omitting handle and reports whether
// it was present.
func (s *Store) RemoveWatcher(courseID int64, handle string) (removed bool, err error) {
	watchers, err := s.Watchers(courseID)
	if err != nil {
		return false, err
	}

	kept := slices.DeleteFunc(slices.Clone(watchers), func(w string) bool { return w == handle })
	if len(kept) == len(watchers) {
		return false, nil
	}

	return true, s.SetWatchers(courseID, kept)
}

// SetWatchers atomically replaces the watcher list.
func (s *Store) SetWatchers(courseID int64, handles []string) error {
	if err := s.Ensure(courseID); err != nil {
		return err
	}
	return atomicio.WriteFile(filepath.Join(s.courseDir(courseID), watchersFile), joinLines(handles), 0o644)
}

// SetName caches the course display name. Best effort: the name is only used
// to label notifications.
func (s *Store) SetName(courseID int64, name string) error {
	if err := s.Ensure(courseID); err != nil {
		return err
	}
	return atomicio.WriteFile(filepath.Join(s.courseDir(courseID), nameFile), []byte(name+"\n"), 0o644)
}

// Name returns the cached course display name, or [UnknownCourseName] if none
// was stored.
func (s *Store) Name(courseID int64) string {
	b, err := os.ReadFile(filepath.Join(s.courseDir(courseID), nameFile))
	if err != nil {
		return UnknownCourseName
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return UnknownCourseName
	}
	return name
}

func readLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(b), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func joinLines(lines []string) []byte {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
