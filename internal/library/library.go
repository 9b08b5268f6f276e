// Package library manages the on-disk music tree: filename sanitization,
// path composition, atomic placement, deletion with upward empty-directory
// pruning, and an in-memory remote-id → path cache rebuilt by tag scan.
// Grounded on original_source/myousync/src/musicfiles.rs.
package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/splamy/myousync/internal/tags"
)

// sanitizeLimit is the maximum filename component length.
const sanitizeLimit = 64

// sanitizeFallback is substituted when sanitizing leaves nothing usable.
const sanitizeFallback = "song"

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize produces a filesystem-safe, human-readable path component:
// unsafe characters stripped, runs of whitespace collapsed, length-limited,
// leading/trailing spaces and full stops trimmed, falling back to "song"
// when the result would be empty. Mirrors musicfiles.rs's SANITIZE_OPTIONS.
func Sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ". ")

	if len(s) > sanitizeLimit {
		s = s[:sanitizeLimit]
		s = strings.TrimRight(s, ". ")
	}

	if s == "" {
		return sanitizeFallback
	}
	return s
}

// Paths names the filesystem trees this package operates under: file
// placement, deletion, and directory cleanup never cross outside them.
type Paths struct {
	Music   string
	Temp    string
	Migrate string // optional; empty if unconfigured
}

func (p Paths) bases() []string {
	bases := []string{p.Music, p.Temp}
	if p.Migrate != "" {
		bases = append(bases, p.Migrate)
	}
	return bases
}

// isSubPath reports whether path lies strictly below one of the
// configured base directories.
func (p Paths) isSubPath(path string) bool {
	for _, base := range p.bases() {
		if base == "" {
			continue
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			continue
		}
		if rel != "." && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// Metadata is the subset of resolved tag data needed to place a file.
type Metadata struct {
	Title         string
	Artist        []string
	Album         string
	RemoteVideoID string
}

// Library manages the music tree and its remote-id → path index.
type Library struct {
	paths Paths

	mu    sync.Mutex
	cache map[string]string // remote video id -> absolute path
}

// New constructs a Library over the given configured trees.
func New(paths Paths) *Library {
	return &Library{paths: paths, cache: make(map[string]string)}
}

// destinationPath composes <music>/<artist>/<album>/<title>.<ext>.
func (l *Library) destinationPath(meta Metadata, ext string) string {
	artist := Sanitize(strings.Join(meta.Artist, "; "))
	album := meta.Album
	if album == "" {
		album = meta.Title
	}
	album = Sanitize(album)
	title := Sanitize(meta.Title)
	return filepath.Join(l.paths.Music, artist, album, title+"."+strings.TrimPrefix(ext, "."))
}

// Place moves src into the library tree according to meta, preferring an
// atomic rename and falling back to copy+delete, then updates the path
// cache. Returns the final destination path.
func (l *Library) Place(src string, meta Metadata) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(src), ".")
	if ext == "" {
		ext = "mp3"
	}
	dest := l.destinationPath(meta, ext)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create library directory: %w", err)
	}

	if err := l.moveFile(src, dest); err != nil {
		return "", err
	}

	l.mu.Lock()
	l.cache[meta.RemoteVideoID] = dest
	l.mu.Unlock()

	return dest, nil
}

func (l *Library) moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		l.cleanupDirectory(src)
		return nil
	}

	if err := copyFile(src, dest); err != nil {
		return fmt.Errorf("move file: rename and copy both failed: %w", err)
	}
	if err := l.Delete(src); err != nil {
		return fmt.Errorf("delete source after copy: %w", err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Delete removes path, refusing unless it lies strictly below one of the
// configured base trees, then prunes any now-empty parent directories
// upward, stopping at (and never removing) a configured base.
func (l *Library) Delete(path string) error {
	if !l.paths.isSubPath(path) {
		return fmt.Errorf("refusing to delete %q: not under a configured base path", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	l.cleanupDirectory(path)
	return nil
}

func (l *Library) cleanupDirectory(file string) {
	if !l.paths.isSubPath(file) {
		return
	}

	parent := filepath.Dir(file)
	for l.paths.isSubPath(parent) {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(parent); err != nil {
			return
		}
		parent = filepath.Dir(parent)
	}
}

// FindLocalFile returns the cached path for remoteVideoID if it's still
// valid (the file's youtube_id comment still matches); otherwise, unless
// the item is known Disabled, it rebuilds the cache by scanning the music
// and migrate trees and tries again.
func (l *Library) FindLocalFile(remoteVideoID string, disabled bool) (string, bool) {
	l.mu.Lock()
	path, ok := l.cache[remoteVideoID]
	l.mu.Unlock()

	if ok && checkFile(path, remoteVideoID) {
		return path, true
	}

	if disabled {
		return "", false
	}

	l.rebuildCache()

	l.mu.Lock()
	defer l.mu.Unlock()
	path, ok = l.cache[remoteVideoID]
	return path, ok
}

func checkFile(path, remoteVideoID string) bool {
	tag, err := tags.ReadFromPath(path)
	if err != nil {
		return false
	}
	values, ok := tag.Comment("youtube_id")
	if !ok || len(values) == 0 {
		return false
	}
	return values[0] == remoteVideoID
}

func (l *Library) rebuildCache() {
	next := make(map[string]string)
	roots := []string{l.paths.Music}
	if l.paths.Migrate != "" {
		roots = append(roots, l.paths.Migrate)
	}

	for _, root := range roots {
		if root == "" {
			continue
		}
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			tag, readErr := tags.ReadFromPath(path)
			if readErr != nil {
				return nil
			}
			values, ok := tag.Comment("youtube_id")
			if !ok || len(values) == 0 {
				return nil
			}
			next[values[0]] = path
			return nil
		})
	}

	l.mu.Lock()
	l.cache = next
	l.mu.Unlock()
}
