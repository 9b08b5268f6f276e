// Package extractor wraps the external yt-dlp-compatible binary: subprocess
// invocation, JSON-metadata caching through the store, and locating the
// resulting media file on disk. Grounded on
// original_source/myousync/src/ytdlp.rs.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/splamy/myousync/internal/ratelimit"
	"github.com/splamy/myousync/internal/store"
)

// subtrees stripped from the raw JSON before persistence: these are large
// and never read back.
var prunedKeys = []string{"formats", "heatmap", "requested_formats", "automatic_captions"}

// Metadata is the structured view of an extractor response: title, optional
// track/artist/album, channel, duration.
type Metadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
	Album    *string `json:"album,omitempty"`
	Artist   *string `json:"artist,omitempty"`
	Track    *string `json:"track,omitempty"`
}

// CommandError wraps a nonzero exit or unparseable stdout from the
// extractor subprocess, carrying the trimmed stderr as the operator-visible
// failure reason.
type CommandError struct {
	Stderr string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("extractor command failed: %s", e.Stderr)
}

// Extractor runs the configured binary, rate-limited, caching results in
// the store.
type Extractor struct {
	store   *store.Store
	limiter *ratelimit.Limiter
	binary  string
	tempDir string
}

// New constructs an Extractor. rate is the minimum spacing between
// subprocess invocations (scrape.yt_dlp_rate in configuration).
func New(s *store.Store, binary, tempDir string, rate time.Duration) *Extractor {
	return &Extractor{
		store:   s,
		limiter: ratelimit.New(rate),
		binary:  binary,
		tempDir: tempDir,
	}
}

// Acquire returns cached metadata for remoteID if present; otherwise it
// rate-limits, runs the extractor subprocess, prunes and persists the
// result, and returns the parsed structured view.
func (e *Extractor) Acquire(ctx context.Context, remoteID string) (*Metadata, error) {
	if cached, ok, err := e.TryGetMetadata(remoteID); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	e.limiter.Wait()

	watchURL := "https://www.youtube.com/watch?v=" + remoteID

	cmd := exec.CommandContext(ctx, e.binary,
		"--quiet",
		"--dump-json",
		"--no-simulate",
		"--extract-audio",
		"--embed-thumbnail",
		"--format", "ba",
		"--sponsorblock-remove", "music_offtopic",
		"--use-extractors", "youtube",
		"--output", "%(id)s.%(ext)s",
		watchURL,
	)
	cmd.Dir = e.tempDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var raw map[string]any
	if jsonErr := json.Unmarshal(stdout.Bytes(), &raw); jsonErr != nil || runErr != nil {
		return nil, &CommandError{Stderr: strings.TrimSpace(stderr.String())}
	}

	for _, key := range prunedKeys {
		delete(raw, key)
	}

	pruned, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode pruned extractor metadata: %w", err)
	}

	if err := e.store.SetYtDlpCache(remoteID, string(pruned)); err != nil {
		return nil, fmt.Errorf("persist extractor cache for %q: %w", remoteID, err)
	}

	var meta Metadata
	if err := json.Unmarshal(pruned, &meta); err != nil {
		return nil, fmt.Errorf("parse extractor metadata for %q: %w", remoteID, err)
	}
	return &meta, nil
}

// TryGetMetadata is a cache-only read: it never invokes the subprocess.
func (e *Extractor) TryGetMetadata(remoteID string) (*Metadata, bool, error) {
	data, ok, err := e.store.TryGetYtDlpCache(remoteID)
	if err != nil {
		return nil, false, fmt.Errorf("read extractor cache for %q: %w", remoteID, err)
	}
	if !ok {
		return nil, false, nil
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, false, fmt.Errorf("parse cached extractor metadata for %q: %w", remoteID, err)
	}
	return &meta, true, nil
}

// FindLocalFile globs <tempDir>/<remoteID>.* and returns the first match,
// or "" if none exists.
func (e *Extractor) FindLocalFile(remoteID string) (string, bool, error) {
	matches, err := filepath.Glob(filepath.Join(e.tempDir, remoteID+".*"))
	if err != nil {
		return "", false, fmt.Errorf("glob temp dir for %q: %w", remoteID, err)
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	return matches[0], true, nil
}
