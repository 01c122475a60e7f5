// Package spool stages downloaded photo bytes to a per-session directory on disk.
// It is not the upload queue (spec §4.7): it is staging owned by the core and
// consumed by an external sink that enqueues uploads.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Item describes one file written to the spool.
type Item struct {
	ID           uuid.UUID
	AbsolutePath string
	Filename     string
	CreatedAt    time.Time
	Bytes        int
	// ThumbnailPath is empty when thumbnail generation was skipped or failed; a
	// missing preview is never a store failure (spec §4.7 staging is best-effort
	// beyond the primary bytes).
	ThumbnailPath string
}

// Spool writes completed downloads under <root>/sabaipics/capture-spool/<sessionID>/.
type Spool struct {
	root      string
	sessionID string

	mu      sync.Mutex
	dirMade bool

	now func() time.Time
}

// New creates a Spool rooted at the caller-provided caches directory (spec §6:
// "Spool path root: a caller-provided caches directory") for one session.
func New(cachesRoot string, sessionID uuid.UUID) *Spool {
	return &Spool{
		root:      cachesRoot,
		sessionID: sessionID.String(),
		now:       time.Now,
	}
}

func (s *Spool) sessionDir() string {
	return filepath.Join(s.root, "sabaipics", "capture-spool", s.sessionID)
}

func (s *Spool) ensureDir() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirMade {
		return nil
	}
	if err := os.MkdirAll(s.sessionDir(), 0o755); err != nil {
		return fmt.Errorf("spool: create session directory: %w", err)
	}
	s.dirMade = true
	return nil
}

// Sanitize replaces path-hostile characters in a filename and substitutes a
// default when the result would be empty (spec §3: "Sanitization replaces /\: with
// -; empty names default to photo.jpg").
func Sanitize(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-")
	clean := replacer.Replace(name)
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "photo.jpg"
	}
	return clean
}

// Store atomically writes data under the session directory, naming the file
// <YYYYMMDD-HHmmss>-<handleHex?>-<sanitized filename> (spec §3). handleHex may be
// empty when the caller has no object handle to embed; Session always passes
// one, best-effort unknown-format downloads included. The write is atomic: data lands in a temp file
// first and is renamed into place only once fully flushed.
func (s *Spool) Store(data []byte, preferredFilename string, handleHex string) (Item, error) {
	if err := s.ensureDir(); err != nil {
		return Item{}, err
	}

	ts := s.now()
	name := Sanitize(preferredFilename)
	stamp := ts.Format("20060102-150405")

	finalName := stamp + "-" + name
	if handleHex != "" {
		finalName = stamp + "-" + handleHex + "-" + name
	}

	dir := s.sessionDir()
	finalPath := filepath.Join(dir, finalName)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return Item{}, fmt.Errorf("spool: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return Item{}, fmt.Errorf("spool: rename into place: %w", err)
	}

	item := Item{
		ID:           uuid.New(),
		AbsolutePath: finalPath,
		Filename:     finalName,
		CreatedAt:    ts,
		Bytes:        len(data),
	}

	if thumbPath, err := writeThumbnail(dir, finalName, data); err == nil {
		item.ThumbnailPath = thumbPath
	}

	return item, nil
}

// DeleteSession removes the entire session directory tree.
func (s *Spool) DeleteSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.sessionDir()); err != nil {
		return fmt.Errorf("spool: delete session directory: %w", err)
	}
	s.dirMade = false
	return nil
}
