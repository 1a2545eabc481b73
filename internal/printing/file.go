// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package printing holds the renderer collaborators the session delegates
// to. The real receipt pipeline lives outside this repository; included
// here are a file-backed renderer for development and a no-op for paper-
// saving runs.
package printing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/klgrm/figurine/internal/session"
)

// FileRenderer writes each session's receipt as a plain text file into a
// spool directory.
type FileRenderer struct {
	dir string
	log zerolog.Logger
	now func() time.Time
}

// NewFileRenderer creates the spool directory if needed.
func NewFileRenderer(dir string, log zerolog.Logger) (*FileRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &FileRenderer{dir: dir, log: log, now: time.Now}, nil
}

// Render writes the receipt. Implements session.Renderer.
func (sf *FileRenderer) Render(identity int, answers []session.Answer) error {
	ts := sf.now()
	var b strings.Builder
	fmt.Fprintf(&b, "FIGURINE #%06d\n", identity)
	fmt.Fprintf(&b, "%s\n\n", ts.Format("2006-01-02 15:04:05"))
	for _, a := range answers {
		if a.Fallback {
			fmt.Fprintf(&b, "L%d  [fallback %d]  %s\n", a.Level, a.Index, a.EPC)
			continue
		}
		fmt.Fprintf(&b, "L%d  %s/%s  %s\n", a.Level, a.Question, a.Label, a.EPC)
	}

	name := fmt.Sprintf("receipt-%s-%06d.txt", ts.Format("20060102-150405"), identity)
	path := filepath.Join(sf.dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	sf.log.Info().Str("path", path).Msg("receipt written")
	return nil
}

// Nop discards receipts. Used with --no-print and when no printer backend
// is configured.
type Nop struct{}

func (Nop) Render(int, []session.Answer) error { return nil }
