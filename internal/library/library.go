package library

import (
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"episode-publisher/internal/models"
)

// Scanner enumerates audio files with a single extension in one directory.
// Subdirectories are not descended into.
type Scanner struct {
	root string
	ext  string
}

// NewScanner creates a Scanner for root matching ext (case-insensitive).
func NewScanner(root string, ext string) *Scanner {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Scanner{root: root, ext: ext}
}

// Root returns the scanned directory.
func (s *Scanner) Root() string {
	return s.root
}

// Matches reports whether name carries the scanner's extension.
func (s *Scanner) Matches(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.ToLower(filepath.Ext(base)) == s.ext
}

// Scan returns a lazy sequence of candidates. Each iteration re-reads the
// directory, so ranging over the result again rescans it. A directory read
// error is yielded once and ends the sequence.
func (s *Scanner) Scan() iter.Seq2[models.Candidate, error] {
	return func(yield func(models.Candidate, error) bool) {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			yield(models.Candidate{}, err)
			return
		}

		for _, entry := range entries {
			if entry.IsDir() || !s.Matches(entry.Name()) {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				if !yield(models.Candidate{}, err) {
					return
				}
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}

			candidate := models.Candidate{
				Path:          filepath.Join(s.root, entry.Name()),
				Filename:      entry.Name(),
				FilesizeBytes: info.Size(),
				ModifiedAt:    info.ModTime().UTC().Round(time.Second),
			}
			if !yield(candidate, nil) {
				return
			}
		}
	}
}
