package library

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func collect(t *testing.T, s *Scanner) []string {
	t.Helper()
	var names []string
	for candidate, err := range s.Scan() {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, candidate.Filename)
	}
	sort.Strings(names)
	return names
}

func TestScannerMatchesExtensionOnly(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"ep1.mp3":     "one",
		"EP2.MP3":     "two",
		"notes.txt":   "text",
		"clip.wav":    "wav",
		".hidden.mp3": "dot",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "nested.mp3"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "nested.mp3", "deep.mp3"), []byte("deep"), 0o644); err != nil {
		t.Fatalf("write nested: %v", err)
	}

	names := collect(t, NewScanner(root, ".mp3"))
	if len(names) != 2 || names[0] != "EP2.MP3" || names[1] != "ep1.mp3" {
		t.Fatalf("unexpected scan result %v", names)
	}
}

func TestScannerCandidateFields(t *testing.T) {
	root := t.TempDir()
	content := []byte("some audio content here")
	if err := os.WriteFile(filepath.Join(root, "My Episode 1.mp3"), content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	for candidate, err := range NewScanner(root, "mp3").Scan() {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if candidate.Filename != "My Episode 1.mp3" {
			t.Fatalf("unexpected filename %q", candidate.Filename)
		}
		if candidate.Path != filepath.Join(root, "My Episode 1.mp3") {
			t.Fatalf("unexpected path %q", candidate.Path)
		}
		if candidate.FilesizeBytes != int64(len(content)) {
			t.Fatalf("expected size %d, got %d", len(content), candidate.FilesizeBytes)
		}
	}
}

func TestScannerIsRestartable(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.mp3"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	scanner := NewScanner(root, ".mp3")
	seq := scanner.Scan()

	first := 0
	for _, err := range seq {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		first++
	}

	if err := os.WriteFile(filepath.Join(root, "b.mp3"), []byte("b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	second := 0
	for _, err := range seq {
		if err != nil {
			t.Fatalf("rescan: %v", err)
		}
		second++
	}

	if first != 1 || second != 2 {
		t.Fatalf("expected 1 then 2 candidates, got %d then %d", first, second)
	}
}

func TestScannerStopsEarly(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	seen := 0
	for range NewScanner(root, ".mp3").Scan() {
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("expected to stop after one candidate, saw %d", seen)
	}
}

func TestScannerMissingDirectory(t *testing.T) {
	scanner := NewScanner(filepath.Join(t.TempDir(), "missing"), ".mp3")

	errs := 0
	for _, err := range scanner.Scan() {
		if err == nil {
			t.Fatalf("expected only errors from missing directory")
		}
		errs++
	}
	if errs != 1 {
		t.Fatalf("expected exactly one error, got %d", errs)
	}
}

func TestWatcherSignalsNewAudioFile(t *testing.T) {
	root := t.TempDir()
	logger := log.New(io.Discard, "", 0)

	w, err := NewWatcher(NewScanner(root, ".mp3"), 20*time.Millisecond, logger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() {
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("text"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}
	select {
	case <-w.Changes():
		t.Fatalf("expected no signal for non-audio file")
	case <-time.After(150 * time.Millisecond):
	}

	if err := os.WriteFile(filepath.Join(root, "new.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("write mp3: %v", err)
	}
	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for change signal")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(NewScanner(t.TempDir(), ".mp3"), 10*time.Millisecond, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
