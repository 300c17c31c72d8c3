package reconciler

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"eum-captions/internal/transcriptmodel"
)

// writeSnapshot gob-encodes lines and atomically replaces the file at path:
// encode to a temp file in the same directory, then rename over the target.
// A reader never observes a partially written snapshot.
func writeSnapshot(path string, lines []transcriptmodel.Line) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(lines); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// LoadSnapshot decodes a gob-encoded line sequence previously written by
// writeSnapshot, for crash recovery or cross-process transcript export.
func LoadSnapshot(path string) ([]transcriptmodel.Line, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var lines []transcriptmodel.Line
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&lines); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return lines, nil
}

// sourceLangSidecarPath is where the session's source language is recorded
// alongside its snapshot file: the snapshot itself only stores Lines, and
// the Transcript Formatter (internal/transcript) needs to know which
// language a Sentence's SourceText belongs to in order to tell a genuine
// translation apart from the untranslated source when rendering by
// language code.
func sourceLangSidecarPath(snapshotPath string) string {
	return snapshotPath + ".lang"
}

// writeSourceLangSidecar records the session's source language next to its
// snapshot file.
func writeSourceLangSidecar(snapshotPath, sourceLang string) error {
	return os.WriteFile(sourceLangSidecarPath(snapshotPath), []byte(sourceLang), 0o644)
}

// LoadSourceLang reads the source language recorded next to a snapshot
// file written by this package. Returns "" if no sidecar exists (e.g. a
// snapshot from before this file existed).
func LoadSourceLang(snapshotPath string) (string, error) {
	data, err := os.ReadFile(sourceLangSidecarPath(snapshotPath))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read source lang sidecar: %w", err)
	}
	return string(data), nil
}
