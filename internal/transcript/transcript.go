// Package transcript implements the Transcript Store & Formatter
// (SPEC_FULL.md §4.9): snapshot file naming/access control, directory
// enumeration, and compilation into the plain-text format clients
// download. Grounded on
// original_source/src/transcription_system/transcript_formatter.py.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"eum-captions/internal/model"
	"eum-captions/internal/reconciler"
	"eum-captions/internal/schedule"
	"eum-captions/internal/storage"
	"eum-captions/internal/transcriptmodel"
)

const snapshotTimeLayout = "2006-01-02_15-04"

// Store owns the on-disk transcript root directory and its Postgres index.
type Store struct {
	root     string
	db       *gorm.DB
	archiver *storage.TranscriptArchiver
	log      *zap.SugaredLogger
}

// NewStore constructs a transcript store rooted at dir. db and archiver may
// both be nil.
func NewStore(root string, db *gorm.DB, archiver *storage.TranscriptArchiver, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{root: root, db: db, archiver: archiver, log: logger}
}

// SnapshotPath returns the on-disk path for a session starting at
// sessionStart within roomID, creating the room directory if necessary.
func (s *Store) SnapshotPath(roomID string, sessionStart time.Time) (string, error) {
	dir := filepath.Join(s.root, roomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	return filepath.Join(dir, sessionStart.Format(snapshotTimeLayout)+".snap"), nil
}

// RegisterSession mirrors a newly started snapshot file into the
// transcript_sessions index table.
func (s *Store) RegisterSession(roomID string, startedAt time.Time, filePath string) {
	if s.db == nil {
		return
	}
	rec := model.TranscriptSessionRecord{RoomID: roomID, StartedAt: startedAt, FilePath: filePath}
	if err := s.db.Create(&rec).Error; err != nil {
		s.log.Warnw("failed to index transcript session", "room_id", roomID, "error", err)
	}
}

// WriteAccessConf restricts a room's transcript directory to the given key,
// called when a room activates with publicTranscript=false.
func (s *Store) WriteAccessConf(roomID, key string) error {
	dir := filepath.Join(s.root, roomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(dir, "access.conf")
	if err := os.WriteFile(path, []byte(key), 0o644); err != nil {
		return fmt.Errorf("write access.conf: %w", err)
	}
	return nil
}

// HasAccess reports whether key may read roomID's transcript directory: true
// when no access.conf exists, or when its content equals key.
func (s *Store) HasAccess(roomID, key string) bool {
	path := filepath.Join(s.root, roomID, "access.conf")
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		s.log.Warnw("failed to read access.conf", "room_id", roomID, "error", err)
		return false
	}
	return string(content) == key
}

// GetAvailableTranscriptList enumerates accessible room directories and
// resolves each to its event metadata via conf.
func (s *Store) GetAvailableTranscriptList(callerKey string, conf *schedule.Conference) ([]schedule.Event, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list transcript root: %w", err)
	}

	var results []schedule.Event
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		roomID := entry.Name()
		dirPath := filepath.Join(s.root, roomID)
		children, err := os.ReadDir(dirPath)
		if err != nil || len(children) == 0 {
			continue
		}
		if !s.HasAccess(roomID, callerKey) {
			continue
		}
		event, err := conf.GetEventByID(roomID)
		if err != nil {
			s.log.Errorw("no event data for transcript room", "room_id", roomID)
			continue
		}
		results = append(results, event)
	}
	return results, nil
}

type snapshotFile struct {
	startedAt time.Time
	path      string
}

func (s *Store) listSnapshotFiles(roomID string) ([]snapshotFile, error) {
	dir := filepath.Join(s.root, roomID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []snapshotFile
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".snap") {
			continue
		}
		ts := strings.TrimSuffix(name, ".snap")
		startedAt, err := time.Parse(snapshotTimeLayout, ts)
		if err != nil {
			continue // ignore files not matching the expected pattern
		}
		files = append(files, snapshotFile{startedAt: startedAt, path: filepath.Join(dir, name)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].startedAt.Before(files[j].startedAt) })
	return files, nil
}

// CompileTranscript lists a room's snapshot files, loads each, and renders
// plain text with a header per session. When an S3 archiver is configured,
// the compiled text is also uploaded and a one-hour presigned URL returned
// alongside it (§10.3a); archiveURL is "" when S3 isn't configured.
func (s *Store) CompileTranscript(ctx context.Context, callerKey, roomID, lang string) (text string, archiveURL string, err error) {
	dir := filepath.Join(s.root, roomID)
	if _, statErr := os.Stat(dir); statErr != nil {
		return "", "", fmt.Errorf("no transcript chunks found for room %q", roomID)
	}
	if !s.HasAccess(roomID, callerKey) {
		return "", "", fmt.Errorf("access denied to room %q", roomID)
	}

	files, err := s.listSnapshotFiles(roomID)
	if err != nil {
		return "", "", fmt.Errorf("list snapshot files: %w", err)
	}

	var chunks []string
	for _, f := range files {
		lines, err := reconciler.LoadSnapshot(f.path)
		if err != nil {
			s.log.Warnw("failed to load transcript snapshot", "path", f.path, "error", err)
			continue
		}
		sourceLang, err := reconciler.LoadSourceLang(f.path)
		if err != nil {
			s.log.Warnw("failed to load source lang sidecar", "path", f.path, "error", err)
		}
		body := renderLines(lines, lang, sourceLang)
		if body == "" {
			continue
		}
		header := fmt.Sprintf("[Transcription started on %s]", f.startedAt.Format("Monday, January 2, 2006 at 15:04"))
		chunks = append(chunks, header, body, "")
	}

	if len(chunks) == 0 {
		s.log.Infow("compiled empty transcript", "room_id", roomID)
		return "", "", nil
	}

	text = strings.Join(chunks, "\n")
	archiveURL, err = s.archiver.Archive(ctx, roomID, time.Now().Format(snapshotTimeLayout), text)
	if err != nil {
		s.log.Warnw("failed to archive compiled transcript", "room_id", roomID, "error", err)
		return text, "", nil
	}
	return text, archiveURL, nil
}

func renderLines(lines []transcriptmodel.Line, lang, sourceLang string) string {
	var out []string
	for _, line := range lines {
		var parts []string
		for _, sent := range line.Sentences {
			var text string
			if lang == sourceLang {
				text = sent.SourceText
			} else {
				text = sent.Translations[lang]
			}
			if text == "" {
				continue
			}
			parts = append(parts, text)
		}
		if len(parts) == 0 {
			continue
		}
		speakerLabel := ""
		if line.Speaker != -1 {
			speakerLabel = fmt.Sprintf("%d: ", line.Speaker)
		}
		timeRange := fmt.Sprintf("%s - %s", formatSeconds(line.Beg), formatSeconds(line.End))
		out = append(out, fmt.Sprintf("[%s%s]\n%s", speakerLabel, timeRange, strings.Join(parts, " ")))
	}
	return strings.Join(out, "\n")
}

func formatSeconds(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
