package transcript

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eum-captions/internal/schedule"
	"eum-captions/internal/transcriptmodel"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return NewStore(root, nil, nil, nil), root
}

// writeTestSnapshot writes a gob-encoded line sequence directly, matching
// the on-disk format internal/reconciler's writeSnapshot produces, without
// depending on that package's unexported helper.
func writeTestSnapshot(t *testing.T, root, roomID, timestamp string, lines []transcriptmodel.Line) string {
	t.Helper()
	dir := filepath.Join(root, roomID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, timestamp+".snap")

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(lines))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// writeTestSourceLang writes the sidecar file reconciler.LoadSourceLang
// reads, alongside a snapshot written by writeTestSnapshot.
func writeTestSourceLang(t *testing.T, snapshotPath, sourceLang string) {
	t.Helper()
	require.NoError(t, os.WriteFile(snapshotPath+".lang", []byte(sourceLang), 0o644))
}

func TestWriteAccessConfAndHasAccess(t *testing.T) {
	s, _ := newTestStore(t)

	require.True(t, s.HasAccess("room-1", "anything")) // no access.conf yet

	require.NoError(t, s.WriteAccessConf("room-1", "secret-key"))
	require.True(t, s.HasAccess("room-1", "secret-key"))
	require.False(t, s.HasAccess("room-1", "wrong-key"))
}

func TestSnapshotPath_CreatesRoomDir(t *testing.T) {
	s, root := newTestStore(t)
	start := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	path, err := s.SnapshotPath("room-1", start)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "room-1", "2026-07-29_10-00.snap"), path)

	info, err := os.Stat(filepath.Join(root, "room-1"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestCompileTranscript_RendersSourceAndTranslation(t *testing.T) {
	s, root := newTestStore(t)

	lines := []transcriptmodel.Line{
		{
			LineIdx: 0,
			Beg:     0,
			End:     5,
			Speaker: 1,
			Sentences: []transcriptmodel.Sentence{
				{SentIdx: 0, SourceText: "Hello world.", Translations: map[string]string{"ko": "안녕 세상"}},
			},
		},
	}
	path := writeTestSnapshot(t, root, "room-1", "2026-07-29_10-00", lines)
	writeTestSourceLang(t, path, "en")

	text, archiveURL, err := s.CompileTranscript(context.Background(), "", "room-1", "en")
	require.NoError(t, err)
	require.Empty(t, archiveURL) // no archiver configured
	require.Contains(t, text, "Hello world.")
	require.Contains(t, text, "1: 00:00:00 - 00:00:05")

	text, _, err = s.CompileTranscript(context.Background(), "", "room-1", "ko")
	require.NoError(t, err)
	require.Contains(t, text, "안녕 세상")
}

func TestCompileTranscript_AccessDenied(t *testing.T) {
	s, root := newTestStore(t)
	writeTestSnapshot(t, root, "room-1", "2026-07-29_10-00", []transcriptmodel.Line{})
	require.NoError(t, s.WriteAccessConf("room-1", "secret-key"))

	_, _, err := s.CompileTranscript(context.Background(), "wrong-key", "room-1", "en")
	require.Error(t, err)
}

func TestCompileTranscript_NoSnapshotsReturnsEmpty(t *testing.T) {
	s, root := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "room-1"), 0o755))

	text, archiveURL, err := s.CompileTranscript(context.Background(), "", "room-1", "en")
	require.NoError(t, err)
	require.Empty(t, text)
	require.Empty(t, archiveURL)
}

func TestCompileTranscript_UnknownRoomErrors(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, err := s.CompileTranscript(context.Background(), "", "no-such-room", "en")
	require.Error(t, err)
}

func TestGetAvailableTranscriptList_SkipsEmptyAndInaccessibleDirs(t *testing.T) {
	s, root := newTestStore(t)
	writeTestSnapshot(t, root, "room-1", "2026-07-29_10-00", []transcriptmodel.Line{{LineIdx: 0}})
	writeTestSnapshot(t, root, "room-3", "2026-07-29_10-00", []transcriptmodel.Line{{LineIdx: 0}})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "room-2"), 0o755)) // empty dir: has no snapshots
	require.NoError(t, s.WriteAccessConf("room-3", "secret-key"))         // locked to a different key

	conf := &schedule.Conference{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"tracks": [],
		"days": [{"rooms": {"Room A": [
			{"code": "room-1", "title": "Room One Talk"},
			{"code": "room-2", "title": "Room Two Talk"},
			{"code": "room-3", "title": "Room Three Talk"}
		]}}]
	}`), conf))

	results, err := s.GetAvailableTranscriptList("caller-key", conf)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "room-1", results[0].Code)
}
