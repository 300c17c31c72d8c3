package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: ":9000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Server.Port)
	require.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, 12*time.Hour, cfg.Auth.KeyLifetime)
	require.Equal(t, 10, cfg.Room.MaxActiveRooms)
	require.Equal(t, "dev_room_id", cfg.Room.DevRoomID)
	require.Equal(t, 4, cfg.MT.BatchPerLang)
	require.Equal(t, int32(16000), cfg.AWS.SampleRate)
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoad_YAMLValuesSurviveWhenSet(t *testing.T) {
	path := writeTempConfig(t, `
room:
  max_active_rooms: 3
  compare_depth: 7
redis:
  addr: "localhost:6379"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Room.MaxActiveRooms)
	require.Equal(t, 7, cfg.Room.CompareDepth)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverridesWinOverYAML(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: ":9000"
room:
  max_active_rooms: 3
`)
	t.Setenv("SERVER_PORT", ":7000")
	t.Setenv("MAX_ACTIVE_ROOMS", "99")
	t.Setenv("REDIS_ADDR", "cache:6380")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":7000", cfg.Server.Port)
	require.Equal(t, 99, cfg.Room.MaxActiveRooms)
	require.Equal(t, "cache:6380", cfg.Redis.Addr)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAMLErrors(t *testing.T) {
	path := writeTempConfig(t, "server: [this is not a map")
	_, err := Load(path)
	require.Error(t, err)
}
