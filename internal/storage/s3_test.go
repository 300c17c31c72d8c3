package storage

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"

	"eum-captions/internal/config"
)

func TestNewTranscriptArchiver_NoBucketIsDisabled(t *testing.T) {
	a, err := NewTranscriptArchiver(aws.Config{}, config.S3Config{})
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestArchive_NilReceiverIsNoOp(t *testing.T) {
	var a *TranscriptArchiver
	url, err := a.Archive(context.Background(), "room-1", "2026-07-29_10-00", "some text")
	require.NoError(t, err)
	require.Empty(t, url)
}

func TestTranscriptKey_SanitizesParts(t *testing.T) {
	key := transcriptKey("room/with spaces", "2026-07-29_10-00")
	require.Equal(t, "transcripts/room_with_spaces/2026-07-29_10-00.txt", key)
}

func TestSanitizeKeyPart(t *testing.T) {
	require.Equal(t, "abc-123_XYZ", sanitizeKeyPart("abc-123_XYZ"))
	require.Equal(t, "a_b_c", sanitizeKeyPart("a/b c"))
}
