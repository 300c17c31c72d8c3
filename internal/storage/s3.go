// Package storage archives compiled transcripts to S3 and mints presigned
// GET URLs for them, per SPEC_FULL.md §10.3a. Adapted from
// internal/storage/s3.go's workspace-file upload service: the key scheme,
// upload, and presign calls are kept, repointed at transcript text objects
// instead of arbitrary workspace files (this codebase has no per-workspace
// file browser).
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"eum-captions/internal/config"
)

const presignExpiry = time.Hour

// TranscriptArchiver uploads compiled transcript text and mints short-lived
// download links for it. A nil *TranscriptArchiver is valid and every
// method on it is a no-op, so archival stays optional when S3 isn't
// configured (§10.3a).
type TranscriptArchiver struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

// NewTranscriptArchiver builds an archiver from an already-loaded aws.Config
// and the S3 section of the application configuration. Returns nil, nil
// when no bucket is configured — archival is an additive feature, not a
// required one.
func NewTranscriptArchiver(awsCfg aws.Config, cfg config.S3Config) (*TranscriptArchiver, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		}
	})
	return &TranscriptArchiver{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
	}, nil
}

func transcriptKey(roomID, sessionLabel string) string {
	return fmt.Sprintf("transcripts/%s/%s.txt", sanitizeKeyPart(roomID), sanitizeKeyPart(sessionLabel))
}

// Archive uploads the compiled plain-text transcript and returns a
// presigned GET URL good for one hour. Returns ("", nil) when the
// archiver is nil (S3 not configured).
func (a *TranscriptArchiver) Archive(ctx context.Context, roomID, sessionLabel, text string) (string, error) {
	if a == nil {
		return "", nil
	}

	key := transcriptKey(roomID, sessionLabel)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(text),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("upload transcript to s3: %w", err)
	}

	presigned, err := a.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = presignExpiry
	})
	if err != nil {
		return "", fmt.Errorf("presign transcript download url: %w", err)
	}
	return presigned.URL, nil
}

func sanitizeKeyPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
