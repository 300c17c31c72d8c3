// Pool holds the shared AWS config plus one circuit breaker per collaborator
// service, constructed once at application startup and handed to every
// room. Grounded on internal/aws/client_pool.go, with the concrete service
// clients (Transcribe/Translate) now constructed by their own packages
// (internal/asr, internal/mt) instead of living in the pool itself — the
// pool's job is the shared aws.Config and the breakers, not owning every
// collaborator type.
package awsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.uber.org/zap"
)

// Config configures the shared pool.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SampleRate      int32
}

// Pool is the process-wide AWS collaborator surface: one aws.Config and one
// circuit breaker per service, reference-counted across the rooms using it.
type Pool struct {
	AWSConfig aws.Config

	TranscribeBreaker *CircuitBreaker
	TranslateBreaker  *CircuitBreaker

	sampleRate int32
	log        *zap.SugaredLogger

	mu       sync.RWMutex
	closed   bool
	refCount int32
}

// New loads AWS credentials and constructs the shared pool.
func New(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	p := &Pool{
		AWSConfig:         awsCfg,
		TranscribeBreaker: NewCircuitBreaker(DefaultCircuitBreakerConfig("transcribe")),
		TranslateBreaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig("translate")),
		sampleRate:        cfg.SampleRate,
		log:               logger,
	}
	logger.Infow("aws client pool ready", "region", cfg.Region, "sample_rate", cfg.SampleRate)
	return p, nil
}

// SampleRate returns the audio sample rate every ASR stream is configured for.
func (p *Pool) SampleRate() int32 { return p.sampleRate }

// Acquire increments the pool's reference count; call once per room that
// starts using it.
func (p *Pool) Acquire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refCount++
}

// Release decrements the reference count; call once a room stops using the
// pool.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refCount--
}

// RefCount returns the number of rooms currently holding the pool.
func (p *Pool) RefCount() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.refCount
}

// Close marks the pool closed. The AWS SDK clients built from AWSConfig
// need no explicit teardown; this only guards against further acquisition.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.log.Infow("aws client pool closed", "final_ref_count", p.refCount)
}

// IsClosed reports whether Close has been called.
func (p *Pool) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
