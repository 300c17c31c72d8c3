// Package asr wraps Amazon Transcribe streaming as the system's ASR
// collaborator and assembles its raw final-result stream into the
// cumulative Hypothesis batches the sentence reconciler expects.
//
// Grounded on internal/aws/transcribe.go: the low-level streaming mechanics
// (100ms audio buffering, event stream receive loop, SendAudio/Close
// surface) are kept close to the original; what's new is Worker, which adds
// the line-accumulation and READY/STOP supervision contract SPEC_FULL §4.3
// calls the Room Worker.
package asr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"go.uber.org/zap"

	"eum-captions/internal/awsclient"
)

var langCodes = map[string]types.LanguageCode{
	"ko": types.LanguageCodeKoKr,
	"en": types.LanguageCodeEnUs,
	"ja": types.LanguageCodeJaJp,
	"zh": types.LanguageCodeZhCn,
	"es": types.LanguageCodeEsEs,
	"fr": types.LanguageCodeFrFr,
	"de": types.LanguageCodeDeDe,
}

// Result is one completed (non-partial) utterance from the streaming
// collaborator.
type Result struct {
	Text string
}

// stream is the low-level Transcribe streaming session: audio in, final
// transcripts out.
type stream struct {
	ctx        context.Context
	cancel     context.CancelFunc
	client     *transcribestreaming.Client
	breaker    *awsclient.CircuitBreaker
	log        *zap.SugaredLogger
	language   string
	sampleRate int32
	sessionID  string

	audioChan  chan []byte
	resultChan chan Result
	errorChan  chan error

	bufferMu sync.Mutex
	buffer   []byte
}

// Collaborator opens Transcribe streaming sessions.
type Collaborator struct {
	cfg     aws.Config
	breaker *awsclient.CircuitBreaker
	log     *zap.SugaredLogger
}

// New constructs a Collaborator.
func New(cfg aws.Config, breaker *awsclient.CircuitBreaker, logger *zap.SugaredLogger) *Collaborator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Collaborator{cfg: cfg, breaker: breaker, log: logger}
}

// StartStream opens a new streaming session for one room/source-language
// pair and starts its audio-send and result-receive goroutines.
func (c *Collaborator) StartStream(ctx context.Context, sessionID, language string, sampleRate int32) (*stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{
		ctx:        streamCtx,
		cancel:     cancel,
		client:     transcribestreaming.NewFromConfig(c.cfg),
		breaker:    c.breaker,
		log:        c.log,
		language:   language,
		sampleRate: sampleRate,
		sessionID:  sessionID,
		audioChan:  make(chan []byte, 100),
		resultChan: make(chan Result, 50),
		errorChan:  make(chan error, 1),
		buffer:     make([]byte, 0, 32000),
	}
	go s.run()
	c.log.Infow("transcribe stream started", "session", sessionID, "lang", language, "sample_rate", sampleRate)
	return s, nil
}

func (s *stream) run() {
	defer close(s.resultChan)
	defer close(s.errorChan)

	langCode, ok := langCodes[s.language]
	if !ok {
		langCode = types.LanguageCodeEnUs
	}

	var resp *transcribestreaming.StartStreamTranscriptionOutput
	start := func() error {
		out, err := s.client.StartStreamTranscription(s.ctx, &transcribestreaming.StartStreamTranscriptionInput{
			LanguageCode:         langCode,
			MediaEncoding:        types.MediaEncodingPcm,
			MediaSampleRateHertz: aws.Int32(s.sampleRate),
		})
		if err != nil {
			return err
		}
		resp = out
		return nil
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(start)
	} else {
		err = start()
	}
	if err != nil {
		s.log.Errorw("failed to start transcription", "session", s.sessionID, "error", err)
		s.errorChan <- fmt.Errorf("start transcription: %w", err)
		return
	}

	es := resp.GetStream()
	if es == nil {
		s.errorChan <- fmt.Errorf("transcribe event stream is nil")
		return
	}
	defer es.Close()

	go s.receiveResults(es)
	s.sendAudio(es)
}

func (s *stream) sendAudio(es *transcribestreaming.StartStreamTranscriptionEventStream) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.flush(es)
			return
		case audio, ok := <-s.audioChan:
			if !ok {
				s.flush(es)
				return
			}
			s.bufferMu.Lock()
			s.buffer = append(s.buffer, audio...)
			s.bufferMu.Unlock()
		case <-ticker.C:
			s.flush(es)
		}
	}
}

func (s *stream) flush(es *transcribestreaming.StartStreamTranscriptionEventStream) {
	s.bufferMu.Lock()
	if len(s.buffer) == 0 {
		s.bufferMu.Unlock()
		return
	}
	data := s.buffer
	s.buffer = make([]byte, 0, 32000)
	s.bufferMu.Unlock()

	event := &types.AudioStreamMemberAudioEvent{Value: types.AudioEvent{AudioChunk: data}}
	if err := es.Send(s.ctx, event); err != nil {
		s.log.Warnw("audio send failed", "session", s.sessionID, "error", err)
	}
}

func (s *stream) receiveResults(es *transcribestreaming.StartStreamTranscriptionEventStream) {
	for event := range es.Events() {
		e, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || e.Value.Transcript == nil {
			continue
		}
		for _, result := range e.Value.Transcript.Results {
			if len(result.Alternatives) == 0 || result.IsPartial {
				continue
			}
			text := aws.ToString(result.Alternatives[0].Transcript)
			if text == "" {
				continue
			}
			select {
			case s.resultChan <- Result{Text: text}:
			default:
				s.log.Warnw("asr result channel full, dropping", "session", s.sessionID)
			}
		}
	}
	if err := es.Err(); err != nil {
		s.log.Warnw("transcribe stream ended with error", "session", s.sessionID, "error", err)
	}
}

// SendAudio enqueues one chunk of raw PCM audio.
func (s *stream) SendAudio(data []byte) error {
	select {
	case s.audioChan <- data:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("asr audio channel full")
	}
}

// Results returns the channel of completed utterances.
func (s *stream) Results() <-chan Result { return s.resultChan }

// Errors returns the channel of terminal stream errors.
func (s *stream) Errors() <-chan error { return s.errorChan }

// Close tears down the stream.
func (s *stream) Close() {
	s.cancel()
	close(s.audioChan)
}
