// Worker supervises one room's ASR stream for its lifetime, translating
// Amazon Transcribe's raw final-result events into the cumulative
// Hypothesis batches the reconciler expects, and exposing the Ready/Stop
// sentinel protocol a Room uses to coordinate startup and shutdown with it.
//
// Grounded on original_source/src/room_worker.py's run loop: wait for
// READY, stream until told to STOP, then drain and exit within a bounded
// deadline rather than leaving the goroutine to outlive the room.
package asr

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eum-captions/internal/transcriptmodel"
)

// ShutdownDeadline bounds how long a Worker is given to drain in-flight
// results after Stop before its goroutine is considered leaked.
const ShutdownDeadline = 10 * time.Second

// Worker owns one ASR stream and accumulates its results into a growing
// Line sequence, emitting a full Hypothesis on every new completed line.
type Worker struct {
	collaborator *Collaborator
	sessionID    string
	sourceLang   string
	sampleRate   int32
	log          *zap.SugaredLogger

	stream *stream

	hypotheses chan transcriptmodel.Hypothesis
	ready      chan struct{}
	stopped    chan struct{}
	started    time.Time
	lines      []transcriptmodel.HypothesisLine
}

// NewWorker constructs a Worker. Call Start to begin streaming.
func NewWorker(collaborator *Collaborator, sessionID, sourceLang string, sampleRate int32, logger *zap.SugaredLogger) *Worker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Worker{
		collaborator: collaborator,
		sessionID:    sessionID,
		sourceLang:   sourceLang,
		sampleRate:   sampleRate,
		log:          logger,
		hypotheses:   make(chan transcriptmodel.Hypothesis, 16),
		ready:        make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Start opens the underlying stream and begins the accumulation loop. It
// closes Ready() as soon as StartStream has launched the stream's
// goroutines, not after AWS has accepted the session: the session is opened
// asynchronously, and a failure to open it arrives on the stream's error
// channel and is logged by the accumulation loop.
func (w *Worker) Start(ctx context.Context) error {
	s, err := w.collaborator.StartStream(ctx, w.sessionID, w.sourceLang, w.sampleRate)
	if err != nil {
		return err
	}
	w.stream = s
	w.started = time.Now()
	close(w.ready)

	go w.accumulate(ctx)
	return nil
}

// Ready closes once Start has launched the underlying stream.
func (w *Worker) Ready() <-chan struct{} { return w.ready }

// Stopped closes once the accumulation loop has exited (stream drained or
// context cancelled).
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

// Hypotheses returns the channel of cumulative transcript batches.
func (w *Worker) Hypotheses() <-chan transcriptmodel.Hypothesis { return w.hypotheses }

// SendAudio forwards one chunk of raw PCM audio to the ASR collaborator.
func (w *Worker) SendAudio(data []byte) error {
	return w.stream.SendAudio(data)
}

// Stop closes the stream and waits up to ShutdownDeadline for the
// accumulation loop to drain, logging if it doesn't make the deadline.
func (w *Worker) Stop() {
	w.stream.Close()
	select {
	case <-w.stopped:
	case <-time.After(ShutdownDeadline):
		w.log.Warnw("asr worker did not stop within deadline", "session", w.sessionID)
	}
}

func (w *Worker) accumulate(ctx context.Context) {
	defer close(w.hypotheses)
	defer close(w.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-w.stream.Results():
			if !ok {
				return
			}
			w.appendLine(result.Text)
		case err, ok := <-w.stream.Errors():
			if !ok {
				continue
			}
			w.log.Errorw("asr stream error", "session", w.sessionID, "error", err)
		}
	}
}

func (w *Worker) appendLine(text string) {
	beg := 0
	if len(w.lines) > 0 {
		beg = w.lines[len(w.lines)-1].End
	}
	end := int(time.Since(w.started).Seconds())
	if end <= beg {
		end = beg + 1
	}
	w.lines = append(w.lines, transcriptmodel.HypothesisLine{
		Beg:     formatHHMMSS(beg),
		End:     formatHHMMSS(end),
		Text:    text,
		Speaker: -1,
	})

	hyp := transcriptmodel.Hypothesis{
		Lines: append([]transcriptmodel.HypothesisLine(nil), w.lines...),
	}
	select {
	case w.hypotheses <- hyp:
	default:
		w.log.Warnw("dropped hypothesis: room worker consumer lagging", "session", w.sessionID)
	}
}

func formatHHMMSS(totalSeconds int) string {
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
