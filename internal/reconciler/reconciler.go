// Package reconciler maintains the canonical Line/Sentence model built from
// a stream of ASR hypotheses, emits incremental transcript updates for
// broadcast, and exposes a translation work queue. It is the stateful core
// the rest of the pipeline is built around: ASR emits overlapping, revised
// hypotheses for the same timespan, and this package reconciles them into a
// stable, incrementally broadcastable sentence stream while preserving
// translations of sentences that did not change.
//
// Grounded on original_source/src/transcription_system/transcription_manager.py.
package reconciler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"eum-captions/internal/rolling"
	"eum-captions/internal/transcriptmodel"
)

const (
	// DefaultCompareDepth bounds how far back in the line sequence an ASR
	// revision is still honored; older lines are frozen.
	DefaultCompareDepth = 10
	// DefaultLastN is the number of trailing sentences included in each
	// broadcast chunk.
	DefaultLastN = 20
	// broadcastQueueSize bounds the single-consumer broadcast channel.
	broadcastQueueSize = 8
	// broadcastBlockingSendTimeout is how long a full broadcast channel is
	// given before the chunk is dropped and logged (see SPEC_FULL §9: no
	// unbounded queue, but a slow consumer degrades instead of deadlocking
	// the reconciler's mutation path).
	broadcastBlockingSendTimeout = 2 * time.Second
)

// Options configures a Reconciler.
type Options struct {
	SourceLang    string
	CompareDepth  int
	LastN         int
	Tokenizer     SentenceTokenizer
	Logger        *zap.SugaredLogger
	Persist       bool
	SnapshotPath  func(sessionStart time.Time) string // required iff Persist
}

// Reconciler owns the Line/Sentence model for one room session.
type Reconciler struct {
	opts Options
	log  *zap.SugaredLogger

	mu                 sync.Mutex
	lines              []transcriptmodel.Line
	incompleteSentence string
	translationQueue   []transcriptmodel.TranslationRequest

	sessionStart time.Time
	lastChunk    *transcriptmodel.BroadcastChunk

	transcriptionDelay *rolling.Average
	translationDelay   *rolling.Average

	broadcast chan transcriptmodel.BroadcastChunk
}

// New constructs a Reconciler for a fresh session.
func New(opts Options) *Reconciler {
	if opts.CompareDepth <= 0 {
		opts.CompareDepth = DefaultCompareDepth
	}
	if opts.LastN <= 0 {
		opts.LastN = DefaultLastN
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = DefaultTokenizer{}
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	return &Reconciler{
		opts:               opts,
		log:                l,
		sessionStart:        time.Now(),
		transcriptionDelay: rolling.New(4),
		translationDelay:   rolling.New(4),
		broadcast:          make(chan transcriptmodel.BroadcastChunk, broadcastQueueSize),
	}
}

// SourceLang returns the session's source language.
func (r *Reconciler) SourceLang() string { return r.opts.SourceLang }

// Broadcast returns the single-consumer channel of broadcast chunks.
func (r *Reconciler) Broadcast() <-chan transcriptmodel.BroadcastChunk { return r.broadcast }

// LastChunk returns the most recently published chunk, or nil if nothing has
// broadcast yet — used to bring a newly connected host/client up to date.
func (r *Reconciler) LastChunk() *transcriptmodel.BroadcastChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastChunk
}

// SubmitHypothesis applies one ASR emission to the Line/Sentence model.
// Grounded on TranscriptionManager.submit_chunk.
func (r *Reconciler) SubmitHypothesis(h transcriptmodel.Hypothesis) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transcriptionDelay.Add(h.RemainingTimeTranscription)

	updated := false
	existingCount := len(r.lines)
	incomingCount := len(h.Lines)
	freezeBefore := existingCount - r.opts.CompareDepth

	// line_idx = existing_count - incoming_count + i is the general formula
	// for a batch that may be a sliding window. This codebase's ASR worker
	// always emits h.Lines cumulative from the start of the session
	// (incoming_count == existing_count for a pure revision, and grows by
	// exactly the new line count otherwise), which collapses the formula to
	// line_idx == i: position i is always the line's absolute index.
	// Positions below existingCount are revisions of known lines; positions
	// at or beyond it are brand-new lines the ASR collaborator has just
	// produced.
	for i, incoming := range h.Lines {
		text := incoming.Text
		if text == "" {
			continue
		}

		beg := timeStrToSeconds(incoming.Beg)
		end := timeStrToSeconds(incoming.End)

		raw := r.opts.Tokenizer.Tokenize(r.opts.SourceLang, text)
		complete, incompleteTail := filterCompleteSentences(raw)

		isLastOfBatch := i == incomingCount-1
		if isLastOfBatch && incompleteTail != r.incompleteSentence {
			r.incompleteSentence = incompleteTail
			updated = true
		}

		switch {
		case i >= existingCount:
			r.lines = append(r.lines, r.buildLine(len(r.lines), beg, end, incoming.Speaker, text, complete))
			updated = true
		case i < freezeBefore:
			continue // frozen: too old to revise
		default:
			if r.reconcileLine(i, beg, end, incoming.Speaker, text, complete) {
				updated = true
			}
		}
	}

	if updated {
		r.publishLocked()
	}
}

// buildLine constructs a brand-new Line and registers its sentences for
// translation.
func (r *Reconciler) buildLine(lineIdx, beg, end, speaker int, text string, sentences []string) transcriptmodel.Line {
	line := transcriptmodel.Line{
		LineIdx: lineIdx,
		Beg:     beg,
		End:     end,
		Speaker: speaker,
		Text:    text,
	}
	for j, s := range sentences {
		line.Sentences = append(line.Sentences, transcriptmodel.Sentence{SentIdx: j, SourceText: s})
		r.upsertTranslationRequest(lineIdx, j, s)
	}
	return line
}

// reconcileLine updates an existing line in place. Returns true if anything
// about the line materially changed (text, sentence count, or any sentence
// content).
func (r *Reconciler) reconcileLine(lineIdx, beg, end, speaker int, text string, sentences []string) bool {
	line := &r.lines[lineIdx]
	changed := line.Text != text
	line.Beg, line.End, line.Speaker, line.Text = beg, end, speaker, text

	for j, s := range sentences {
		if j < len(line.Sentences) {
			old := &line.Sentences[j]
			if old.SourceText == s {
				// Keep the old Sentence: preserves all translations.
				continue
			}
			// Text changed under the same (line_idx, sent_idx): fresh
			// Sentence, translations dropped.
			line.Sentences[j] = transcriptmodel.Sentence{SentIdx: j, SourceText: s}
			changed = true
		} else {
			line.Sentences = append(line.Sentences, transcriptmodel.Sentence{SentIdx: j, SourceText: s})
			changed = true
		}
		r.upsertTranslationRequest(lineIdx, j, s)
	}
	return changed
}

// upsertTranslationRequest maintains the translation queue per SPEC_FULL
// §4.1 step 5: no-op if unchanged, reset TranslatedLangs if changed, append
// if new.
func (r *Reconciler) upsertTranslationRequest(lineIdx, sentIdx int, sentence string) {
	for i := range r.translationQueue {
		req := &r.translationQueue[i]
		if req.LineIdx == lineIdx && req.SentIdx == sentIdx {
			if req.Sentence != sentence {
				req.Sentence = sentence
				req.TranslatedLangs = make(map[string]bool)
			}
			return
		}
	}
	r.translationQueue = append(r.translationQueue, transcriptmodel.TranslationRequest{
		LineIdx:         lineIdx,
		SentIdx:         sentIdx,
		Sentence:        sentence,
		TranslatedLangs: make(map[string]bool),
	})
}

// PendingTranslations returns a snapshot copy of the translation queue. The
// caller (translation worker) must not hold any lock of its own while
// performing MT calls against this snapshot.
func (r *Reconciler) PendingTranslations() []transcriptmodel.TranslationRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]transcriptmodel.TranslationRequest, len(r.translationQueue))
	for i, req := range r.translationQueue {
		langs := make(map[string]bool, len(req.TranslatedLangs))
		for k, v := range req.TranslatedLangs {
			langs[k] = v
		}
		out[i] = transcriptmodel.TranslationRequest{
			LineIdx:         req.LineIdx,
			SentIdx:         req.SentIdx,
			Sentence:        req.Sentence,
			TranslatedLangs: langs,
		}
	}
	return out
}

// SubmitTranslation applies MT results back onto the Line/Sentence model.
// Grounded on TranscriptionManager.submit_translation.
func (r *Reconciler) SubmitTranslation(results []transcriptmodel.TranslationResult, elapsed time.Duration) {
	if len(results) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range results {
		if res.LineIdx < 0 || res.LineIdx >= len(r.lines) {
			r.log.Warnw("translation result references out-of-range line", "line_idx", res.LineIdx)
			continue
		}
		line := &r.lines[res.LineIdx]
		if res.SentIdx < 0 || res.SentIdx >= len(line.Sentences) {
			r.log.Warnw("translation result references out-of-range sentence", "line_idx", res.LineIdx, "sent_idx", res.SentIdx)
			continue
		}
		sent := &line.Sentences[res.SentIdx]
		if sent.SourceText != res.Sentence {
			// Stale: the source text moved on since this translation was
			// requested. Silently discard per SPEC_FULL §7.
			continue
		}
		if sent.Translations == nil {
			sent.Translations = make(map[string]string)
		}
		sent.Translations[res.Lang] = res.Translation
		r.markTranslated(res.LineIdx, res.SentIdx, res.Lang)
	}

	r.translationDelay.Add(elapsed.Seconds() / float64(len(results)))
	r.publishLocked()
}

func (r *Reconciler) markTranslated(lineIdx, sentIdx int, lang string) {
	for i := range r.translationQueue {
		req := &r.translationQueue[i]
		if req.LineIdx == lineIdx && req.SentIdx == sentIdx {
			req.TranslatedLangs[lang] = true
			return
		}
	}
}

// publishLocked computes the last-N-sentences view and pushes a broadcast
// chunk. Must be called with mu held.
func (r *Reconciler) publishLocked() {
	chunk := transcriptmodel.BroadcastChunk{
		SourceLang:         r.opts.SourceLang,
		LastNSents:         r.lastNSentencesLocked(r.opts.LastN),
		IncompleteSentence: r.incompleteSentence,
		TranscriptionDelay: r.transcriptionDelay.Value(),
		TranslationDelay:   r.translationDelay.Value(),
	}
	r.lastChunk = &chunk

	select {
	case r.broadcast <- chunk:
	default:
		// Slow consumer: give it a short grace window before dropping.
		select {
		case r.broadcast <- chunk:
		case <-time.After(broadcastBlockingSendTimeout):
			r.log.Warnw("dropped broadcast chunk: consumer not keeping up")
		}
	}

	if r.opts.Persist {
		r.persistLocked()
	}
}

// lastNSentencesLocked walks lines in reverse, collecting up to n trailing
// sentences, then restores forward order. Grounded on
// transcription_helper.py's get_last_n_sentences.
func (r *Reconciler) lastNSentencesLocked(n int) []transcriptmodel.Line {
	var out []transcriptmodel.Line
	remaining := n

	for i := len(r.lines) - 1; i >= 0 && remaining > 0; i-- {
		line := r.lines[i]
		if len(line.Sentences) == 0 {
			continue
		}
		take := len(line.Sentences)
		if take > remaining {
			take = remaining
		}
		selected := append([]transcriptmodel.Sentence(nil), line.Sentences[len(line.Sentences)-take:]...)
		newLine := line
		newLine.Sentences = selected
		out = append(out, newLine)
		remaining -= take
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// persistLocked atomically overwrites the session snapshot file with the
// serialized Line sequence. Must be called with mu held.
func (r *Reconciler) persistLocked() {
	if r.opts.SnapshotPath == nil {
		return
	}
	path := r.opts.SnapshotPath(r.sessionStart)
	if err := writeSnapshot(path, r.lines); err != nil {
		r.log.Errorw("failed to persist transcript snapshot", "path", path, "error", err)
		return
	}
	if err := writeSourceLangSidecar(path, r.opts.SourceLang); err != nil {
		r.log.Warnw("failed to persist source lang sidecar", "path", path, "error", err)
	}
}

// Snapshot returns a deep copy of the current line sequence, for loading
// into the Transcript Store / Formatter without sharing internal state.
func (r *Reconciler) Snapshot() []transcriptmodel.Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transcriptmodel.Line, len(r.lines))
	for i, line := range r.lines {
		sents := make([]transcriptmodel.Sentence, len(line.Sentences))
		for j, s := range line.Sentences {
			if s.Translations != nil {
				tr := make(map[string]string, len(s.Translations))
				for lang, text := range s.Translations {
					tr[lang] = text
				}
				s.Translations = tr
			}
			sents[j] = s
		}
		line.Sentences = sents
		out[i] = line
	}
	return out
}

// Run blocks until ctx is cancelled. Present so Room can treat every
// subordinate component uniformly when wiring shutdown via context
// cancellation, even though the reconciler itself has no background loop —
// all its work happens synchronously inside SubmitHypothesis/SubmitTranslation.
func (r *Reconciler) Run(ctx context.Context) {
	<-ctx.Done()
}
