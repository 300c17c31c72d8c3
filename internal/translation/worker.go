// Package translation runs the per-room translation fan-out: it tracks
// which target languages currently have at least one subscriber, polls the
// reconciler's pending-translation queue, and pushes each untranslated
// sentence through the MT collaborator for every subscribed language.
//
// Grounded on original_source/src/translation_worker.py: target_langs is a
// ref-counted map (language -> subscriber count) so the last client leaving
// a language stops further work for it without tearing down the others.
package translation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"eum-captions/internal/awsclient"
	"eum-captions/internal/reconciler"
	"eum-captions/internal/transcriptmodel"
)

// Translator performs one text translation. internal/mt.Collaborator
// satisfies this.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Config tunes the poll cycle.
type Config struct {
	PollInterval  time.Duration
	BatchPerLang  int // max sentences translated per language per cycle
}

// DefaultConfig matches the poll interval and per-language batch size
// documented as the system default (1s / 4 sentences per language per
// cycle); cmd/server/main.go passes cfg.MT.PollInterval/BatchPerLang
// through room.Deps in production.
func DefaultConfig() Config {
	return Config{PollInterval: time.Second, BatchPerLang: 4}
}

// Worker is the translation fan-out for one room. Each active target
// language is translated concurrently via a bounded worker pool, so one
// slow language cannot delay the others' captions.
type Worker struct {
	recon      *reconciler.Reconciler
	translator Translator
	cfg        Config
	log        *zap.SugaredLogger
	pool       *awsclient.WorkerPool

	mu          sync.Mutex
	targetLangs map[string]int // lang -> subscriber refcount
}

// New constructs a Worker bound to one room's reconciler. pool may be nil,
// in which case each cycle's per-language translation runs synchronously
// in series instead of fanned out across pool workers.
func New(recon *reconciler.Reconciler, translator Translator, cfg Config, pool *awsclient.WorkerPool, logger *zap.SugaredLogger) *Worker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.PollInterval <= 0 || cfg.BatchPerLang <= 0 {
		cfg = DefaultConfig()
	}
	return &Worker{
		recon:       recon,
		translator:  translator,
		cfg:         cfg,
		log:         logger,
		pool:        pool,
		targetLangs: make(map[string]int),
	}
}

// Subscribe increments the subscriber count for lang, activating
// translation into it if this is the first subscriber.
func (w *Worker) Subscribe(lang string) {
	if lang == w.recon.SourceLang() {
		return // the source language never needs translation
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targetLangs[lang]++
}

// Unsubscribe decrements the subscriber count for lang, removing it from
// the active set once it reaches zero.
func (w *Worker) Unsubscribe(lang string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.targetLangs[lang] <= 1 {
		delete(w.targetLangs, lang)
		return
	}
	w.targetLangs[lang]--
}

func (w *Worker) activeLangs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	langs := make([]string, 0, len(w.targetLangs))
	for lang := range w.targetLangs {
		langs = append(langs, lang)
	}
	return langs
}

// Run polls the reconciler's pending translation queue until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	langs := w.activeLangs()
	if len(langs) == 0 {
		return
	}

	pending := w.recon.PendingTranslations()
	if len(pending) == 0 {
		return
	}

	if w.pool == nil {
		for _, lang := range langs {
			w.translateLang(ctx, lang, pending)
		}
		return
	}

	var wg sync.WaitGroup
	for _, lang := range langs {
		lang := lang
		wg.Add(1)
		submitted := w.pool.Submit(func() {
			defer wg.Done()
			w.translateLang(ctx, lang, pending)
		})
		if !submitted {
			wg.Done()
			w.log.Warnw("translation cycle dropped: worker pool saturated", "lang", lang)
		}
	}
	wg.Wait()
}

func (w *Worker) translateLang(ctx context.Context, lang string, pending []transcriptmodel.TranslationRequest) {
	var results []transcriptmodel.TranslationResult
	taken := 0
	start := time.Now()

	for _, req := range pending {
		if taken >= w.cfg.BatchPerLang {
			break
		}
		if req.TranslatedLangs[lang] {
			continue
		}
		text, err := w.translator.Translate(ctx, req.Sentence, w.recon.SourceLang(), lang)
		if err != nil {
			w.log.Warnw("translation failed", "lang", lang, "error", err)
			continue
		}
		results = append(results, transcriptmodel.TranslationResult{
			LineIdx:     req.LineIdx,
			SentIdx:     req.SentIdx,
			Sentence:    req.Sentence,
			Lang:        lang,
			Translation: text,
		})
		taken++
	}

	if len(results) > 0 {
		w.recon.SubmitTranslation(results, time.Since(start))
	}
}
