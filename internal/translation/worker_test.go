package translation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eum-captions/internal/reconciler"
	"eum-captions/internal/transcriptmodel"
)

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return target + ":" + text, nil
}

func (f *fakeTranslator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestWorker_TranslatesOnlySubscribedLanguages(t *testing.T) {
	recon := reconciler.New(reconciler.Options{SourceLang: "en"})
	recon.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:01", Text: "Hello there.", Speaker: -1},
		},
	})

	translator := &fakeTranslator{}
	w := New(recon, translator, Config{PollInterval: 10 * time.Millisecond, BatchPerLang: 5}, nil, nil)
	w.Subscribe("ko")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		snap := recon.Snapshot()
		return len(snap) == 1 && snap[0].Sentences[0].Translations["ko"] != ""
	}, 500*time.Millisecond, 10*time.Millisecond)

	snap := recon.Snapshot()
	require.Equal(t, "ko:Hello there.", snap[0].Sentences[0].Translations["ko"])
	require.Empty(t, snap[0].Sentences[0].Translations["ja"])
}

func TestWorker_UnsubscribeStopsFurtherWork(t *testing.T) {
	recon := reconciler.New(reconciler.Options{SourceLang: "en"})
	translator := &fakeTranslator{}
	w := New(recon, translator, Config{PollInterval: 10 * time.Millisecond, BatchPerLang: 5}, nil, nil)

	w.Subscribe("ko")
	w.Subscribe("ko")
	w.Unsubscribe("ko")
	require.Contains(t, w.activeLangs(), "ko")

	w.Unsubscribe("ko")
	require.Empty(t, w.activeLangs())
}

func TestWorker_SourceLanguageNeverSubscribed(t *testing.T) {
	recon := reconciler.New(reconciler.Options{SourceLang: "en"})
	w := New(recon, &fakeTranslator{}, DefaultConfig(), nil, nil)
	w.Subscribe("en")
	require.Empty(t, w.activeLangs())
}
