package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eum-captions/internal/transcriptmodel"
)

func newTestReconciler() *Reconciler {
	return New(Options{SourceLang: "en"})
}

func TestSubmitHypothesis_NewLineAppended(t *testing.T) {
	r := newTestReconciler()

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Hello world.", Speaker: 1},
		},
	})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, 0, snap[0].LineIdx)
	require.Len(t, snap[0].Sentences, 1)
	require.Equal(t, "Hello world.", snap[0].Sentences[0].SourceText)
}

func TestSubmitHypothesis_IncompleteTailHeldBack(t *testing.T) {
	r := newTestReconciler()

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Hello world. And then", Speaker: 1},
		},
	})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Sentences, 1)
	require.Equal(t, "And then", r.LastChunk().IncompleteSentence)
}

func TestSubmitHypothesis_UnchangedSentencePreservesTranslation(t *testing.T) {
	r := newTestReconciler()

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Hello world.", Speaker: 1},
		},
	})

	r.SubmitTranslation([]transcriptmodel.TranslationResult{
		{LineIdx: 0, SentIdx: 0, Sentence: "Hello world.", Lang: "ko", Translation: "안녕 세상"},
	}, 50*time.Millisecond)

	// Re-submit the exact same line: sentence text unchanged, translation must survive.
	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Hello world.", Speaker: 1},
		},
	})

	snap := r.Snapshot()
	require.Equal(t, "안녕 세상", snap[0].Sentences[0].Translations["ko"])
}

func TestSubmitHypothesis_RevisedSentenceDropsTranslation(t *testing.T) {
	r := newTestReconciler()

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Hello word.", Speaker: 1},
		},
	})
	r.SubmitTranslation([]transcriptmodel.TranslationResult{
		{LineIdx: 0, SentIdx: 0, Sentence: "Hello word.", Lang: "ko", Translation: "wrong"},
	}, 10*time.Millisecond)

	// ASR corrects itself.
	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Hello world.", Speaker: 1},
		},
	})

	snap := r.Snapshot()
	require.Equal(t, "Hello world.", snap[0].Sentences[0].SourceText)
	require.Empty(t, snap[0].Sentences[0].Translations)
}

func TestSubmitTranslation_StaleResultDiscarded(t *testing.T) {
	r := newTestReconciler()

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "First version.", Speaker: 1},
		},
	})
	// Revise before the translation of the first version comes back.
	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Second version.", Speaker: 1},
		},
	})

	r.SubmitTranslation([]transcriptmodel.TranslationResult{
		{LineIdx: 0, SentIdx: 0, Sentence: "First version.", Lang: "ko", Translation: "stale"},
	}, 10*time.Millisecond)

	snap := r.Snapshot()
	require.Empty(t, snap[0].Sentences[0].Translations)
}

func TestPendingTranslations_UpsertResetsOnChange(t *testing.T) {
	r := newTestReconciler()

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "One.", Speaker: 1},
		},
	})
	r.SubmitTranslation([]transcriptmodel.TranslationResult{
		{LineIdx: 0, SentIdx: 0, Sentence: "One.", Lang: "ko", Translation: "하나"},
	}, time.Millisecond)

	pending := r.PendingTranslations()
	require.Len(t, pending, 1)
	require.True(t, pending[0].TranslatedLangs["ko"])

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:02", Text: "Two.", Speaker: 1},
		},
	})

	pending = r.PendingTranslations()
	require.Len(t, pending, 1)
	require.Empty(t, pending[0].TranslatedLangs)
}

func TestCompareDepth_FreezesOldLines(t *testing.T) {
	r := New(Options{SourceLang: "en", CompareDepth: 2})

	// Grow to 5 cumulative lines, one new line appended per hypothesis.
	lines := []transcriptmodel.HypothesisLine{}
	for i := 0; i < 5; i++ {
		lines = append(lines, transcriptmodel.HypothesisLine{
			Beg: "00:00:00", End: "00:00:01", Text: "Line.", Speaker: 1,
		})
		r.SubmitHypothesis(transcriptmodel.Hypothesis{Lines: append([]transcriptmodel.HypothesisLine(nil), lines...)})
	}
	require.Len(t, r.Snapshot(), 5)

	// Attempting to revise line 0 now that 5 lines exist and depth is 2 should be a no-op:
	// only the trailing 2 positions (indices 3, 4) are still open to revision.
	rewritten := append([]transcriptmodel.HypothesisLine(nil), lines...)
	rewritten[0].Text = "Rewritten."
	r.SubmitHypothesis(transcriptmodel.Hypothesis{Lines: rewritten})

	snap := r.Snapshot()
	require.Equal(t, "Line.", snap[0].Text)
}

func TestLastNSentences_OrderPreserved(t *testing.T) {
	r := New(Options{SourceLang: "en", LastN: 2})

	r.SubmitHypothesis(transcriptmodel.Hypothesis{
		Lines: []transcriptmodel.HypothesisLine{
			{Beg: "00:00:00", End: "00:00:01", Text: "A. B. C.", Speaker: 1},
		},
	})

	chunk := r.LastChunk()
	require.NotNil(t, chunk)
	var got []string
	for _, line := range chunk.LastNSents {
		for _, s := range line.Sentences {
			got = append(got, s.SourceText)
		}
	}
	require.Equal(t, []string{"B.", "C."}, got)
}

func TestDefaultTokenizer_SplitsOnPunctuation(t *testing.T) {
	tok := DefaultTokenizer{}
	out := tok.Tokenize("en", "Hello world. How are you? Fine!")
	require.Equal(t, []string{"Hello world.", "How are you?", "Fine!"}, out)
}

func TestFilterCompleteSentences_TrailingFragment(t *testing.T) {
	complete, incomplete := filterCompleteSentences([]string{"A.", "B.", "and then"})
	require.Equal(t, []string{"A.", "B."}, complete)
	require.Equal(t, "and then", incomplete)
}

func TestTimeStrToSeconds(t *testing.T) {
	require.Equal(t, 3661, timeStrToSeconds("01:01:01"))
	require.Equal(t, 0, timeStrToSeconds("garbage"))
	require.Equal(t, 0, timeStrToSeconds(""))
}
