// Package transcriptmodel holds the Line/Sentence/TranslationRequest types
// shared by the reconciler, the translation worker, and the transcript
// store. Kept separate from internal/reconciler so the persistence and
// formatting layers can depend on the data shape without importing the
// reconciler's mutation logic.
package transcriptmodel

import "encoding/json"

// Sentence is the unit the system reconciles and translates, identified by
// (LineIdx, SentIdx) within a session. SourceText is a distinguished field
// rather than a map entry keyed by the source language — translations live
// only in Translations, which is cleared whenever SourceText changes.
type Sentence struct {
	SentIdx      int               `json:"sent_idx"`
	SourceText   string            `json:"-"`
	Translations map[string]string `json:"-"`
}

// Content returns the full language -> text view of this sentence,
// including the source language, for serialization to clients.
func (s Sentence) Content(sourceLang string) map[string]string {
	out := make(map[string]string, len(s.Translations)+1)
	for lang, text := range s.Translations {
		out[lang] = text
	}
	out[sourceLang] = s.SourceText
	return out
}

// Line is one ASR-emitted utterance slice, identified by its stable LineIdx
// within the room's line sequence.
type Line struct {
	LineIdx  int        `json:"line_idx"`
	Beg      int        `json:"beg"`
	End      int        `json:"end"`
	Speaker  int        `json:"speaker"` // -1 = unknown
	Text     string     `json:"text"`    // last-known raw ASR string, for change detection only
	Sentences []Sentence `json:"sentences"`
}

// TranslationRequest tracks one (LineIdx, SentIdx) position's outstanding
// translation work. TranslatedLangs is the set of languages already
// satisfied for the current Sentence text; it is reset whenever Sentence
// changes.
type TranslationRequest struct {
	LineIdx         int
	SentIdx         int
	Sentence        string // source text at time of enqueue
	TranslatedLangs map[string]bool
}

// Hypothesis is one ASR emission: a buffer transcription, zero or more
// lines, and a latency hint passed through unchanged (see SPEC_FULL §9).
type Hypothesis struct {
	BufferTranscription        string
	Lines                      []HypothesisLine
	RemainingTimeTranscription float64
}

// HypothesisLine is one line within a Hypothesis, as emitted by the ASR
// collaborator before reconciliation. Beg/End arrive as "HH:MM:SS" strings.
type HypothesisLine struct {
	Beg     string
	End     string
	Text    string
	Speaker int
}

// TranslationResult is one applied translation, as returned by the MT
// collaborator and submitted back to the reconciler.
type TranslationResult struct {
	LineIdx     int
	SentIdx     int
	Sentence    string // source text at time of the MT call
	Lang        string
	Translation string
}

// BroadcastChunk is the JSON message published to host and clients on each
// material change. SourceLang is set by the reconciler before publish so
// MarshalJSON can expose each sentence's full language -> text map without
// widening Sentence's own json tags (SourceText/Translations stay `json:"-"`
// so Go callers keep touching the fields directly, as reconciler_test.go
// does).
type BroadcastChunk struct {
	SourceLang         string            `json:"-"`
	LastNSents         []Line            `json:"last_n_sents"`
	IncompleteSentence string            `json:"incomplete_sentence"`
	TranscriptionDelay float64           `json:"transcription_delay"`
	TranslationDelay   float64           `json:"translation_delay"`
	Info               map[string]string `json:"info,omitempty"`
}

// wireLine/wireSentence mirror Line/Sentence but with Content() flattened
// into the JSON a client actually wants: {"content": {"en": "...", "ko": "..."}}.
type wireSentence struct {
	SentIdx int               `json:"sent_idx"`
	Content map[string]string `json:"content"`
}

type wireLine struct {
	LineIdx   int            `json:"line_idx"`
	Beg       int            `json:"beg"`
	End       int            `json:"end"`
	Speaker   int            `json:"speaker"`
	Sentences []wireSentence `json:"sentences"`
}

// MarshalJSON implements json.Marshaler, flattening each line's sentences
// into the source+translations content map clients render per the wire
// protocol.
func (c BroadcastChunk) MarshalJSON() ([]byte, error) {
	lines := make([]wireLine, len(c.LastNSents))
	for i, l := range c.LastNSents {
		sents := make([]wireSentence, len(l.Sentences))
		for j, s := range l.Sentences {
			sents[j] = wireSentence{SentIdx: s.SentIdx, Content: s.Content(c.SourceLang)}
		}
		lines[i] = wireLine{
			LineIdx:   l.LineIdx,
			Beg:       l.Beg,
			End:       l.End,
			Speaker:   l.Speaker,
			Sentences: sents,
		}
	}
	type alias struct {
		LastNSents         []wireLine        `json:"last_n_sents"`
		IncompleteSentence string            `json:"incomplete_sentence"`
		TranscriptionDelay float64           `json:"transcription_delay"`
		TranslationDelay   float64           `json:"translation_delay"`
		Info               map[string]string `json:"info,omitempty"`
	}
	return json.Marshal(alias{
		LastNSents:         lines,
		IncompleteSentence: c.IncompleteSentence,
		TranscriptionDelay: c.TranscriptionDelay,
		TranslationDelay:   c.TranslationDelay,
		Info:               c.Info,
	})
}
