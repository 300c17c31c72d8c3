package reconciler

import (
	"strconv"
	"strings"
)

// SentenceTokenizer splits raw ASR text into sentences for a given source
// language. The spec treats tokenization as an external, locale-aware
// collaborator; this interface lets a real NLP-backed implementation be
// substituted without touching the reconciler. DefaultTokenizer below is a
// punctuation-based fallback good enough for tests and for languages the
// real collaborator doesn't cover.
type SentenceTokenizer interface {
	Tokenize(lang, text string) []string
}

// DefaultTokenizer splits on ./!/? boundaries, mirroring the shape of the
// source system's punkt-based tokenizer closely enough for reconciliation
// purposes (it does not need locale-correct abbreviation handling — the
// reconciler only cares about where a sentence is known to be complete).
type DefaultTokenizer struct{}

func (DefaultTokenizer) Tokenize(_ string, text string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		switch r {
		case '.', '!', '?':
			s := strings.TrimSpace(cur.String())
			if s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if tail := strings.TrimSpace(cur.String()); tail != "" {
		out = append(out, tail)
	}
	return out
}

// filterCompleteSentences splits a tokenizer's output into the sentences
// that are syntactically complete and a trailing incomplete fragment, if
// any. Grounded on transcription_helper.py's filter_complete_sentences:
// only the final element can be incomplete, and it is incomplete iff its
// last rune is not one of . ! ?
func filterCompleteSentences(sentences []string) (complete []string, incomplete string) {
	if len(sentences) == 0 {
		return nil, ""
	}
	last := strings.TrimSpace(sentences[len(sentences)-1])
	if last != "" {
		runes := []rune(last)
		lastRune := runes[len(runes)-1]
		if lastRune != '.' && lastRune != '!' && lastRune != '?' {
			return sentences[:len(sentences)-1], last
		}
	}
	return sentences, ""
}

// timeStrToSeconds converts an "HH:MM:SS" string to integer seconds.
// Malformed input returns 0, matching transcription_helper.py's behavior of
// logging and returning 0 rather than propagating an error — the reconciler
// degrades a bad timestamp to a sentinel rather than dropping the line.
func timeStrToSeconds(s string) int {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return h*3600 + m*60 + sec
}
