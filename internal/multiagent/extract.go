package multiagent

import (
	"strings"
)

// Extraction is the structured output of a ContextClassifier.
type Extraction struct {
	Findings        []string
	Recommendations []string
}

// ContextClassifier pulls findings and recommendations out of a free-form
// model reply. Implementations are best-effort heuristics; false negatives
// are acceptable. The interface exists so the keyword scan can be swapped
// for a structured-output approach without touching the dispatcher.
type ContextClassifier interface {
	Classify(text string) Extraction
}

// maxExtractedItems caps how many items one reply can contribute per list.
const maxExtractedItems = 5

// KeywordClassifier recognizes findings and recommendations by phrasing:
// sentences opening with "I found" or "I discovered" become findings,
// sentences opening with "I recommend" or "you should" become
// recommendations, and bullet lines are split by the same cues.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the default phrase-based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var (
	findingCues        = []string{"i found", "i discovered", "it turns out", "the issue is", "the root cause"}
	recommendationCues = []string{"i recommend", "i suggest", "you should", "best practice is", "consider "}
	bulletMarkers      = []string{"- ", "* ", "• "}
)

func (c *KeywordClassifier) Classify(text string) Extraction {
	var out Extraction
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		body, isBullet := trimBullet(line)
		for _, sentence := range splitSentences(body) {
			lower := strings.ToLower(sentence)
			switch {
			case hasAnyPrefixCue(lower, recommendationCues):
				out.Recommendations = appendCapped(out.Recommendations, sentence)
			case hasAnyPrefixCue(lower, findingCues):
				out.Findings = appendCapped(out.Findings, sentence)
			case isBullet:
				// A bullet with no cue still reads as a finding.
				if strings.Contains(lower, "recommend") || strings.Contains(lower, "should") {
					out.Recommendations = appendCapped(out.Recommendations, sentence)
				} else {
					out.Findings = appendCapped(out.Findings, sentence)
				}
				isBullet = false // only the first sentence of a bullet
			}
		}
	}
	return out
}

func trimBullet(line string) (string, bool) {
	for _, marker := range bulletMarkers {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return line, false
}

func splitSentences(text string) []string {
	var out []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func hasAnyPrefixCue(lower string, cues []string) bool {
	for _, cue := range cues {
		if strings.HasPrefix(lower, cue) {
			return true
		}
	}
	return false
}

func appendCapped(list []string, item string) []string {
	if len(list) >= maxExtractedItems {
		return list
	}
	return append(list, item)
}
