package intake

import (
	"path/filepath"
	"strings"

	"archivio/internal"
	"archivio/internal/config"
	"archivio/internal/util"
)

type Classification struct {
	Kind   internal.ImportKind
	Score  float64
	Reason string
}

const classifyThreshold = 0.3

// Classify guesses the import kind of an attachment from the mail subject and
// the file name. Keywords are prefixes; a subject hit weighs less than a
// filename hit because one mail often carries several kinds.
func Classify(subject, filename string, kinds []config.KindConfig, fallback internal.ImportKind) Classification {
	subjectTokens := util.Tokenize(subject)
	nameTokens := util.Tokenize(strings.TrimSuffix(filename, filepath.Ext(filename)))
	subjectText := strings.Join(subjectTokens, " ")
	nameText := strings.Join(nameTokens, " ")

	best := Classification{Kind: fallback, Reason: "default"}
	for _, kind := range kinds {
		score := 0.0
		for _, kw := range kind.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if matchAny(nameTokens, kw) || (strings.Contains(kw, " ") && strings.Contains(nameText, kw)) {
				score += 0.5
			}
			if matchAny(subjectTokens, kw) || (strings.Contains(kw, " ") && strings.Contains(subjectText, kw)) {
				score += 0.3
			}
		}
		if score > 1 {
			score = 1
		}
		if score >= classifyThreshold && score > best.Score {
			best = Classification{Kind: internal.ImportKind(kind.Name), Score: score, Reason: "keywords"}
		}
	}
	return best
}

func matchAny(tokens []string, keyword string) bool {
	for _, t := range tokens {
		if strings.HasPrefix(t, keyword) {
			return true
		}
	}
	return false
}
