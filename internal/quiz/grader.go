package quiz

import (
	"strings"

	"golang.org/x/text/cases"
)

// Grade reports whether a submitted answer matches the question's correct
// answer. The policy is the same for every question type: trim surrounding
// whitespace, Unicode case-fold, then compare for exact equality. No partial
// credit, no fuzzy matching.
func Grade(q Question, submitted string) bool {
	return normalizeAnswer(submitted) == normalizeAnswer(q.CorrectAnswer)
}

// normalizeAnswer canonicalizes an answer for comparison. A fresh folder is
// created per call; cases.Caser values are not safe for concurrent use.
func normalizeAnswer(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
