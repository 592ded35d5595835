package quiz

// recomputeMastery derives the mastery percentage for a (user, topic) pair
// from scratch: every historical answer across all of the user's sessions on
// the topic, plus the batch about to be committed. Submission order does not
// matter; only the correct/total ratio does.
func recomputeMastery(history, batch []Answer) float64 {
	total := len(history) + len(batch)
	if total == 0 {
		return 0
	}
	correct := 0
	for _, a := range history {
		if a.Correct {
			correct++
		}
	}
	for _, a := range batch {
		if a.Correct {
			correct++
		}
	}
	mastery := float64(correct) / float64(total) * 100
	if mastery < 0 {
		return 0
	}
	if mastery > 100 {
		return 100
	}
	return mastery
}
