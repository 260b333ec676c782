package entities

import "fmt"

// ProgressMetrics is the learner summary shown on the dashboard
type ProgressMetrics struct {
	GrammarScore       int      `json:"grammar_score" yaml:"grammar_score"`
	PronunciationScore int      `json:"pronunciation_score" yaml:"pronunciation_score"`
	FluencyScore       int      `json:"fluency_score" yaml:"fluency_score"`
	FrequentErrors     []string `json:"frequent_errors" yaml:"frequent_errors"`
	LessonSuggested    []string `json:"lesson_suggested" yaml:"lesson_suggested"`
}

// Validate checks that every score is within 0-100
func (p ProgressMetrics) Validate() error {
	scores := map[string]int{
		"grammar_score":       p.GrammarScore,
		"pronunciation_score": p.PronunciationScore,
		"fluency_score":       p.FluencyScore,
	}
	for name, v := range scores {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %d", name, v)
		}
	}
	return nil
}
