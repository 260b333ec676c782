package usecase

import "github.com/satriahrh/englichat/domain/entities"

// ScoreBand is the colour class of a score
type ScoreBand string

const (
	BandGood      ScoreBand = "good"
	BandFair      ScoreBand = "fair"
	BandNeedsWork ScoreBand = "needs-work"
)

// BandFor classifies a 0-100 score: above 85 is good, above 60 fair
func BandFor(score int) ScoreBand {
	switch {
	case score > 85:
		return BandGood
	case score > 60:
		return BandFair
	default:
		return BandNeedsWork
	}
}

// Score is one labelled gauge
type Score struct {
	Label string    `json:"label"`
	Value int       `json:"value"`
	Band  ScoreBand `json:"band"`
}

// Section is a titled list
type Section struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// Dashboard is the progress panel as rendered
type Dashboard struct {
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
	Scores   []Score   `json:"scores"`
	Sections []Section `json:"sections"`
}

// DefaultProgress is the illustrative learner summary shown until real
// tracking exists.
func DefaultProgress() entities.ProgressMetrics {
	return entities.ProgressMetrics{
		GrammarScore:       87,
		PronunciationScore: 92,
		FluencyScore:       85,
		FrequentErrors:     []string{"Tense consistency", "Article usage (a/an/the)"},
		LessonSuggested:    []string{"Past Tense Drill", "Using Articles Correctly"},
	}
}

// BuildDashboard lays out metrics for display. It computes nothing beyond
// the score bands.
func BuildDashboard(metrics entities.ProgressMetrics) Dashboard {
	scores := []Score{
		{Label: "Grammar", Value: metrics.GrammarScore},
		{Label: "Pronunciation", Value: metrics.PronunciationScore},
		{Label: "Fluency", Value: metrics.FluencyScore},
	}
	for i := range scores {
		scores[i].Band = BandFor(scores[i].Value)
	}

	return Dashboard{
		Title:    "Performance Metrics",
		Subtitle: "Your progress based on recent sessions.",
		Scores:   scores,
		Sections: []Section{
			{Title: "Areas to Improve", Items: append([]string{}, metrics.FrequentErrors...)},
			{Title: "Suggested Lessons", Items: append([]string{}, metrics.LessonSuggested...)},
		},
	}
}
