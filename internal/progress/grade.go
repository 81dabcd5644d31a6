package progress

import (
	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/user"
)

// QuizScore is the outcome of grading one quiz submission.
type QuizScore struct {
	Score      int `json:"score"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Grade scores answers (question id -> selected option index) against the
// question bank. Unanswered questions count as incorrect; an empty bank
// scores 0.
func Grade(questions []course.QuizQuestion, answers map[string]int) QuizScore {
	score := 0
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectAnswer {
			score++
		}
	}
	return QuizScore{
		Score:      score,
		Total:      len(questions),
		Percentage: user.Percent(score, len(questions)),
	}
}
